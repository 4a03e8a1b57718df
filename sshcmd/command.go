// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package sshcmd wires pipe.Pipe up as the stdout/stderr/stdin transport for
// a single SSH "exec" command, on both the client and server side of the
// golang.org/x/crypto/ssh channel.
package sshcmd

import "github.com/xtaci/sshpipe/pipe"

// Command bundles the three Pipes backing one remote command invocation:
// stdout and stderr are NoCopy|PipeInvisible (the channel owns the segment
// lifetime and callers should not be able to discover the Pipe behind the
// half they're given), stdin is PipeInvisible|Sync (every stdin write blocks
// until the channel has actually drained it, so a command that reads stdin
// slowly applies real back-pressure to its caller).
type Command struct {
	Stdout *pipe.Pipe
	Stderr *pipe.Pipe
	Stdin  *pipe.Pipe
}

// NewCommand allocates the three Pipes with the flags fixed above and the
// given per-pipe capacity (0 selects pipe.DefaultCapacity).
func NewCommand(capacity int) *Command {
	mk := func() *pipe.Pipe {
		if capacity > 0 {
			return pipe.NewSize(capacity)
		}
		return pipe.New()
	}

	c := &Command{
		Stdout: mk(),
		Stderr: mk(),
		Stdin:  mk(),
	}
	c.Stdout.SetInFlags(pipe.NoCopy | pipe.PipeInvisible)
	c.Stderr.SetInFlags(pipe.NoCopy | pipe.PipeInvisible)
	c.Stdin.SetInFlags(pipe.PipeInvisible | pipe.Sync)
	return c
}

// Dispose tears down all three pipes, unblocking any goroutine waiting on
// them. Safe to call more than once.
func (c *Command) Dispose() {
	c.Stdout.Dispose()
	c.Stderr.Dispose()
	c.Stdin.Dispose()
}
