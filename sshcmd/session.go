package sshcmd

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/xtaci/sshpipe/pipe"
	"golang.org/x/crypto/ssh"
)

// Run executes cmd on client, streaming its stdout/stderr/stdin through a
// freshly created Command. It blocks until the remote command and all
// copying goroutines have finished, then returns the Command (for callers
// that still want to drain buffered output) and the command's exit error,
// if any.
//
// This is the client-side half of the Command Adapter: it plays the role
// spec.md assigns to "the surrounding command object" by actually opening
// the ssh.Session and wiring its three standard streams to three Pipes.
func Run(client *ssh.Client, cmd string, pipeCapacity int) (*Command, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "sshcmd: new session")
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, errors.Wrap(err, "sshcmd: stdout pipe")
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, errors.Wrap(err, "sshcmd: stderr pipe")
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, errors.Wrap(err, "sshcmd: stdin pipe")
	}

	c := NewCommand(pipeCapacity)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		wh := pipe.NewWriteHalf(c.Stdout)
		copy(wh, stdout)
		wh.Close()
	}()
	go func() {
		defer wg.Done()
		wh := pipe.NewWriteHalf(c.Stderr)
		copy(wh, stderr)
		wh.Close()
	}()
	go func() {
		defer wg.Done()
		drainStdinInto(c.Stdin, stdin)
	}()

	if err := session.Start(cmd); err != nil {
		c.Dispose()
		session.Close()
		return c, errors.Wrap(err, "sshcmd: start remote command")
	}

	runErr := session.Wait()

	// The remote command exiting signals no more stdin will ever be read;
	// dispose the stdin pipe so the draining goroutine's blocking read
	// wakes and returns instead of hanging forever.
	c.Stdin.Dispose()

	wg.Wait()
	session.Close()

	if runErr != nil {
		return c, errors.Wrap(runErr, "sshcmd: remote command")
	}
	return c, nil
}

// stdinDrainMax caps each DrainAvailable call made by drainStdinInto.
const stdinDrainMax = 5000000

// drainStdinInto repeatedly drains owner with DrainAvailable(stdinDrainMax)
// and forwards each chunk to dst (the SSH channel's stdin writer), stopping
// at EOF or on any error, then closes dst.
// Grounded on std.Pipe's streamCopy shape: copy until EOF, then close once.
func drainStdinInto(owner *pipe.Pipe, dst io.WriteCloser) {
	rh := pipe.NewReadHalf(owner)
	defer rh.Close()
	defer dst.Close()

	for {
		chunk, err := rh.DrainAvailable(stdinDrainMax)
		if len(chunk) > 0 {
			if _, werr := dst.Write(chunk); werr != nil {
				return
			}
		}
		if err != nil || chunk == nil {
			return
		}
	}
}
