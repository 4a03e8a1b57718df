package sshcmd

import (
	"os/exec"
	"sync"

	"github.com/xtaci/sshpipe/pipe"
	"golang.org/x/crypto/ssh"
)

// execRequest is the payload of an SSH "exec" channel request (RFC 4254
// §6.5): a single string naming the command line to run.
type execRequest struct {
	Command string
}

// Server accepts "session" channels on an already-negotiated
// *ssh.ServerConn and runs each "exec" request with os/exec, streaming the
// child process's stdout/stderr/stdin through a Command exactly as Run does
// on the client side. Any other channel type is rejected; any other
// session request (shell, pty-req, subsystem, ...) is rejected since
// command streaming is the only surface this spec covers.
type Server struct {
	// PipeCapacity sizes each Command's three Pipes; 0 selects
	// pipe.DefaultCapacity.
	PipeCapacity int
}

// Serve handles one accepted connection's channel and out-of-band-request
// streams until chans closes. It does not return until the peer disconnects.
func (s *Server) Serve(chans <-chan ssh.NewChannel, reqs <-chan *ssh.Request) {
	go ssh.DiscardRequests(reqs)
	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(channel, requests)
	}
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()
	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}

		var er execRequest
		if err := ssh.Unmarshal(req.Payload, &er); err != nil {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}
		if req.WantReply {
			req.Reply(true, nil)
		}

		exitStatus := s.runExec(channel, er.Command)
		channel.SendRequest("exit-status", false, ssh.Marshal(exitStatus))
		return
	}
}

type exitStatusMsg struct {
	Status uint32
}

// runExec runs cmdline with os/exec, wiring its stdio through a Command
// exactly as the teacher's streamCopy wires two sides of a bidirectional
// pipe: one goroutine per direction, closed once each side reaches EOF.
func (s *Server) runExec(channel ssh.Channel, cmdline string) exitStatusMsg {
	c := NewCommand(s.PipeCapacity)
	defer c.Dispose()

	cmd := exec.Command("/bin/sh", "-c", cmdline)
	stdout, errOut := cmd.StdoutPipe()
	stderr, errErr := cmd.StderrPipe()
	stdin, errIn := cmd.StdinPipe()
	if errOut != nil || errErr != nil || errIn != nil {
		return exitStatusMsg{Status: 1}
	}

	if err := cmd.Start(); err != nil {
		return exitStatusMsg{Status: 1}
	}

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

	// Forward the process's buffered output to the channel as it arrives,
	// and the channel's incoming bytes to the process's stdin, concurrently
	// with the process actually running.
	var copyWG sync.WaitGroup
	copyWG.Add(2)
	go func() {
		defer copyWG.Done()
		copy(channel, pipe.EOFReader{ReadHalf: pipe.NewReadHalf(c.Stdout)})
	}()
	go func() {
		defer copyWG.Done()
		copy(channel.Stderr(), pipe.EOFReader{ReadHalf: pipe.NewReadHalf(c.Stderr)})
	}()
	go func() {
		wh := pipe.NewWriteHalf(c.Stdin)
		copy(wh, channel)
		wh.Close()
	}()

	runErr := cmd.Wait()
	c.Stdin.Dispose()
	wg.Wait()
	c.Stdout.Dispose()
	c.Stderr.Dispose()
	copyWG.Wait()
	channel.CloseWrite()

	if runErr == nil {
		return exitStatusMsg{Status: 0}
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		return exitStatusMsg{Status: uint32(exitErr.ExitCode())}
	}
	return exitStatusMsg{Status: 1}
}
