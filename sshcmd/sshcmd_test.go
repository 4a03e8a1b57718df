package sshcmd

import (
	"crypto/rand"
	"crypto/rsa"
	"net"
	"testing"
	"time"

	"github.com/xtaci/sshpipe/pipe"
	"golang.org/x/crypto/ssh"
)

// collectingReader drains a *pipe.Pipe on the caller's goroutine up to a
// deadline, used by tests that only care about the fully buffered output of
// a completed command.
type collectingReader struct {
	rh *pipe.ReadHalf
}

func newCollectingReader(owner *pipe.Pipe) collectingReader {
	return collectingReader{rh: pipe.NewReadHalf(owner)}
}

func (c collectingReader) readAll(timeout time.Duration) ([]byte, error) {
	c.rh.SetReadTimeoutMs(timeout.Milliseconds())
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := c.rh.Read(buf)
		if err != nil {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, buf[:n]...)
	}
}

// newLoopback builds a client *ssh.Client and a server-side NewChannel/
// Request stream connected over an in-memory net.Pipe, using a freshly
// generated host key and password auth. It mirrors the pattern used to
// exercise ssh.Session against a local server in the upstream package's own
// tests.
func newLoopback(t *testing.T) (*ssh.Client, <-chan ssh.NewChannel, <-chan *ssh.Request) {
	t.Helper()

	hostKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(hostKey)
	if err != nil {
		t.Fatalf("signer from key: %v", err)
	}

	serverConfig := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	serverConfig.AddHostKey(signer)

	clientConn, serverConn := net.Pipe()

	type serverResult struct {
		conn  *ssh.ServerConn
		chans <-chan ssh.NewChannel
		reqs  <-chan *ssh.Request
		err   error
	}
	serverDone := make(chan serverResult, 1)
	go func() {
		conn, chans, reqs, err := ssh.NewServerConn(serverConn, serverConfig)
		serverDone <- serverResult{conn, chans, reqs, err}
	}()

	clientConfig := &ssh.ClientConfig{
		User:            "test",
		Auth:            []ssh.AuthMethod{ssh.Password("unused")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}
	c, chans, reqs, err := ssh.NewClientConn(clientConn, "pipe", clientConfig)
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}

	res := <-serverDone
	if res.err != nil {
		t.Fatalf("server handshake: %v", res.err)
	}

	client := ssh.NewClient(c, chans, reqs)
	return client, res.chans, res.reqs
}

func TestRunRoundTripsStdoutAndExitStatus(t *testing.T) {
	client, chans, reqs := newLoopback(t)
	defer client.Close()

	srv := &Server{PipeCapacity: 4096}
	go srv.Serve(chans, reqs)

	cmd, err := Run(client, "echo hello && echo world 1>&2", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	rh := newCollectingReader(cmd.Stdout)
	out, rerr := rh.readAll(time.Second)
	if rerr != nil {
		t.Fatalf("reading stdout: %v", rerr)
	}
	if string(out) != "hello\n" {
		t.Fatalf("stdout = %q, want %q", out, "hello\n")
	}

	erh := newCollectingReader(cmd.Stderr)
	errOut, eerr := erh.readAll(time.Second)
	if eerr != nil {
		t.Fatalf("reading stderr: %v", eerr)
	}
	if string(errOut) != "world\n" {
		t.Fatalf("stderr = %q, want %q", errOut, "world\n")
	}
}

func TestRunRoundTripsExactByteCountThroughStdin(t *testing.T) {
	client, chans, reqs := newLoopback(t)
	defer client.Close()

	srv := &Server{PipeCapacity: 1 << 20}
	go srv.Serve(chans, reqs)

	const total = 1 << 20 // spec.md §8 scenario 6: exactly 1,048,576 bytes
	payload := make([]byte, total)
	for i := range payload {
		payload[i] = byte(i)
	}

	session, err := client.NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		t.Fatalf("StdoutPipe: %v", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		t.Fatalf("StdinPipe: %v", err)
	}
	if err := session.Start("cat"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	writeDone := make(chan error, 1)
	go func() {
		_, werr := stdin.Write(payload)
		writeDone <- werr
		stdin.Close()
	}()

	got := make([]byte, 0, total)
	buf := make([]byte, 32*1024)
	readDone := make(chan error, 1)
	go func() {
		for len(got) < total {
			n, rerr := stdout.Read(buf)
			got = append(got, buf[:n]...)
			if rerr != nil {
				readDone <- rerr
				return
			}
		}
		readDone <- nil
	}()

	select {
	case err := <-writeDone:
		if err != nil {
			t.Fatalf("write stdin: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stdin write did not complete")
	}
	select {
	case err := <-readDone:
		if err != nil && err.Error() != "EOF" {
			t.Fatalf("read stdout: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stdout read did not complete")
	}

	if len(got) != total {
		t.Fatalf("got %d bytes, want %d", len(got), total)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], payload[i])
		}
	}

	session.Wait()
}
