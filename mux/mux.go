// Package mux defines the transport-agnostic seam between a concrete
// multiplexed session (the kcp-go + smux session returned by
// transport.Dial and transport.Listener.Accept) and the command binaries,
// which only need to open and accept byte streams to start an ssh.Conn
// handshake on each one.
package mux

import (
	"io"
	"net"
)

// Mux is a multiplexed session capable of opening new streams locally and
// accepting streams opened by the remote side.
type Mux interface {
	Open() (io.ReadWriteCloser, error)
	Accept() (io.ReadWriteCloser, error)
	IsClosed() bool
	NumStreams() int
	RemoteAddr() net.Addr
	Close() error
}

// Stream is one multiplexed byte stream within a Mux; each stream carries
// exactly one SSH connection (one ssh.NewClientConn/ssh.NewServerConn
// handshake, and the exec channels opened over it).
type Stream interface {
	io.ReadWriteCloser
	ID() int
	RemoteAddr() net.Addr
}
