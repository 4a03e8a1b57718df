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

package transport

import (
	"crypto/sha1"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	kcp "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/qpp"
	"github.com/xtaci/smux"
	"github.com/xtaci/sshpipe/mux"
	"golang.org/x/crypto/pbkdf2"
)

// salt matches the teacher's own pbkdf2 salt; changing it would be a wire
// format break for no functional gain.
const salt = "kcp-go"

// DeriveKey expands a pre-shared passphrase into key material via PBKDF2,
// exactly as client/main.go does for its KCP block cipher key.
func DeriveKey(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(salt), 4096, 32, sha1.New)
}

// session wraps an *smux.Session plus its underlying kcp.UDPSession to
// implement mux.Mux.
type session struct {
	kcpConn *kcp.UDPSession
	smux    *smux.Session
}

func (s *session) Open() (io.ReadWriteCloser, error) { return s.smux.OpenStream() }

func (s *session) Accept() (io.ReadWriteCloser, error) { return s.smux.AcceptStream() }

func (s *session) IsClosed() bool { return s.smux.IsClosed() }

func (s *session) NumStreams() int { return s.smux.NumStreams() }

func (s *session) RemoteAddr() net.Addr { return s.kcpConn.RemoteAddr() }

func (s *session) Close() error {
	s.smux.Close()
	return s.kcpConn.Close()
}

// applyKCPTuning applies the common per-connection KCP tuning parameters
// used by both the client and server sides, matching client/main.go's
// createConn.
func applyKCPTuning(conn *kcp.UDPSession, c *Config) {
	conn.SetStreamMode(true)
	conn.SetWriteDelay(false)
	conn.SetNoDelay(c.NoDelay, c.Interval, c.Resend, c.NoCongestion)
	conn.SetWindowSize(c.SndWnd, c.RcvWnd)
	conn.SetMtu(c.MTU)
	conn.SetACKNoDelay(c.AckNodelay)
	if c.SockBuf > 0 {
		conn.SetReadBuffer(c.SockBuf)
		conn.SetWriteBuffer(c.SockBuf)
	}
}

func buildSmuxConfig(c *Config) (*smux.Config, error) {
	return BuildSmuxConfig(c.SmuxVer, c.SmuxBuf, c.StreamBuf, c.FrameSize, c.KeepAlive)
}

// wrapConn layers optional compression, then optional QPP, on top of a raw
// kcp connection, matching the order client/main.go and server/main.go
// apply them in (compression innermost, QPP outermost, since QPP needs to
// see whatever comp already produced).
func wrapConn(conn *kcp.UDPSession, c *Config, pad *qpp.QuantumPermutationPad) io.ReadWriteCloser {
	var rwc io.ReadWriteCloser = conn
	if !c.NoComp {
		rwc = NewCompStream(conn)
	}
	if pad != nil {
		rwc = NewQPPPort(rwc, pad, []byte(c.Key))
	}
	return rwc
}

// Dial establishes one client-side KCP connection to c.Addr and multiplexes
// it with smux, returning a mux.Mux ready for Open(). pad is nil unless QPP
// is enabled.
func Dial(c *Config, pad *qpp.QuantumPermutationPad) (mux.Mux, error) {
	block, _ := SelectBlockCrypt(c.Crypt, c.Key)
	kcpConn, err := kcp.DialWithOptions(c.Addr, block, c.DataShard, c.ParityShard)
	if err != nil {
		return nil, errors.Wrap(err, "transport: dial")
	}
	applyKCPTuning(kcpConn, c)

	smuxConfig, err := buildSmuxConfig(c)
	if err != nil {
		kcpConn.Close()
		return nil, err
	}

	var underlying io.ReadWriteCloser
	if pad != nil || !c.NoComp {
		underlying = wrapConn(kcpConn, c, pad)
	} else {
		underlying = kcpConn
	}

	sm, err := smux.Client(underlying, smuxConfig)
	if err != nil {
		kcpConn.Close()
		return nil, errors.Wrap(err, "transport: smux client")
	}
	return &session{kcpConn: kcpConn, smux: sm}, nil
}

// DialRetry retries Dial with a one-second backoff until it succeeds or stop
// is closed. Grounded on client/main.go's waitConn loop.
func DialRetry(c *Config, pad *qpp.QuantumPermutationPad, stop <-chan struct{}) (mux.Mux, error) {
	for {
		m, err := Dial(c, pad)
		if err == nil {
			return m, nil
		}
		select {
		case <-stop:
			return nil, errors.Wrap(err, "transport: dial retry cancelled")
		case <-time.After(time.Second):
		}
	}
}

// Listener accepts client KCP connections and hands back one mux.Mux per
// connection, mirroring server/main.go's accept loop.
type Listener struct {
	ln     *kcp.Listener
	config *Config
	pad    *qpp.QuantumPermutationPad
}

// Listen starts listening on c.Addr for client KCP connections.
func Listen(c *Config, pad *qpp.QuantumPermutationPad) (*Listener, error) {
	block, _ := SelectBlockCrypt(c.Crypt, c.Key)
	ln, err := kcp.ListenWithOptions(c.Addr, block, c.DataShard, c.ParityShard)
	if err != nil {
		return nil, errors.Wrap(err, "transport: listen")
	}
	return &Listener{ln: ln, config: c, pad: pad}, nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Accept blocks for the next client KCP connection, tunes it, and
// multiplexes it with smux, returning a mux.Mux ready for Accept().
func (l *Listener) Accept() (mux.Mux, error) {
	kcpConn, err := l.ln.AcceptKCP()
	if err != nil {
		return nil, errors.Wrap(err, "transport: accept")
	}
	applyKCPTuning(kcpConn, l.config)

	smuxConfig, err := buildSmuxConfig(l.config)
	if err != nil {
		kcpConn.Close()
		return nil, err
	}

	var underlying io.ReadWriteCloser
	if l.pad != nil || !l.config.NoComp {
		underlying = wrapConn(kcpConn, l.config, l.pad)
	} else {
		underlying = kcpConn
	}

	sm, err := smux.Server(underlying, smuxConfig)
	if err != nil {
		kcpConn.Close()
		return nil, errors.Wrap(err, "transport: smux server")
	}
	return &session{kcpConn: kcpConn, smux: sm}, nil
}
