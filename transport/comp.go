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
	"net"
	"sync/atomic"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// CompStream is a net.Conn wrapper that compresses data using snappy. It
// keeps the same cumulative-counter shape as pipe.Pipe's Stats (plain
// atomic.Uint64 fields, snapshotted on demand by Stats): the gap between
// PlainBytesWritten and WireBytesWritten is exactly what snappy saved on
// the wire. transport.MetricsLogger does not log these counters; it
// reports pipe.Pipe counters only.
type CompStream struct {
	conn    net.Conn
	counted *countingConn
	w       *snappy.Writer
	r       *snappy.Reader

	plainBytesWritten atomic.Uint64
	plainBytesRead    atomic.Uint64
}

// CompStats is a point-in-time snapshot of a CompStream's cumulative
// counters, mirroring pipe.Stats.
type CompStats struct {
	PlainBytesWritten uint64
	WireBytesWritten  uint64
	WireBytesRead     uint64
	PlainBytesRead    uint64
}

// Stats returns a snapshot of the stream's byte counters.
func (c *CompStream) Stats() CompStats {
	return CompStats{
		PlainBytesWritten: c.plainBytesWritten.Load(),
		WireBytesWritten:  c.counted.bytesWritten.Load(),
		WireBytesRead:     c.counted.bytesRead.Load(),
		PlainBytesRead:    c.plainBytesRead.Load(),
	}
}

func (c *CompStream) Read(p []byte) (n int, err error) {
	n, err = c.r.Read(p)
	if n > 0 {
		c.plainBytesRead.Add(uint64(n))
	}
	return n, err
}

func (c *CompStream) Write(p []byte) (n int, err error) {
	if _, err := c.w.Write(p); err != nil {
		return 0, errors.Wrap(err, "transport: compressed write")
	}
	if err := c.w.Flush(); err != nil {
		return 0, errors.Wrap(err, "transport: compressed flush")
	}
	c.plainBytesWritten.Add(uint64(len(p)))
	return len(p), nil
}

func (c *CompStream) Close() error { return c.conn.Close() }

func (c *CompStream) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *CompStream) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *CompStream) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *CompStream) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *CompStream) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// NewCompStream creates a new stream that compresses data using snappy.
func NewCompStream(conn net.Conn) *CompStream {
	counted := &countingConn{Conn: conn}
	c := new(CompStream)
	c.conn = conn
	c.counted = counted
	c.w = snappy.NewBufferedWriter(counted)
	c.r = snappy.NewReader(counted)
	return c
}

// countingConn wraps a net.Conn, counting the actual compressed bytes that
// cross the wire so CompStats can report a real compression ratio instead
// of assuming plain and wire sizes match.
type countingConn struct {
	net.Conn
	bytesWritten atomic.Uint64
	bytesRead    atomic.Uint64
}

func (cc *countingConn) Write(p []byte) (int, error) {
	n, err := cc.Conn.Write(p)
	cc.bytesWritten.Add(uint64(n))
	return n, err
}

func (cc *countingConn) Read(p []byte) (int, error) {
	n, err := cc.Conn.Read(p)
	cc.bytesRead.Add(uint64(n))
	return n, err
}
