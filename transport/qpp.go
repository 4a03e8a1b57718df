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
	"io"
	"sync/atomic"

	"github.com/xtaci/qpp"
)

// qppPower defines the permutation dimension used throughout the project.
const qppPower = 8

// QPPPort implements io.ReadWriteCloser for Quantum Permutation Pads,
// wrapping the underlying net.Conn (or CompStream) below it. Like
// CompStream and pipe.Pipe, it keeps plain atomic.Uint64 counters and
// exposes them through a Stats snapshot rather than logging per-packet.
// transport.MetricsLogger does not log these counters; it reports
// pipe.Pipe counters only.
type QPPPort struct {
	underlying io.ReadWriteCloser

	pad   *qpp.QuantumPermutationPad
	wprng *qpp.Rand
	rprng *qpp.Rand

	bytesEncrypted atomic.Uint64
	bytesDecrypted atomic.Uint64
}

// QPPStats is a point-in-time snapshot of a QPPPort's cumulative counters,
// mirroring pipe.Stats and CompStats.
type QPPStats struct {
	BytesEncrypted uint64
	BytesDecrypted uint64
}

// NewQPPPort wraps underlying with a QPP pad seeded from seed.
func NewQPPPort(underlying io.ReadWriteCloser, pad *qpp.QuantumPermutationPad, seed []byte) *QPPPort {
	wprng := qpp.CreatePRNG(seed)
	rprng := qpp.CreatePRNG(seed)
	return &QPPPort{underlying: underlying, pad: pad, wprng: wprng, rprng: rprng}
}

// Stats returns a snapshot of the port's byte counters.
func (r *QPPPort) Stats() QPPStats {
	return QPPStats{
		BytesEncrypted: r.bytesEncrypted.Load(),
		BytesDecrypted: r.bytesDecrypted.Load(),
	}
}

func (r *QPPPort) Read(p []byte) (n int, err error) {
	n, err = r.underlying.Read(p)
	if n > 0 {
		r.pad.DecryptWithPRNG(p[:n], r.rprng)
		r.bytesDecrypted.Add(uint64(n))
	}
	return
}

func (r *QPPPort) Write(p []byte) (n int, err error) {
	r.pad.EncryptWithPRNG(p, r.wprng)
	n, err = r.underlying.Write(p)
	if n > 0 {
		r.bytesEncrypted.Add(uint64(n))
	}
	return
}

func (r *QPPPort) Close() error {
	return r.underlying.Close()
}
