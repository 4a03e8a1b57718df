package pipe

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the capacity a Pipe is given when none is specified:
// 256 MiB.
const DefaultCapacity = 256 * 1024 * 1024

// Pipe is the concurrency primitive described in spec.md §3-§4: a bounded
// segmented byte buffer with a blocking append/drain state machine, guarded
// by a single mutex and a single condition variable. Every state mutation
// (append, drain, capacity change, flag change, either end closing)
// broadcasts on the condition variable so every waiter re-evaluates its
// wait predicate.
//
// The zero value is not usable; construct with New or NewSize.
type Pipe struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue segmentQueue

	capacity int
	inFlags  Flags
	outFlags Flags

	inClosed  bool // write end (WriteHalf) closed
	outClosed bool // read end (ReadHalf) closed
	flushing  bool

	readTimeoutMs  int64
	writeTimeoutMs int64

	// Cumulative counters, read by Stats; kept outside mu since they're
	// only ever incremented, never used to decide control flow.
	bytesAppended atomic.Uint64
	bytesDrained  atomic.Uint64
	timeouts      atomic.Uint64
}

// Stats is a point-in-time snapshot of a Pipe's cumulative counters, meant
// for periodic reporting (see transport.MetricsLogger) rather than for any
// control decision.
type Stats struct {
	BytesAppended uint64
	BytesDrained  uint64
	Timeouts      uint64
	Count         int
	Capacity      int
}

// Stats returns a snapshot of the Pipe's counters.
func (p *Pipe) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		BytesAppended: p.bytesAppended.Load(),
		BytesDrained:  p.bytesDrained.Load(),
		Timeouts:      p.timeouts.Load(),
		Count:         p.queue.total,
		Capacity:      p.capacity,
	}
}

// New returns a Pipe with the default capacity (256 MiB), infinite
// timeouts, and default flags on both directions.
func New() *Pipe {
	return NewSize(DefaultCapacity)
}

// NewSize returns a Pipe with the given capacity. capacity must be
// positive; NewSize panics otherwise, since there is no caller to return
// an error to at construction time — validate before calling if capacity
// comes from untrusted input.
func NewSize(capacity int) *Pipe {
	if capacity <= 0 {
		panic("pipe: capacity must be positive")
	}
	p := &Pipe{
		capacity:       capacity,
		readTimeoutMs:  -1,
		writeTimeoutMs: -1,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func validateBuf(buf []byte, off, n int) error {
	if buf == nil {
		return ErrArgument
	}
	if off < 0 || off > len(buf) {
		return ErrArgument
	}
	if n < 0 || off+n > len(buf) {
		return ErrArgument
	}
	return nil
}

// blockUntil waits, with p.mu already held, until stop() reports true or
// timeoutMs elapses. timeoutMs < 0 waits indefinitely; == 0 evaluates
// stop() once and fails immediately without waiting if it is not already
// true; > 0 is a millisecond deadline, recomputed on every spurious wake.
//
// stop() must report true for EVERY condition that should end the wait —
// success, or any close that the caller wants to react to — so that a
// single loop here implements spec.md's "each wake re-checks" requirement
// uniformly; the caller inspects the actual flags afterwards to decide
// which outcome applies.
func (p *Pipe) blockUntil(stop func() bool, timeoutMs int64) error {
	if stop() {
		return nil
	}
	if timeoutMs == 0 {
		p.timeouts.Add(1)
		return ErrTimeout
	}
	if timeoutMs < 0 {
		for !stop() {
			p.cond.Wait()
		}
		return nil
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	timer := time.AfterFunc(time.Until(deadline), func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer timer.Stop()

	for !stop() {
		if !time.Now().Before(deadline) {
			p.timeouts.Add(1)
			return ErrTimeout
		}
		p.cond.Wait()
	}
	return nil
}

// Append enqueues n bytes from buf[off:off+n] (spec.md §4.2).
func (p *Pipe) Append(buf []byte, off, n int) error {
	if err := validateBuf(buf, off, n); err != nil {
		return err
	}

	p.mu.Lock()
	stop := func() bool {
		return (p.queue.total+n <= p.capacity && !p.flushing) || p.outClosed || p.inClosed
	}
	if err := p.blockUntil(stop, p.writeTimeoutMs); err != nil {
		p.mu.Unlock()
		return err
	}
	if p.outClosed {
		p.mu.Unlock()
		return ErrOutputEndClosed
	}
	if p.inClosed {
		p.mu.Unlock()
		return ErrInputEndClosed
	}

	seg := newSegment(buf, off, n, p.inFlags&NoCopy == 0)
	p.queue.pushTail(seg)
	p.bytesAppended.Add(uint64(n))
	p.cond.Broadcast()

	sync := p.inFlags&Sync != 0
	writeTimeout := p.writeTimeoutMs
	p.mu.Unlock()

	if sync {
		return p.Flush(writeTimeout)
	}
	return nil
}

// AppendByte enqueues a single byte (used by WriteHalf.WriteByte).
func (p *Pipe) AppendByte(b byte) error {
	return p.Append([]byte{b}, 0, 1)
}

// Flush blocks until the buffer drains to empty or the read end closes
// (spec.md §4.2 "Flush"). While flushing is true, new appends block.
func (p *Pipe) Flush(timeoutMs int64) error {
	p.mu.Lock()
	p.flushing = true
	p.cond.Broadcast()

	stop := func() bool { return p.queue.total == 0 || p.outClosed }
	err := p.blockUntil(stop, timeoutMs)

	p.flushing = false
	p.cond.Broadcast()
	p.mu.Unlock()
	return err
}

// waitForData implements the wait-for-data precondition shared by the
// drain family (spec.md §4.3). Caller must hold p.mu and must already have
// verified !p.outClosed. Returns hasData true if there is at least one
// byte to drain; eof true if the write end closed with nothing left to
// drain.
func (p *Pipe) waitForData(timeoutMs int64) (hasData, eof bool, err error) {
	stop := func() bool {
		return p.queue.total > 0 || p.inClosed || p.outClosed
	}
	if err := p.blockUntil(stop, timeoutMs); err != nil {
		return false, false, err
	}
	if p.outClosed {
		return false, false, nil // caller re-checks outClosed itself
	}
	if p.queue.total > 0 {
		return true, false, nil
	}
	return false, true, nil
}

// DrainInto copies up to n bytes into dst[off:off+n], blocking until at
// least one byte is available or EOF/timeout (spec.md §4.3). It returns
// the number of bytes copied, which is less than n only at EOF or if the
// write end closes mid-buffer.
func (p *Pipe) DrainInto(dst []byte, off, n int) (int, error) {
	if err := validateBuf(dst, off, n); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.outClosed {
		return 0, ErrOutputEndClosed
	}
	_, eof, err := p.waitForData(p.readTimeoutMs)
	if err != nil {
		return 0, err
	}
	if p.outClosed {
		return 0, ErrOutputEndClosed
	}
	if eof {
		return 0, nil
	}

	removed := p.queue.drainInto(dst, off, n)
	p.bytesDrained.Add(uint64(removed))
	p.cond.Broadcast()
	return removed, nil
}

// DrainByte removes and returns a single byte, or -1 at EOF.
func (p *Pipe) DrainByte() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.outClosed {
		return -1, ErrOutputEndClosed
	}
	_, eof, err := p.waitForData(p.readTimeoutMs)
	if err != nil {
		return -1, err
	}
	if p.outClosed {
		return -1, ErrOutputEndClosed
	}
	if eof {
		return -1, nil
	}

	b := p.queue.drainByte()
	p.bytesDrained.Add(1)
	p.cond.Broadcast()
	return int(b), nil
}

// DrainAvailable allocates and returns a buffer of min(max, count) bytes,
// or nil at EOF. max must be positive.
func (p *Pipe) DrainAvailable(max int) ([]byte, error) {
	if max <= 0 {
		return nil, ErrArgument
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.outClosed {
		return nil, ErrOutputEndClosed
	}
	_, eof, err := p.waitForData(p.readTimeoutMs)
	if err != nil {
		return nil, err
	}
	if p.outClosed {
		return nil, ErrOutputEndClosed
	}
	if eof {
		return nil, nil
	}

	want := max
	if p.queue.total < want {
		want = p.queue.total
	}
	buf := make([]byte, want)
	p.queue.drainInto(buf, 0, want)
	p.bytesDrained.Add(uint64(want))
	p.cond.Broadcast()
	return buf, nil
}

// Count returns the number of bytes currently buffered.
func (p *Pipe) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.total
}

// Capacity returns the current capacity.
func (p *Pipe) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// SetCapacity changes the capacity. c must be positive; any positive value
// is accepted even if smaller than the current count (spec.md §4.4),
// waiters then simply continue to wait until drains bring count back
// under the new limit.
func (p *Pipe) SetCapacity(c int) error {
	if c <= 0 {
		return ErrArgument
	}
	p.mu.Lock()
	p.capacity = c
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}

// InFlags returns the current write-direction flags.
func (p *Pipe) InFlags() Flags {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlags
}

// OutFlags returns the current read-direction flags.
func (p *Pipe) OutFlags() Flags {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outFlags
}

// SetInFlags replaces the write-direction flags, keeping PipeInvisible
// sticky (spec.md §4.4).
func (p *Pipe) SetInFlags(f Flags) {
	p.mu.Lock()
	p.inFlags = withFlags(p.inFlags, f)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// SetOutFlags replaces the read-direction flags, keeping PipeInvisible
// sticky.
func (p *Pipe) SetOutFlags(f Flags) {
	p.mu.Lock()
	p.outFlags = withFlags(p.outFlags, f)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// ReadTimeoutMs returns the current read timeout in milliseconds
// (negative = infinite).
func (p *Pipe) ReadTimeoutMs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readTimeoutMs
}

// SetReadTimeoutMs sets the read timeout in milliseconds.
func (p *Pipe) SetReadTimeoutMs(ms int64) {
	p.mu.Lock()
	p.readTimeoutMs = ms
	p.mu.Unlock()
}

// WriteTimeoutMs returns the current write timeout in milliseconds
// (negative = infinite).
func (p *Pipe) WriteTimeoutMs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeTimeoutMs
}

// SetWriteTimeoutMs sets the write timeout in milliseconds.
func (p *Pipe) SetWriteTimeoutMs(ms int64) {
	p.mu.Lock()
	p.writeTimeoutMs = ms
	p.mu.Unlock()
}

// InClosed reports whether the write end has closed.
func (p *Pipe) InClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inClosed
}

// OutClosed reports whether the read end has closed.
func (p *Pipe) OutClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outClosed
}

// closeWriteEnd marks the write end closed: pending appends wake and fail
// with InputEndClosed at once, pending drains wake and eventually return
// EOF once the buffer empties.
func (p *Pipe) closeWriteEnd() {
	p.mu.Lock()
	p.inClosed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// closeReadEnd marks the read end closed and clears the buffer
// (spec.md §4.7: "(open, open→closed): buffer is cleared on the
// transition; all waiters wake; further appends and drains fail").
func (p *Pipe) closeReadEnd() {
	p.mu.Lock()
	p.outClosed = true
	p.queue.clear()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Dispose closes both ends of the Pipe. It is idempotent and equivalent to
// disposing both of its halves; exposed so callers holding only a *Pipe
// (e.g. the Command Adapter, on channel teardown) can tear it down without
// needing to keep both halves around.
func (p *Pipe) Dispose() {
	p.closeWriteEnd()
	p.closeReadEnd()
}
