package pipe

import "sync/atomic"

// WriteHalf is the write-only stream facade over a Pipe (spec.md §4.5).
// One WriteHalf exists per Pipe. Read-style operations are permanently
// unsupported.
type WriteHalf struct {
	owner  *Pipe
	closed atomic.Bool
}

// NewWriteHalf returns a WriteHalf bound to owner.
func NewWriteHalf(owner *Pipe) *WriteHalf {
	return &WriteHalf{owner: owner}
}

// Write appends p to the Pipe. It implements io.Writer.
func (w *WriteHalf) Write(p []byte) (int, error) {
	if w.closed.Load() {
		return 0, ErrDisposed
	}
	if err := w.owner.Append(p, 0, len(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteByte appends a single byte.
func (w *WriteHalf) WriteByte(b byte) error {
	if w.closed.Load() {
		return ErrDisposed
	}
	return w.owner.AppendByte(b)
}

// Flush blocks until the Pipe's buffer drains to empty.
func (w *WriteHalf) Flush() error {
	if w.closed.Load() {
		return ErrDisposed
	}
	return w.owner.Flush(w.owner.WriteTimeoutMs())
}

// Close disposes the WriteHalf: it is idempotent, sets the half's own
// closed flag, and signals the Pipe's write end closed so blocked readers
// wake and eventually see EOF.
func (w *WriteHalf) Close() error {
	if w.closed.CompareAndSwap(false, true) {
		w.owner.closeWriteEnd()
	}
	return nil
}

// Dispose is an alias for Close, matching the vocabulary spec.md uses for
// half teardown.
func (w *WriteHalf) Dispose() error { return w.Close() }

// Length reports the Pipe's current buffered byte count.
func (w *WriteHalf) Length() int { return w.owner.Count() }

// Position always reports Length on a WriteHalf (spec.md §6).
func (w *WriteHalf) Position() int64 { return int64(w.Length()) }

// SetPosition always fails: seeking is not supported.
func (w *WriteHalf) SetPosition(int64) error { return ErrNotSupported }

// Read is permanently unsupported on a WriteHalf.
func (w *WriteHalf) Read([]byte) (int, error) { return 0, ErrNotSupported }

// ReadByte is permanently unsupported on a WriteHalf.
func (w *WriteHalf) ReadByte() (byte, error) { return 0, ErrNotSupported }

// SetReadTimeoutMs is permanently unsupported on a WriteHalf.
func (w *WriteHalf) SetReadTimeoutMs(int64) error { return ErrNotSupported }

// SetWriteTimeoutMs sets the underlying Pipe's write timeout.
func (w *WriteHalf) SetWriteTimeoutMs(ms int64) error {
	w.owner.SetWriteTimeoutMs(ms)
	return nil
}

// CanRead reports false: a WriteHalf never supports reads.
func (w *WriteHalf) CanRead() bool { return false }

// CanWrite reports whether writes are still possible.
func (w *WriteHalf) CanWrite() bool {
	return !w.closed.Load() && !w.owner.OutClosed()
}

// CanSeek always reports false.
func (w *WriteHalf) CanSeek() bool { return false }

// CanTimeout always reports true.
func (w *WriteHalf) CanTimeout() bool { return true }

// Owner returns the owning Pipe, unless PipeInvisible is set on the Pipe's
// in-direction flags, in which case it returns (nil, false) per spec.md's
// opacity feature.
func (w *WriteHalf) Owner() (*Pipe, bool) {
	if w.owner.InFlags()&PipeInvisible != 0 {
		return nil, false
	}
	return w.owner, true
}
