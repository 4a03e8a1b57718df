package pipe

import "testing"

func TestWriteHalfWriteReturnsFullLength(t *testing.T) {
	p := NewSize(64)
	wh := NewWriteHalf(p)
	n, err := wh.Write([]byte("abcd"))
	if err != nil || n != 4 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
}

func TestWriteHalfCloseIsIdempotent(t *testing.T) {
	p := NewSize(64)
	wh := NewWriteHalf(p)
	if err := wh.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := wh.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !p.InClosed() {
		t.Fatal("pipe write end not marked closed")
	}
}

func TestWriteHalfOperationsFailAfterClose(t *testing.T) {
	p := NewSize(64)
	wh := NewWriteHalf(p)
	wh.Close()

	if _, err := wh.Write([]byte("x")); err != ErrDisposed {
		t.Fatalf("Write after close = %v, want ErrDisposed", err)
	}
	if err := wh.WriteByte('x'); err != ErrDisposed {
		t.Fatalf("WriteByte after close = %v, want ErrDisposed", err)
	}
	if err := wh.Flush(); err != ErrDisposed {
		t.Fatalf("Flush after close = %v, want ErrDisposed", err)
	}
}

func TestWriteHalfUnsupportedOperations(t *testing.T) {
	p := NewSize(64)
	wh := NewWriteHalf(p)

	if _, err := wh.Read(make([]byte, 1)); err != ErrNotSupported {
		t.Fatalf("Read = %v, want ErrNotSupported", err)
	}
	if _, err := wh.ReadByte(); err != ErrNotSupported {
		t.Fatalf("ReadByte = %v, want ErrNotSupported", err)
	}
	if err := wh.SetPosition(0); err != ErrNotSupported {
		t.Fatalf("SetPosition = %v, want ErrNotSupported", err)
	}
	if err := wh.SetReadTimeoutMs(10); err != ErrNotSupported {
		t.Fatalf("SetReadTimeoutMs = %v, want ErrNotSupported", err)
	}
	if wh.CanRead() {
		t.Fatal("CanRead = true, want false")
	}
	if wh.CanSeek() {
		t.Fatal("CanSeek = true, want false")
	}
	if !wh.CanTimeout() {
		t.Fatal("CanTimeout = false, want true")
	}
}

func TestWriteHalfPositionTracksLength(t *testing.T) {
	p := NewSize(64)
	wh := NewWriteHalf(p)
	wh.Write([]byte("abc"))
	if got := wh.Position(); got != 3 {
		t.Fatalf("Position = %d, want 3", got)
	}
	if got := wh.Length(); got != 3 {
		t.Fatalf("Length = %d, want 3", got)
	}
}

func TestWriteHalfCanWriteReflectsOutClosed(t *testing.T) {
	p := NewSize(64)
	wh := NewWriteHalf(p)
	rh := NewReadHalf(p)
	if !wh.CanWrite() {
		t.Fatal("CanWrite = false before any close")
	}
	rh.Close()
	if wh.CanWrite() {
		t.Fatal("CanWrite = true after read end closed")
	}
}
