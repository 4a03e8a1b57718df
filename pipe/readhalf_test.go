package pipe

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func TestReadHalfReadsAppendedData(t *testing.T) {
	p := NewSize(64)
	rh := NewReadHalf(p)
	mustAppend(t, p, []byte("xyz"))

	buf := make([]byte, 8)
	n, err := rh.Read(buf)
	if err != nil || n != 3 || string(buf[:n]) != "xyz" {
		t.Fatalf("Read: n=%d err=%v buf=%q", n, err, buf[:n])
	}
}

func TestReadHalfReadReturnsZeroNilAtEOF(t *testing.T) {
	p := NewSize(64)
	rh := NewReadHalf(p)
	wh := NewWriteHalf(p)
	wh.Close()

	buf := make([]byte, 8)
	n, err := rh.Read(buf)
	if err != nil || n != 0 {
		t.Fatalf("Read at EOF: n=%d err=%v, want (0, nil)", n, err)
	}
}

func TestEOFReaderTranslatesToIOEOF(t *testing.T) {
	p := NewSize(64)
	rh := NewReadHalf(p)
	wh := NewWriteHalf(p)
	mustAppend(t, p, []byte("ab"))
	wh.Close()

	var out bytes.Buffer
	n, err := io.Copy(&out, EOFReader{rh})
	if err != nil {
		t.Fatalf("io.Copy: %v", err)
	}
	if n != 2 || out.String() != "ab" {
		t.Fatalf("copied %q (n=%d), want \"ab\"", out.String(), n)
	}
}

func TestReadHalfFlushDiscardsBufferedBytes(t *testing.T) {
	p := NewSize(64)
	rh := NewReadHalf(p)
	mustAppend(t, p, []byte("discard-me"))

	if err := rh.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := p.Count(); got != 0 {
		t.Fatalf("count after Flush = %d, want 0", got)
	}
}

func TestReadHalfDiscardBufferedIsFlushAlias(t *testing.T) {
	p := NewSize(64)
	rh := NewReadHalf(p)
	mustAppend(t, p, []byte("more-data"))

	if err := rh.DiscardBuffered(); err != nil {
		t.Fatalf("DiscardBuffered: %v", err)
	}
	if got := p.Count(); got != 0 {
		t.Fatalf("count after DiscardBuffered = %d, want 0", got)
	}
}

func TestReadHalfPollReportsDataAvailability(t *testing.T) {
	p := NewSize(64)
	rh := NewReadHalf(p)

	ok, err := rh.Poll(10*1000, SelectRead)
	if err != nil {
		t.Fatalf("Poll on empty pipe: %v", err)
	}
	if ok {
		t.Fatal("Poll reported data available on an empty pipe")
	}

	mustAppend(t, p, []byte{1})
	ok, err = rh.Poll(10*1000, SelectRead)
	if err != nil {
		t.Fatalf("Poll after append: %v", err)
	}
	if !ok {
		t.Fatal("Poll did not report data available after append")
	}
}

func TestReadHalfPollRejectsUnknownMode(t *testing.T) {
	p := NewSize(64)
	rh := NewReadHalf(p)
	if _, err := rh.Poll(0, SelectMode(99)); err != ErrArgument {
		t.Fatalf("Poll with unknown mode = %v, want ErrArgument", err)
	}
}

func TestReadHalfWriteToForwardsUntilEOF(t *testing.T) {
	p := NewSize(64)
	rh := NewReadHalf(p)
	wh := NewWriteHalf(p)

	go func() {
		wh.Write([]byte("hello "))
		wh.Write([]byte("world"))
		wh.Close()
	}()

	var out bytes.Buffer
	n, err := rh.WriteTo(&out)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != int64(len("hello world")) || out.String() != "hello world" {
		t.Fatalf("WriteTo copied %q (n=%d)", out.String(), n)
	}
}

func TestReadHalfCloseIsIdempotent(t *testing.T) {
	p := NewSize(64)
	rh := NewReadHalf(p)
	if err := rh.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := rh.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !p.OutClosed() {
		t.Fatal("pipe read end not marked closed")
	}
}

func TestReadHalfOperationsFailAfterClose(t *testing.T) {
	p := NewSize(64)
	rh := NewReadHalf(p)
	rh.Close()

	if _, err := rh.Read(make([]byte, 1)); err != ErrDisposed {
		t.Fatalf("Read after close = %v, want ErrDisposed", err)
	}
	if _, err := rh.ReadByte(); err != ErrDisposed {
		t.Fatalf("ReadByte after close = %v, want ErrDisposed", err)
	}
	if _, err := rh.DrainAvailable(16); err != ErrDisposed {
		t.Fatalf("DrainAvailable after close = %v, want ErrDisposed", err)
	}
}

func TestReadHalfUnsupportedOperations(t *testing.T) {
	p := NewSize(64)
	rh := NewReadHalf(p)

	if _, err := rh.Write([]byte("x")); err != ErrNotSupported {
		t.Fatalf("Write = %v, want ErrNotSupported", err)
	}
	if err := rh.WriteByte('x'); err != ErrNotSupported {
		t.Fatalf("WriteByte = %v, want ErrNotSupported", err)
	}
	if err := rh.SetPosition(0); err != ErrNotSupported {
		t.Fatalf("SetPosition = %v, want ErrNotSupported", err)
	}
	if err := rh.SetWriteTimeoutMs(10); err != ErrNotSupported {
		t.Fatalf("SetWriteTimeoutMs = %v, want ErrNotSupported", err)
	}
	if rh.CanWrite() {
		t.Fatal("CanWrite = true, want false")
	}
	if rh.CanSeek() {
		t.Fatal("CanSeek = true, want false")
	}
	if !rh.CanTimeout() {
		t.Fatal("CanTimeout = false, want true")
	}
	if got := rh.Position(); got != 0 {
		t.Fatalf("Position = %d, want 0", got)
	}
}

func TestReadHalfCanReadReflectsDataAndWriteEnd(t *testing.T) {
	p := NewSize(64)
	rh := NewReadHalf(p)
	wh := NewWriteHalf(p)

	if !rh.CanRead() {
		t.Fatal("CanRead = false while write end open, want true")
	}
	wh.Close()
	if rh.CanRead() {
		t.Fatal("CanRead = true after write end closed and buffer empty")
	}

	p2 := NewSize(64)
	rh2 := NewReadHalf(p2)
	wh2 := NewWriteHalf(p2)
	mustAppend(t, p2, []byte{1})
	wh2.Close()
	if !rh2.CanRead() {
		t.Fatal("CanRead = false with buffered data remaining after write end closed")
	}
}

func TestReadHalfReadTimeoutExpiresWithoutData(t *testing.T) {
	p := NewSize(64)
	rh := NewReadHalf(p)
	rh.SetReadTimeoutMs(20)

	start := time.Now()
	buf := make([]byte, 4)
	_, err := rh.Read(buf)
	if time.Since(start) < 15*time.Millisecond {
		t.Fatalf("read timeout fired too early: %v", time.Since(start))
	}
	if e, ok := err.(*Error); !ok || e.Kind != KindTimeout {
		t.Fatalf("err = %v, want Timeout", err)
	}
}
