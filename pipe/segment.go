package pipe

// segment is an immutable-after-construction holder for a contiguous byte
// range and a forward link (spec.md §3, §4.1). It must only be mutated by
// consuming from its head, and only while the owning Pipe's mutex is held.
type segment struct {
	data     []byte
	readPos  int
	endPos   int
	next     *segment
}

// remaining returns the number of unconsumed bytes in the segment.
func (s *segment) remaining() int { return s.endPos - s.readPos }

// newSegment builds a segment from a caller buffer slice buf[off:off+n].
// When copy is true the bytes are duplicated into a freshly allocated
// buffer (safe default); when false the segment aliases buf directly
// (NoCopy: the producer must not mutate buf after the call returns).
func newSegment(buf []byte, off, n int, copyBytes bool) *segment {
	if !copyBytes {
		return &segment{data: buf, readPos: off, endPos: off + n}
	}
	owned := make([]byte, n)
	copy(owned, buf[off:off+n])
	return &segment{data: owned, readPos: 0, endPos: n}
}

// drainInto copies min(want, remaining) bytes starting at readPos into
// dst[off:], advances readPos, and returns the number of bytes removed
// plus the segment that should replace this one at the queue head: itself
// if bytes remain, or its successor (detached) if it was fully drained.
func (s *segment) drainInto(dst []byte, off, want int) (removed int, rest *segment) {
	avail := s.remaining()
	if want > avail {
		want = avail
	}
	copy(dst[off:off+want], s.data[s.readPos:s.readPos+want])
	s.readPos += want
	if s.remaining() == 0 {
		n := s.next
		s.next = nil
		return want, n
	}
	return want, s
}

// drainByte removes and returns the byte at readPos, along with the
// segment that should replace this one at the queue head.
func (s *segment) drainByte() (b byte, rest *segment) {
	b = s.data[s.readPos]
	s.readPos++
	if s.remaining() == 0 {
		n := s.next
		s.next = nil
		return b, n
	}
	return b, s
}
