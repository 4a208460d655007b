// Package batch groups a stream of items into slices bounded by a byte
// size or an opaque weight function, providing backpressure between the
// fetch and persistence stages of the pipeline.
package batch

// Sized is satisfied by any item whose on-wire byte footprint can be
// reported for SizeBatcher accounting.
type Sized interface {
	Size() int
}

// SizeBatcher accumulates items until the running byte total would exceed
// limit, then emits the accumulated slice. In immediate mode it emits each
// pushed item as its own single-item batch without buffering.
type SizeBatcher[T Sized] struct {
	limit     int
	immediate bool
	buf       []T
	curBytes  int
}

// NewSizeBatcher creates a SizeBatcher with the given byte limit.
func NewSizeBatcher[T Sized](limit int, immediate bool) *SizeBatcher[T] {
	return &SizeBatcher[T]{limit: limit, immediate: immediate}
}

// Push adds item to the batcher. It returns (batch, true) when a batch is
// ready to be consumed, or (nil, false) when the item was buffered.
func (s *SizeBatcher[T]) Push(item T) ([]T, bool) {
	if s.immediate {
		return []T{item}, true
	}
	sz := item.Size()
	if len(s.buf) == 0 {
		if sz > s.limit {
			return []T{item}, true
		}
		s.buf = append(s.buf, item)
		s.curBytes = sz
		return nil, false
	}
	if s.curBytes+sz > s.limit {
		out := s.buf
		s.buf = []T{item}
		s.curBytes = sz
		return out, true
	}
	s.buf = append(s.buf, item)
	s.curBytes += sz
	return nil, false
}

// TakeAll drains and returns whatever is currently buffered. Returns
// (nil, false) when immediate or when the buffer is empty.
func (s *SizeBatcher[T]) TakeAll() ([]T, bool) {
	if s.immediate || len(s.buf) == 0 {
		return nil, false
	}
	out := s.buf
	s.buf = nil
	s.curBytes = 0
	return out, true
}
