// Package window groups an ordered cluster-id stream into fixed-length
// windows: L leading symbols plus the id that followed them as the label.
package window

import (
	"fmt"

	"github.com/crimson-sun/sawmill/internal/model"
)

// DefaultLength is the default number of leading symbols per window. With
// the label that makes 20 ids per window.
const DefaultLength = 19

// Tumble segments a flat id stream into consecutive non-overlapping windows
// of exactly l+1 ids each. A trailing partial chunk is rejected, never
// padded; its length is returned as dropped so callers can report it.
func Tumble(ids []int, l int) (windows []model.Window, dropped int, err error) {
	if l < 1 {
		return nil, 0, fmt.Errorf("window: length %d out of range", l)
	}

	size := l + 1
	for len(ids) >= size {
		w, err := FromChunk(ids[:size], l)
		if err != nil {
			return nil, 0, err
		}
		ids = ids[size:]
		windows = append(windows, w)
	}
	return windows, len(ids), nil
}

// FromChunk converts one pre-segmented chunk into a window. The chunk must
// contain exactly l+1 ids; wrong-length chunks are rejected, never trimmed
// or padded.
func FromChunk(chunk []int, l int) (model.Window, error) {
	if len(chunk) != l+1 {
		return model.Window{}, fmt.Errorf("window: chunk of %d ids, need %d: %w",
			len(chunk), l+1, model.ErrWindowLength)
	}
	return model.Window{
		Symbols: append([]int(nil), chunk[:l]...),
		Label:   chunk[l],
	}, nil
}

// Sliding is a rolling window builder for continuous inference: it retains
// the last l+1 ids and, once warmed up, emits exactly one window per pushed
// id. Single-writer; not safe for concurrent use.
type Sliding struct {
	l   int
	buf []int
}

// NewSliding creates a sliding builder emitting windows of l symbols plus a
// label.
func NewSliding(l int) *Sliding {
	if l < 1 {
		l = DefaultLength
	}
	return &Sliding{l: l, buf: make([]int, 0, l+1)}
}

// Push appends a cluster id to the buffer. Returns the emitted window and
// true once at least l+1 ids have been observed; before that the warm-up
// gate holds and ok is false.
func (s *Sliding) Push(id int) (model.Window, bool) {
	if len(s.buf) < s.l+1 {
		s.buf = append(s.buf, id)
	} else {
		copy(s.buf, s.buf[1:])
		s.buf[s.l] = id
	}
	if len(s.buf) < s.l+1 {
		return model.Window{}, false
	}
	return model.Window{
		Symbols: append([]int(nil), s.buf[:s.l]...),
		Label:   s.buf[s.l],
	}, true
}

// Warm reports whether the builder has seen enough ids to emit windows.
func (s *Sliding) Warm() bool {
	return len(s.buf) == s.l+1
}
