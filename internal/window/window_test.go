package window

import (
	"errors"
	"reflect"
	"testing"

	"github.com/crimson-sun/sawmill/internal/model"
)

func TestTumbleExact(t *testing.T) {
	ids := make([]int, 40)
	for i := range ids {
		ids[i] = i
	}
	windows, dropped, err := Tumble(ids, 19)
	if err != nil {
		t.Fatalf("Tumble: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("got %d windows, want 2", len(windows))
	}
	if dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}
	if windows[0].Label != 19 || windows[1].Label != 39 {
		t.Fatalf("labels = %d, %d; want 19, 39", windows[0].Label, windows[1].Label)
	}
	if len(windows[0].Symbols) != 19 || windows[0].Symbols[0] != 0 {
		t.Fatalf("unexpected first window symbols %v", windows[0].Symbols)
	}
}

func TestTumbleBacklogOf4000(t *testing.T) {
	// A 4000-id backlog over a 17-symbol vocabulary tumbles into exactly
	// 200 windows of 20 ids each.
	ids := make([]int, 4000)
	for i := range ids {
		ids[i] = i % 17
	}
	windows, dropped, err := Tumble(ids, 19)
	if err != nil {
		t.Fatalf("Tumble: %v", err)
	}
	if len(windows) != 200 {
		t.Fatalf("got %d windows, want 200", len(windows))
	}
	if dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}
}

func TestTumbleRejectsTrailingPartial(t *testing.T) {
	ids := make([]int, 47) // 2 windows of 20 plus 7 leftover
	windows, dropped, err := Tumble(ids, 19)
	if err != nil {
		t.Fatalf("Tumble: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("got %d windows, want 2", len(windows))
	}
	if dropped != 7 {
		t.Fatalf("dropped = %d, want 7", dropped)
	}
}

func TestFromChunk(t *testing.T) {
	w, err := FromChunk([]int{1, 2, 3, 4}, 3)
	if err != nil {
		t.Fatalf("FromChunk: %v", err)
	}
	if !reflect.DeepEqual(w.Symbols, []int{1, 2, 3}) || w.Label != 4 {
		t.Fatalf("window = %+v", w)
	}
}

func TestFromChunkRejectsWrongLength(t *testing.T) {
	for _, chunk := range [][]int{nil, {1}, {1, 2, 3}, {1, 2, 3, 4, 5}} {
		if _, err := FromChunk(chunk, 3); !errors.Is(err, model.ErrWindowLength) {
			t.Errorf("FromChunk(%v): err = %v, want ErrWindowLength", chunk, err)
		}
	}
}

func TestSlidingWarmup(t *testing.T) {
	s := NewSliding(3)
	for i := 0; i < 3; i++ {
		if _, ok := s.Push(i); ok {
			t.Fatalf("window emitted before warm-up at push %d", i)
		}
	}
	if s.Warm() {
		t.Fatal("Warm() true before l+1 ids")
	}
	w, ok := s.Push(3)
	if !ok {
		t.Fatal("no window at l+1-th push")
	}
	if !reflect.DeepEqual(w.Symbols, []int{0, 1, 2}) || w.Label != 3 {
		t.Fatalf("window = %+v", w)
	}
	if !s.Warm() {
		t.Fatal("Warm() false after warm-up")
	}
}

func TestSlidingOneWindowPerPush(t *testing.T) {
	s := NewSliding(3)
	emitted := 0
	for i := 0; i < 100; i++ {
		if _, ok := s.Push(i); ok {
			emitted++
		}
	}
	if emitted != 100-3 {
		t.Fatalf("emitted %d windows, want %d", emitted, 100-3)
	}
}

func TestSlidingEviction(t *testing.T) {
	s := NewSliding(2)
	s.Push(10)
	s.Push(11)
	s.Push(12)
	w, ok := s.Push(13)
	if !ok {
		t.Fatal("expected window")
	}
	if !reflect.DeepEqual(w.Symbols, []int{11, 12}) || w.Label != 13 {
		t.Fatalf("window = %+v, want symbols [11 12] label 13", w)
	}
}

func TestSlidingWindowsImmutable(t *testing.T) {
	s := NewSliding(2)
	s.Push(1)
	s.Push(2)
	first, _ := s.Push(3)
	s.Push(4)
	if !reflect.DeepEqual(first.Symbols, []int{1, 2}) {
		t.Fatalf("earlier window mutated by later push: %v", first.Symbols)
	}
}
