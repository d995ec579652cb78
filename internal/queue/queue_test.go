package queue

import (
	"encoding/binary"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	bolt "go.etcd.io/bbolt"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPushPopFIFO(t *testing.T) {
	s := openTemp(t)
	inputs := [][]int{{1}, {2, 3}, {4, 5, 6}}
	for _, ids := range inputs {
		if err := s.Push(ids); err != nil {
			t.Fatalf("Push(%v): %v", ids, err)
		}
	}
	for _, want := range inputs {
		got, ok, err := s.Pop()
		if err != nil || !ok {
			t.Fatalf("Pop: ok=%v err=%v", ok, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Pop = %v, want %v", got, want)
		}
	}
	if _, ok, _ := s.Pop(); ok {
		t.Fatal("Pop on drained queue reported data")
	}
}

func TestPopEmpty(t *testing.T) {
	s := openTemp(t)
	ids, ok, err := s.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if ok || ids != nil {
		t.Fatalf("empty queue returned ids=%v ok=%v", ids, ok)
	}
}

func TestPopMalformedPayloadSkipped(t *testing.T) {
	s := openTemp(t)

	// Plant a corrupt payload at the queue head, then a good one behind it.
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bSequences)
		seq, _ := b.NextSequence()
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, []byte("{not json"))
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Push([]int{7, 8}); err != nil {
		t.Fatal(err)
	}

	_, ok, err := s.Pop()
	if !ok || !errors.Is(err, ErrMalformed) {
		t.Fatalf("corrupt head: ok=%v err=%v, want ok with ErrMalformed", ok, err)
	}

	ids, ok, err := s.Pop()
	if err != nil || !ok {
		t.Fatalf("Pop after malformed: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(ids, []int{7, 8}) {
		t.Fatalf("Pop = %v, want [7 8]", ids)
	}
}

func TestLen(t *testing.T) {
	s := openTemp(t)
	for i := 0; i < 5; i++ {
		if err := s.Push([]int{i}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("Len = %d, want 5", n)
	}
}

func TestDurableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Push([]int{42}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ids, ok, err := s.Pop()
	if err != nil || !ok {
		t.Fatalf("Pop after reopen: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(ids, []int{42}) {
		t.Fatalf("Pop = %v, want [42]", ids)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openTemp(t)
	if _, ok, _ := s.LoadSnapshot(); ok {
		t.Fatal("LoadSnapshot reported data on fresh store")
	}
	if err := s.SaveSnapshot([]byte("state")); err != nil {
		t.Fatal(err)
	}
	data, ok, err := s.LoadSnapshot()
	if err != nil || !ok {
		t.Fatalf("LoadSnapshot: ok=%v err=%v", ok, err)
	}
	if string(data) != "state" {
		t.Fatalf("snapshot = %q", data)
	}
}
