// Package queue is the durable FIFO that hands cluster-id sequences from the
// ingest stage to the anomaly stage, backed by a bbolt database. The same
// database holds the miner's cluster-set snapshot so the two stages share one
// data file.
package queue

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrMalformed marks a popped payload that did not decode as a JSON integer
// array. The payload has already been removed from the queue; callers log a
// warning and continue with the next pop.
var ErrMalformed = errors.New("queue: malformed payload")

var (
	bSequences = []byte("sequences")
	bState     = []byte("state")
)

var keySnapshot = []byte("miner_snapshot")

// Store is an ordered, at-least-once FIFO of integer sequences. Keys are
// big-endian monotonic sequence numbers, so bbolt's cursor order is
// first-in-first-out.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the queue database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("queue: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, e := tx.CreateBucketIfNotExists(bSequences); e != nil {
			return e
		}
		if _, e := tx.CreateBucketIfNotExists(bState); e != nil {
			return e
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: init %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Push appends one sequence of cluster ids to the tail of the queue.
func (s *Store) Push(ids []int) error {
	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("queue: encode payload: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bSequences)
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("queue: next sequence: %w", err)
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, payload)
	})
}

// Pop removes and returns the oldest sequence. ok is false when the queue is
// empty. A payload that fails to decode is still removed and reported as
// ErrMalformed so one bad record cannot wedge the queue head.
func (s *Store) Pop() (ids []int, ok bool, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bSequences).Cursor()
		k, v := c.First()
		if k == nil {
			return nil
		}
		ok = true
		if jerr := json.Unmarshal(v, &ids); jerr != nil {
			ids = nil
			if derr := c.Delete(); derr != nil {
				return derr
			}
			return fmt.Errorf("%w: %v", ErrMalformed, jerr)
		}
		return c.Delete()
	})
	if err != nil && !errors.Is(err, ErrMalformed) {
		return nil, false, fmt.Errorf("queue: pop: %w", err)
	}
	return ids, ok, err
}

// Len reports the number of pending sequences.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bSequences).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("queue: len: %w", err)
	}
	return n, nil
}

// SaveSnapshot stores the miner's serialized cluster set.
func (s *Store) SaveSnapshot(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bState).Put(keySnapshot, data)
	})
}

// LoadSnapshot returns the stored cluster-set snapshot, if any.
func (s *Store) LoadSnapshot() ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bState).Get(keySnapshot)
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("queue: load snapshot: %w", err)
	}
	return data, data != nil, nil
}
