package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/crimson-sun/sawmill/internal/config"
	"github.com/crimson-sun/sawmill/internal/mine"
	"github.com/crimson-sun/sawmill/internal/model"
	"github.com/crimson-sun/sawmill/internal/queue"
	"github.com/crimson-sun/sawmill/internal/seqmodel"
)

// seedClusters mines n distinct templates and persists the snapshot so
// buildModel restores a vocabulary of exactly n.
func seedClusters(t *testing.T, store *queue.Store, n int) {
	t.Helper()
	m := mine.New(0.5)
	for i := 0; i < n; i++ {
		tokens := make([]string, i+1)
		for j := range tokens {
			tokens[j] = fmt.Sprintf("word%d", j)
		}
		if _, err := m.Classify(tokens); err != nil {
			t.Fatalf("Classify: %v", err)
		}
	}
	if got := m.NumClusters(); got != n {
		t.Fatalf("NumClusters = %d, want %d", got, n)
	}
	snap, err := m.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := store.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
}

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Queue.Path = filepath.Join(dir, "queue.db")
	cfg.Model.Kind = "ngram"
	cfg.Model.Path = filepath.Join(dir, "model.cbor")
	cfg.Window.Length = 3
	return cfg
}

func TestBuildModelRejectsStaleVocabulary(t *testing.T) {
	cfg := testConfig(t)
	store, err := queue.Open(cfg.Queue.Path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	seedClusters(t, store, 5)

	stale, err := seqmodel.New("ngram", seqmodel.Config{VocabSize: 3, Length: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := stale.Save(cfg.Model.Path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := buildModel(cfg, store); !errors.Is(err, model.ErrVocabularyMismatch) {
		t.Fatalf("buildModel error = %v, want ErrVocabularyMismatch", err)
	}
}

func TestBuildModelLoadsMatchingBlob(t *testing.T) {
	cfg := testConfig(t)
	store, err := queue.Open(cfg.Queue.Path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	seedClusters(t, store, 5)

	saved, err := seqmodel.New("ngram", seqmodel.Config{VocabSize: 5, Length: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := saved.Save(cfg.Model.Path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mdl, err := buildModel(cfg, store)
	if err != nil {
		t.Fatalf("buildModel: %v", err)
	}
	if mdl.VocabSize() != 5 {
		t.Errorf("VocabSize = %d, want 5", mdl.VocabSize())
	}
}
