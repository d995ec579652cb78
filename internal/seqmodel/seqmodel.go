// Package seqmodel defines the trainable next-symbol predictor over cluster
// id sequences, plus a registry of interchangeable implementations. The
// orchestrator and decision engine only ever see the Model interface, so the
// predictor can be swapped (count table, learned classifier, externally
// trained network) without touching either.
package seqmodel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crimson-sun/sawmill/internal/model"
)

// ErrTrainingUnsupported is returned by Train on models whose parameters are
// produced outside this process (e.g. an exported ONNX network).
var ErrTrainingUnsupported = errors.New("seqmodel: model is trained externally")

// Model is a next-symbol predictor over a fixed vocabulary of cluster ids.
//
// Train is a blocking, exclusively mutating operation; no concurrent
// Predict calls may run against a model that is mid-training. Predict is
// read-only and safe for concurrent callers once training (or loading) has
// completed.
type Model interface {
	// Train fits the model on a corpus of windows. Cancellation is
	// honored at epoch boundaries only.
	Train(ctx context.Context, windows []model.Window, opts TrainOptions) error

	// Predict returns the k highest-probability next symbols for the
	// given leading symbols, ranked by descending score with ties broken
	// by lowest cluster id. Scores over the full vocabulary form a
	// normalized probability distribution. Any symbol outside the
	// vocabulary is a hard model.ErrVocabularyMismatch error — ids are
	// never clamped or ignored.
	Predict(symbols []int, k int) ([]model.Prediction, error)

	// VocabSize reports the vocabulary the model is valid for.
	VocabSize() int

	// TrainedAt reports when the parameters were last fitted. Zero for
	// an untrained model.
	TrainedAt() time.Time

	// Save persists the learned state as an opaque blob at path.
	Save(path string) error
}

// TrainOptions control one training pass.
type TrainOptions struct {
	Epochs       int
	LearningRate float64
	BatchSize    int
	Seed         int64 // shuffle seed; 0 means derive from the clock

	// Progress, when set, receives the aggregate (mean per-batch) loss
	// after each completed epoch.
	Progress func(epoch, epochs int, loss float64)
}

// DefaultTrainOptions mirror the operational defaults the system was tuned
// with.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Epochs:       100,
		LearningRate: 0.001,
		BatchSize:    32,
	}
}

func (o *TrainOptions) withDefaults() {
	d := DefaultTrainOptions()
	if o.Epochs <= 0 {
		o.Epochs = d.Epochs
	}
	if o.LearningRate <= 0 {
		o.LearningRate = d.LearningRate
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
}

// Config carries construction parameters common to all model kinds.
type Config struct {
	VocabSize int
	Length    int    // leading symbols per window (L)
	Path      string // blob location, used by externally trained kinds
}

// Constructor creates a fresh (untrained, unless externally trained) model.
type Constructor func(cfg Config) (Model, error)

var registry = map[string]Constructor{}

// Register adds a model constructor under the given kind name.
func Register(kind string, ctor Constructor) {
	registry[kind] = ctor
}

// New creates a model of the given kind.
func New(kind string, cfg Config) (Model, error) {
	ctor, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("seqmodel: unknown model kind: %s", kind)
	}
	return ctor(cfg)
}

// Kinds returns the names of all registered model kinds.
func Kinds() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// checkSymbols rejects any symbol outside [0, vocab) and any sequence whose
// length differs from the model's window length.
func checkSymbols(symbols []int, length, vocab int) error {
	if len(symbols) != length {
		return fmt.Errorf("seqmodel: %d symbols, need %d: %w",
			len(symbols), length, model.ErrWindowLength)
	}
	for _, s := range symbols {
		if s < 0 || s >= vocab {
			return fmt.Errorf("seqmodel: symbol %d outside vocabulary of %d: %w",
				s, vocab, model.ErrVocabularyMismatch)
		}
	}
	return nil
}

// checkK validates the requested candidate count against the vocabulary.
func checkK(k, vocab int) error {
	if k < 1 || k > vocab {
		return fmt.Errorf("seqmodel: k=%d outside [1, %d]", k, vocab)
	}
	return nil
}

// topK selects the k highest-scoring symbols from a full-vocabulary
// distribution, ties broken by lowest symbol id. The scan preserves id order
// within equal scores because candidates are visited in ascending id order
// and a later candidate only displaces a strictly lower score.
func topK(dist []float64, k int) []model.Prediction {
	out := make([]model.Prediction, 0, k)
	for id, score := range dist {
		pos := len(out)
		for pos > 0 && out[pos-1].Score < score {
			pos--
		}
		if pos >= k {
			continue
		}
		if len(out) < k {
			out = append(out, model.Prediction{})
		}
		copy(out[pos+1:], out[pos:len(out)-1])
		out[pos] = model.Prediction{Symbol: id, Score: score}
	}
	return out
}
