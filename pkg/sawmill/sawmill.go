package sawmill

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/crimson-sun/sawmill/internal/detect"
	"github.com/crimson-sun/sawmill/internal/mine"
	"github.com/crimson-sun/sawmill/internal/seqmodel"
	"github.com/crimson-sun/sawmill/internal/tokenize"
	"github.com/crimson-sun/sawmill/internal/window"
)

// ErrNotTrained is returned by Judge before Train has fitted the model.
var ErrNotTrained = errors.New("sawmill: model not trained, call Train first")

// Sawmill mines log templates and judges template sequences.
// Safe for concurrent use.
type Sawmill struct {
	o options

	mu      sync.Mutex
	miner   *mine.Miner
	history []int // ids observed before training
	sliding *window.Sliding
	engine  *detect.Engine
	mdl     seqmodel.Model
}

// New creates a Sawmill instance. Mining starts immediately; the sequence
// model is sized and fitted by Train once enough lines have been observed.
func New(opts ...Option) *Sawmill {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Sawmill{
		o:       o,
		miner:   mine.New(o.threshold),
		sliding: window.NewSliding(o.windowLength),
		engine:  detect.New(o.topK, 0),
	}
}

// Observe mines one log line into the template vocabulary and records its
// id for training. Returns the assigned template id; ok is false for lines
// with no usable tokens, which are skipped.
func (s *Sawmill) Observe(text string) (id int, ok bool) {
	tokens := tokenize.Tokens(text)
	if tokens == nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.miner.Classify(tokens)
	if err != nil {
		return 0, false
	}
	s.history = append(s.history, id)
	return id, true
}

// Train fits the sequence model over everything observed so far. The
// vocabulary is frozen at the current template count; lines judged later
// that mine a brand-new template surface as a vocabulary mismatch error
// from Judge, the signal to re-Train.
func (s *Sawmill) Train(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vocab := s.miner.NumClusters()
	if vocab == 0 {
		return errors.New("sawmill: nothing observed yet")
	}
	windows, _, err := window.Tumble(s.history, s.o.windowLength)
	if err != nil {
		return err
	}
	if len(windows) == 0 {
		return fmt.Errorf("sawmill: observed %d lines, need at least %d to train",
			len(s.history), s.o.windowLength+1)
	}

	mdl, err := seqmodel.New(s.o.modelKind, seqmodel.Config{
		VocabSize: vocab,
		Length:    s.o.windowLength,
	})
	if err != nil {
		return err
	}
	opts := seqmodel.TrainOptions{
		Epochs:       s.o.epochs,
		LearningRate: s.o.learningRate,
		BatchSize:    s.o.batchSize,
	}
	if err := mdl.Train(ctx, windows, opts); err != nil {
		return err
	}
	s.mdl = mdl
	s.history = s.history[:0]
	return nil
}

// Judge mines one log line and, once the rolling window has filled, checks
// the window against the model's top-k predicted continuations. ok is false
// while the window is still warming up or the line had no usable tokens.
func (s *Sawmill) Judge(text string) (Verdict, bool, error) {
	tokens := tokenize.Tokens(text)
	if tokens == nil {
		return Verdict{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mdl == nil {
		return Verdict{}, false, ErrNotTrained
	}
	id, err := s.miner.Classify(tokens)
	if err != nil {
		return Verdict{}, false, nil
	}
	w, ok := s.sliding.Push(id)
	if !ok {
		return Verdict{}, false, nil
	}
	predicted, err := s.mdl.Predict(w.Symbols, s.o.topK)
	if err != nil {
		return Verdict{}, false, err
	}
	v := s.engine.Decide(w.Symbols, w.Label, predicted)
	return Verdict{
		WindowIndex: v.WindowIndex,
		Symbols:     v.Symbols,
		Actual:      v.Actual,
		PredictedK:  v.PredictedK,
		Anomaly:     v.IsAnomaly,
	}, true, nil
}

// Trained reports whether Train has completed at least once.
func (s *Sawmill) Trained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mdl != nil
}

// Clusters returns the mined templates in discovery order.
func (s *Sawmill) Clusters() []Cluster {
	s.mu.Lock()
	defer s.mu.Unlock()
	mined := s.miner.Clusters()
	out := make([]Cluster, len(mined))
	for i := range mined {
		out[i] = Cluster{
			ID:       mined[i].ID,
			Template: mined[i].TemplateString(),
			Matches:  mined[i].MatchCount,
		}
	}
	return out
}

// Snapshot serializes the mined vocabulary for persistence.
func (s *Sawmill) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.miner.Snapshot()
}

// Restore loads a vocabulary snapshot into a fresh instance. Must be called
// before any line has been observed.
func (s *Sawmill) Restore(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.miner.Restore(data)
}
