package seqmodel

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/crimson-sun/sawmill/internal/model"
)

func init() {
	Register("softmax", func(cfg Config) (Model, error) {
		return newSoftmax(cfg.VocabSize, cfg.Length)
	})
	registerLoader("softmax", loadSoftmax)
}

// Softmax is a trainable multinomial logistic-regression predictor: the
// window's L symbols are one-hot encoded per position and concatenated, and
// a single linear layer followed by softmax yields the next-symbol
// distribution. Trained with mini-batch SGD on negative log-likelihood.
type Softmax struct {
	vocab  int
	length int

	// weights[j] holds the row for output symbol j over the length*vocab
	// one-hot input positions; bias[j] is its intercept.
	weights   [][]float64
	bias      []float64
	trainedAt time.Time
}

func newSoftmax(vocab, length int) (*Softmax, error) {
	if vocab < 1 {
		return nil, fmt.Errorf("seqmodel: softmax needs a vocabulary, got %d", vocab)
	}
	if length < 1 {
		return nil, fmt.Errorf("seqmodel: softmax needs a window length, got %d", length)
	}
	s := &Softmax{
		vocab:   vocab,
		length:  length,
		weights: make([][]float64, vocab),
		bias:    make([]float64, vocab),
	}
	for j := range s.weights {
		s.weights[j] = make([]float64, length*vocab)
	}
	return s, nil
}

// VocabSize implements Model.
func (s *Softmax) VocabSize() int { return s.vocab }

// TrainedAt implements Model.
func (s *Softmax) TrainedAt() time.Time { return s.trainedAt }

// Train fits the classifier with mini-batch SGD over shuffled examples for
// opts.Epochs passes, minimizing negative log-likelihood of the true label.
// Each window is validated up front; a symbol outside the vocabulary aborts
// training before any parameter is touched.
func (s *Softmax) Train(ctx context.Context, windows []model.Window, opts TrainOptions) error {
	opts.withDefaults()

	if len(windows) == 0 {
		return fmt.Errorf("seqmodel: no training windows")
	}
	for _, w := range windows {
		if err := checkSymbols(w.Symbols, s.length, s.vocab); err != nil {
			return err
		}
		if w.Label < 0 || w.Label >= s.vocab {
			return fmt.Errorf("seqmodel: label %d outside vocabulary of %d: %w",
				w.Label, s.vocab, model.ErrVocabularyMismatch)
		}
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	order := make([]int, len(windows))
	for i := range order {
		order[i] = i
	}

	gradW := make([][]float64, s.vocab)
	for j := range gradW {
		gradW[j] = make([]float64, s.length*s.vocab)
	}
	gradB := make([]float64, s.vocab)

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		// Epoch boundaries are the only cancellation points; a partial
		// epoch is never committed as a checkpoint.
		if err := ctx.Err(); err != nil {
			return err
		}

		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		totalLoss := 0.0
		batches := 0
		for start := 0; start < len(order); start += opts.BatchSize {
			end := start + opts.BatchSize
			if end > len(order) {
				end = len(order)
			}
			totalLoss += s.step(windows, order[start:end], opts.LearningRate, gradW, gradB)
			batches++
		}

		if opts.Progress != nil {
			opts.Progress(epoch+1, opts.Epochs, totalLoss/float64(batches))
		}
	}

	s.trainedAt = time.Now()
	return nil
}

// step runs one mini-batch: accumulates softmax gradients over the batch,
// applies them scaled by lr/|batch|, and returns the mean sample loss.
func (s *Softmax) step(windows []model.Window, batch []int, lr float64, gradW [][]float64, gradB []float64) float64 {
	for j := range gradW {
		clear(gradW[j])
		gradB[j] = 0
	}

	loss := 0.0
	for _, idx := range batch {
		w := windows[idx]
		dist := s.distribution(w.Symbols)
		loss += -math.Log(math.Max(dist[w.Label], 1e-12))

		// d(loss)/d(logit_j) = p_j - 1{j == label}; the one-hot input
		// means each output row's gradient touches only the L active
		// columns.
		for j := 0; j < s.vocab; j++ {
			g := dist[j]
			if j == w.Label {
				g -= 1
			}
			gradB[j] += g
			for t, sym := range w.Symbols {
				gradW[j][t*s.vocab+sym] += g
			}
		}
	}

	scale := lr / float64(len(batch))
	for j := 0; j < s.vocab; j++ {
		s.bias[j] -= scale * gradB[j]
		row := s.weights[j]
		grad := gradW[j]
		for c, g := range grad {
			if g != 0 {
				row[c] -= scale * g
			}
		}
	}
	return loss / float64(len(batch))
}

// distribution computes the softmax probability over the full vocabulary.
// Symbols must already be validated.
func (s *Softmax) distribution(symbols []int) []float64 {
	logits := make([]float64, s.vocab)
	for j := 0; j < s.vocab; j++ {
		z := s.bias[j]
		row := s.weights[j]
		for t, sym := range symbols {
			z += row[t*s.vocab+sym]
		}
		logits[j] = z
	}

	// Stable softmax.
	max := logits[0]
	for _, z := range logits[1:] {
		if z > max {
			max = z
		}
	}
	sum := 0.0
	for j, z := range logits {
		e := math.Exp(z - max)
		logits[j] = e
		sum += e
	}
	for j := range logits {
		logits[j] /= sum
	}
	return logits
}

// Predict implements Model. Read-only; never consults a label.
func (s *Softmax) Predict(symbols []int, k int) ([]model.Prediction, error) {
	if err := checkSymbols(symbols, s.length, s.vocab); err != nil {
		return nil, err
	}
	if err := checkK(k, s.vocab); err != nil {
		return nil, err
	}
	return topK(s.distribution(symbols), k), nil
}

type softmaxPayload struct {
	Weights [][]float64 `cbor:"weights"`
	Bias    []float64   `cbor:"bias"`
}

// Save implements Model.
func (s *Softmax) Save(path string) error {
	payload, err := cbor.Marshal(softmaxPayload{Weights: s.weights, Bias: s.bias})
	if err != nil {
		return fmt.Errorf("seqmodel: encode softmax payload: %w", err)
	}
	return saveEnvelope(path, envelope{
		Kind:      "softmax",
		VocabSize: s.vocab,
		Length:    s.length,
		TrainedAt: s.trainedAt,
		Payload:   payload,
	})
}

func loadSoftmax(env envelope) (Model, error) {
	s, err := newSoftmax(env.VocabSize, env.Length)
	if err != nil {
		return nil, err
	}
	var payload softmaxPayload
	if err := cbor.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode softmax payload: %w", err)
	}
	if len(payload.Weights) != env.VocabSize || len(payload.Bias) != env.VocabSize {
		return nil, fmt.Errorf("softmax payload shape does not match vocabulary %d", env.VocabSize)
	}
	for _, row := range payload.Weights {
		if len(row) != env.Length*env.VocabSize {
			return nil, fmt.Errorf("softmax weight row of %d columns, need %d",
				len(row), env.Length*env.VocabSize)
		}
	}
	s.weights = payload.Weights
	s.bias = payload.Bias
	s.trainedAt = env.TrainedAt
	return s, nil
}
