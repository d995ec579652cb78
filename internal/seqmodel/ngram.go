package seqmodel

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/crimson-sun/sawmill/internal/model"
)

// ngramOrder is the number of trailing window symbols used as prediction
// context. Shorter contexts are consulted as backoff when a context was
// never observed in training.
const ngramOrder = 3

func init() {
	Register("ngram", func(cfg Config) (Model, error) {
		return newNgram(cfg.VocabSize, cfg.Length)
	})
	registerLoader("ngram", loadNgram)
}

// Ngram is a transition-count predictor: it tallies, for each trailing
// context of up to ngramOrder symbols, how often each next symbol followed
// in the training corpus, and predicts with additive smoothing. A cheap
// baseline that exercises the Model seam without gradient training.
type Ngram struct {
	vocab  int
	length int

	// counts maps an encoded context to per-symbol follow counts.
	counts    map[string][]uint64
	trainedAt time.Time
}

func newNgram(vocab, length int) (*Ngram, error) {
	if vocab < 1 {
		return nil, fmt.Errorf("seqmodel: ngram needs a vocabulary, got %d", vocab)
	}
	if length < 1 {
		return nil, fmt.Errorf("seqmodel: ngram needs a window length, got %d", length)
	}
	return &Ngram{
		vocab:  vocab,
		length: length,
		counts: make(map[string][]uint64),
	}, nil
}

// VocabSize implements Model.
func (n *Ngram) VocabSize() int { return n.vocab }

// TrainedAt implements Model.
func (n *Ngram) TrainedAt() time.Time { return n.trainedAt }

// contextKey encodes the last k symbols of a sequence as a lookup key.
func contextKey(symbols []int, k int) string {
	tail := symbols[len(symbols)-k:]
	var b strings.Builder
	for i, s := range tail {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(s))
	}
	return b.String()
}

// Train tallies label follow counts for every context length up to
// ngramOrder. Counting is a single pass; epochs, learning rate, and batch
// size do not apply and are ignored.
func (n *Ngram) Train(ctx context.Context, windows []model.Window, opts TrainOptions) error {
	if len(windows) == 0 {
		return fmt.Errorf("seqmodel: no training windows")
	}
	for _, w := range windows {
		if err := checkSymbols(w.Symbols, n.length, n.vocab); err != nil {
			return err
		}
		if w.Label < 0 || w.Label >= n.vocab {
			return fmt.Errorf("seqmodel: label %d outside vocabulary of %d: %w",
				w.Label, n.vocab, model.ErrVocabularyMismatch)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, w := range windows {
		for k := 1; k <= ngramOrder && k <= len(w.Symbols); k++ {
			key := contextKey(w.Symbols, k)
			row := n.counts[key]
			if row == nil {
				row = make([]uint64, n.vocab)
				n.counts[key] = row
			}
			row[w.Label]++
		}
	}

	if opts.Progress != nil {
		opts.Progress(1, 1, 0)
	}
	n.trainedAt = time.Now()
	return nil
}

// Predict implements Model: the longest observed trailing context wins, with
// backoff to shorter contexts and finally to the uniform distribution.
// Add-one smoothing keeps every symbol's probability non-zero so the scores
// always form a valid distribution over the full vocabulary.
func (n *Ngram) Predict(symbols []int, k int) ([]model.Prediction, error) {
	if err := checkSymbols(symbols, n.length, n.vocab); err != nil {
		return nil, err
	}
	if err := checkK(k, n.vocab); err != nil {
		return nil, err
	}

	var row []uint64
	for order := ngramOrder; order >= 1; order-- {
		if order > len(symbols) {
			continue
		}
		if r, ok := n.counts[contextKey(symbols, order)]; ok {
			row = r
			break
		}
	}

	dist := make([]float64, n.vocab)
	total := uint64(0)
	if row != nil {
		for _, c := range row {
			total += c
		}
	}
	denom := float64(total) + float64(n.vocab)
	for i := range dist {
		c := uint64(0)
		if row != nil {
			c = row[i]
		}
		dist[i] = (float64(c) + 1) / denom
	}
	return topK(dist, k), nil
}

type ngramPayload struct {
	Counts map[string][]uint64 `cbor:"counts"`
}

// Save implements Model.
func (n *Ngram) Save(path string) error {
	payload, err := cbor.Marshal(ngramPayload{Counts: n.counts})
	if err != nil {
		return fmt.Errorf("seqmodel: encode ngram payload: %w", err)
	}
	return saveEnvelope(path, envelope{
		Kind:      "ngram",
		VocabSize: n.vocab,
		Length:    n.length,
		TrainedAt: n.trainedAt,
		Payload:   payload,
	})
}

func loadNgram(env envelope) (Model, error) {
	m, err := newNgram(env.VocabSize, env.Length)
	if err != nil {
		return nil, err
	}
	var payload ngramPayload
	if err := cbor.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode ngram payload: %w", err)
	}
	for key, row := range payload.Counts {
		if len(row) != env.VocabSize {
			return nil, fmt.Errorf("ngram row %q of %d symbols, need %d",
				key, len(row), env.VocabSize)
		}
	}
	if payload.Counts != nil {
		m.counts = payload.Counts
	}
	m.trainedAt = env.TrainedAt
	return m, nil
}
