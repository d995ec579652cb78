// Package detect turns model predictions into binary anomaly verdicts.
package detect

import (
	"github.com/crimson-sun/sawmill/internal/metrics"
	"github.com/crimson-sun/sawmill/internal/model"
)

// DefaultTopK is the number of predicted continuations the actual symbol is
// checked against.
const DefaultTopK = 2

// Engine applies the membership test and aggregates run counters. The test
// is strict set membership: no smoothing, hysteresis, or score thresholds.
//
// Single-writer: Decide mutates the counters and window index.
type Engine struct {
	k        int
	next     int
	counters model.RunCounters
}

// New creates an Engine checking against the top k predictions. Window
// indices start at startIndex and increment per decision.
func New(k, startIndex int) *Engine {
	if k < 1 {
		k = DefaultTopK
	}
	return &Engine{k: k, next: startIndex}
}

// K reports the configured top-k width.
func (e *Engine) K() int { return e.k }

// Decide records a verdict for one window: anomalous if and only if the
// actual label is absent from the predicted set. Exactly one run counter is
// incremented and the decision is pushed to the metrics sink.
func (e *Engine) Decide(symbols []int, actual int, predicted []model.Prediction) model.Verdict {
	topk := make([]int, len(predicted))
	anomaly := true
	for i, p := range predicted {
		topk[i] = p.Symbol
		if p.Symbol == actual {
			anomaly = false
		}
	}

	v := model.Verdict{
		WindowIndex: e.next,
		Symbols:     symbols,
		Actual:      actual,
		PredictedK:  topk,
		IsAnomaly:   anomaly,
	}
	e.next++
	e.counters.Record(v)
	metrics.RecordVerdict(anomaly)
	return v
}

// Counters returns the aggregated totals for the run so far.
func (e *Engine) Counters() model.RunCounters {
	return e.counters
}
