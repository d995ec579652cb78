package model

// Prediction is one ranked candidate for the next symbol.
type Prediction struct {
	Symbol int
	Score  float64 // probability mass assigned by the model
}

// Verdict is the outcome of checking one window against the model's top-k
// predicted continuations. Append-only; never mutated after creation.
type Verdict struct {
	WindowIndex int
	Symbols     []int
	Actual      int
	PredictedK  []int
	IsAnomaly   bool
}

// RunCounters aggregates verdicts over the lifetime of a detection run.
type RunCounters struct {
	NormalTotal  int
	AnomalyTotal int
}

// Record increments exactly one counter based on the verdict.
func (rc *RunCounters) Record(v Verdict) {
	if v.IsAnomaly {
		rc.AnomalyTotal++
	} else {
		rc.NormalTotal++
	}
}
