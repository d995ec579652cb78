package model

// Window is an immutable training example or inference query: the cluster ids
// of L consecutive log lines plus the id of the line that followed them.
type Window struct {
	Symbols []int // exactly L leading cluster ids
	Label   int   // the (L+1)-th cluster id observed after Symbols
}

// MaxSymbol returns the largest cluster id referenced by the window,
// including the label. Used for vocabulary cross-checks before inference.
func (w Window) MaxSymbol() int {
	max := w.Label
	for _, s := range w.Symbols {
		if s > max {
			max = s
		}
	}
	return max
}
