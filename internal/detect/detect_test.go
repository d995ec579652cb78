package detect

import (
	"reflect"
	"testing"

	"github.com/crimson-sun/sawmill/internal/model"
)

func preds(symbols ...int) []model.Prediction {
	out := make([]model.Prediction, len(symbols))
	for i, s := range symbols {
		out[i] = model.Prediction{Symbol: s, Score: 0.5}
	}
	return out
}

func TestDecideMembership(t *testing.T) {
	e := New(2, 0)

	v := e.Decide([]int{1, 2, 3}, 3, preds(3, 7))
	if v.IsAnomaly {
		t.Fatal("actual in top-k judged anomalous")
	}

	v = e.Decide([]int{1, 2, 3}, 9, preds(3, 7))
	if !v.IsAnomaly {
		t.Fatal("actual outside top-k judged normal")
	}

	c := e.Counters()
	if c.NormalTotal != 1 || c.AnomalyTotal != 1 {
		t.Fatalf("counters = %+v, want one of each", c)
	}
}

func TestDecideVerdictFields(t *testing.T) {
	e := New(2, 250)
	v := e.Decide([]int{4, 5}, 6, preds(6, 1))
	if v.WindowIndex != 250 {
		t.Fatalf("WindowIndex = %d, want 250", v.WindowIndex)
	}
	if !reflect.DeepEqual(v.PredictedK, []int{6, 1}) {
		t.Fatalf("PredictedK = %v", v.PredictedK)
	}
	if v.Actual != 6 {
		t.Fatalf("Actual = %d", v.Actual)
	}

	v = e.Decide([]int{5, 6}, 0, preds(1, 2))
	if v.WindowIndex != 251 {
		t.Fatalf("second WindowIndex = %d, want 251", v.WindowIndex)
	}
}

func TestExactlyOneCounterPerVerdict(t *testing.T) {
	e := New(2, 0)
	for i := 0; i < 10; i++ {
		e.Decide([]int{0}, i%3, preds(0, 1))
	}
	c := e.Counters()
	if c.NormalTotal+c.AnomalyTotal != 10 {
		t.Fatalf("counters sum to %d, want 10", c.NormalTotal+c.AnomalyTotal)
	}
}
