package sawmill_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/crimson-sun/sawmill/pkg/sawmill"
)

// jobCycle renders the i-th line of a fixed 5-step job sequence. The numeric
// suffix varies so every step generalizes into one template.
func jobCycle(i int) string {
	steps := []string{
		"start job %d",
		"load data %d",
		"process batch %d",
		"save result %d",
		"finish job %d",
	}
	return fmt.Sprintf(steps[i%len(steps)], i)
}

func trained(t *testing.T, observed int) *sawmill.Sawmill {
	t.Helper()
	s := sawmill.New(sawmill.WithWindowLength(3), sawmill.WithModelKind("ngram"))
	for i := 0; i < observed; i++ {
		if _, ok := s.Observe(jobCycle(i)); !ok {
			t.Fatalf("Observe(%q) skipped", jobCycle(i))
		}
	}
	if err := s.Train(context.Background()); err != nil {
		t.Fatalf("Train() error: %v", err)
	}
	return s
}

func TestObserveAssignsStableIDs(t *testing.T) {
	s := sawmill.New()

	a, ok := s.Observe("start job 1")
	if !ok {
		t.Fatal("Observe skipped a usable line")
	}
	b, _ := s.Observe("start job 2")
	if a != b {
		t.Errorf("same template got ids %d and %d", a, b)
	}
	c, _ := s.Observe("load data 1")
	if c == a {
		t.Errorf("distinct templates share id %d", c)
	}

	if _, ok := s.Observe("   "); ok {
		t.Error("Observe accepted a blank line")
	}

	clusters := s.Clusters()
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}
	if clusters[0].Template != "start job <*>" {
		t.Errorf("template = %q, want %q", clusters[0].Template, "start job <*>")
	}
	if clusters[0].Matches != 2 {
		t.Errorf("matches = %d, want 2", clusters[0].Matches)
	}
}

func TestTrainNeedsAFullWindow(t *testing.T) {
	s := sawmill.New(sawmill.WithWindowLength(3))
	for i := 0; i < 3; i++ {
		s.Observe(jobCycle(i))
	}
	if err := s.Train(context.Background()); err == nil {
		t.Fatal("Train() succeeded with fewer lines than one window")
	}

	if err := sawmill.New().Train(context.Background()); err == nil {
		t.Fatal("Train() succeeded with nothing observed")
	}
}

func TestJudgeBeforeTrain(t *testing.T) {
	s := sawmill.New(sawmill.WithWindowLength(3))
	s.Observe("start job 1")
	if _, _, err := s.Judge("start job 2"); !errors.Is(err, sawmill.ErrNotTrained) {
		t.Fatalf("Judge() before Train = %v, want ErrNotTrained", err)
	}
}

func TestJudgeDetectsOutOfOrderLines(t *testing.T) {
	s := trained(t, 20)

	// Warm-up: the first windowLength+1 lines fill the buffer.
	for i := 0; i < 4; i++ {
		if _, ok, err := s.Judge(jobCycle(i)); err != nil {
			t.Fatalf("Judge(%q) error: %v", jobCycle(i), err)
		} else if i < 3 && ok {
			t.Errorf("Judge emitted a verdict during warm-up at line %d", i)
		}
	}

	// On-pattern lines are normal.
	for i := 4; i < 10; i++ {
		v, ok, err := s.Judge(jobCycle(i))
		if err != nil || !ok {
			t.Fatalf("Judge(%q) = ok=%v err=%v", jobCycle(i), ok, err)
		}
		if v.Anomaly {
			t.Errorf("on-pattern line %d judged anomalous: %+v", i, v)
		}
	}

	// A step that repeats out of order is not among the top predictions.
	v, ok, err := s.Judge("process batch 99")
	if err != nil || !ok {
		t.Fatalf("Judge(out of order) = ok=%v err=%v", ok, err)
	}
	if !v.Anomaly {
		t.Errorf("out-of-order step judged normal: %+v", v)
	}
}

func TestJudgeSurfacesVocabularyDrift(t *testing.T) {
	s := trained(t, 20)
	for i := 0; i < 3; i++ {
		if _, _, err := s.Judge(jobCycle(i)); err != nil {
			t.Fatalf("Judge() error: %v", err)
		}
	}

	// A template never seen in training grows the vocabulary past what the
	// model was sized for. Once its id rolls into the window's leading
	// symbols the mismatch must surface, not be clamped away.
	if _, _, err := s.Judge("reticulate splines now"); err != nil {
		t.Fatalf("Judge() on the drift line itself errored early: %v", err)
	}
	var drift error
	for i := 3; i < 7; i++ {
		if _, _, err := s.Judge(jobCycle(i)); err != nil {
			drift = err
			break
		}
	}
	if drift == nil {
		t.Fatal("vocabulary drift never surfaced as an error")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := sawmill.New()
	for i := 0; i < 10; i++ {
		s.Observe(jobCycle(i))
	}
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}

	fresh := sawmill.New()
	if err := fresh.Restore(snap); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}

	got, want := fresh.Clusters(), s.Clusters()
	if len(got) != len(want) {
		t.Fatalf("restored %d clusters, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("cluster %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
