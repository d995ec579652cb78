package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crimson-sun/sawmill/internal/model"
)

func testVerdict(idx int, anomaly bool) model.Verdict {
	return model.Verdict{
		WindowIndex: idx,
		Symbols:     []int{1, 2, 3},
		Actual:      4,
		PredictedK:  []int{4, 0},
		IsAnomaly:   anomaly,
	}
}

func TestBatchFlushAtBatchSize(t *testing.T) {
	var mu sync.Mutex
	var received [][]verdictPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var batch []verdictPayload
		json.Unmarshal(body, &batch)
		mu.Lock()
		received = append(received, batch)
		mu.Unlock()
		w.WriteHeader(200)
	}))
	defer srv.Close()

	sink := New(srv.URL, WithBatchSize(3), WithFlushInterval(10*time.Second))

	for i := 0; i < 3; i++ {
		sink.WriteVerdict(testVerdict(i, false))
	}

	// Give the POST a moment to complete.
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(received))
	}
	if len(received[0]) != 3 {
		t.Errorf("batch size = %d, want 3", len(received[0]))
	}
	if received[0][0].Line != "Sequence 0: [1 2 3 4] - Normal" {
		t.Errorf("rendered line = %q", received[0][0].Line)
	}
}

func TestTimerFlushBeforeBatchSize(t *testing.T) {
	var mu sync.Mutex
	var received [][]verdictPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var batch []verdictPayload
		json.Unmarshal(body, &batch)
		mu.Lock()
		received = append(received, batch)
		mu.Unlock()
		w.WriteHeader(200)
	}))
	defer srv.Close()

	sink := New(srv.URL, WithBatchSize(100), WithFlushInterval(100*time.Millisecond))

	sink.WriteVerdict(testVerdict(0, false))

	// Wait for the timer to fire.
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 timer-triggered batch, got %d", len(received))
	}
	if len(received[0]) != 1 {
		t.Errorf("batch size = %d, want 1", len(received[0]))
	}
}

func TestSummaryFlushesPendingFirst(t *testing.T) {
	var mu sync.Mutex
	var bodies []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.WriteHeader(200)
	}))
	defer srv.Close()

	sink := New(srv.URL, WithBatchSize(100), WithFlushInterval(10*time.Second))
	sink.WriteVerdict(testVerdict(0, false))
	sink.WriteVerdict(testVerdict(1, true))

	if err := sink.WriteSummary([]model.Verdict{testVerdict(1, true)}); err != nil {
		t.Fatalf("WriteSummary() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 {
		t.Fatalf("expected pending batch then summary, got %d posts", len(bodies))
	}

	var sum summaryPayload
	if err := json.Unmarshal([]byte(bodies[1]), &sum); err != nil {
		t.Fatalf("summary did not decode: %v", err)
	}
	if sum.Anomalies != 1 || len(sum.Summary) != 1 {
		t.Errorf("summary = %+v, want 1 anomaly", sum)
	}
}

func TestRetryOn5xx(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n <= 2 {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	sink := New(srv.URL, WithBatchSize(1))
	sink.WriteVerdict(testVerdict(0, false))

	// Wait for retries to complete.
	time.Sleep(5 * time.Second)

	if attempts.Load() < 3 {
		t.Errorf("expected at least 3 attempts, got %d", attempts.Load())
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(400)
	}))
	defer srv.Close()

	sink := New(srv.URL, WithBatchSize(1))
	err := sink.WriteVerdict(testVerdict(0, false))

	time.Sleep(200 * time.Millisecond)

	if err == nil {
		t.Error("expected error for 400 response")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected exactly 1 attempt for 4xx, got %d", attempts.Load())
	}
}

func TestCustomHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("X-Custom-Auth")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	sink := New(srv.URL,
		WithBatchSize(1),
		WithHeaders(map[string]string{"X-Custom-Auth": "secret123"}),
	)

	sink.WriteVerdict(testVerdict(0, false))
	time.Sleep(100 * time.Millisecond)

	if gotAuth != "secret123" {
		t.Errorf("X-Custom-Auth = %q, want %q", gotAuth, "secret123")
	}
}

func TestCloseFlushesRemaining(t *testing.T) {
	var posts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	sink := New(srv.URL, WithBatchSize(100), WithFlushInterval(10*time.Second))
	sink.WriteVerdict(testVerdict(0, false))

	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if posts.Load() != 1 {
		t.Errorf("Close() left the batch unflushed, %d posts", posts.Load())
	}
}
