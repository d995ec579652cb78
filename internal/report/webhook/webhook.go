// Package webhook implements a report sink that POSTs batched verdicts to an
// HTTP endpoint.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crimson-sun/sawmill/internal/model"
	"github.com/crimson-sun/sawmill/internal/report"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
	defaultTimeout       = 10 * time.Second
	maxRetries           = 3
)

// Option configures a webhook Sink.
type Option func(*Sink)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(s *Sink) { s.headers = h }
}

// WithBatchSize sets the number of verdicts accumulated before a flush. Default: 50.
func WithBatchSize(n int) Option {
	return func(s *Sink) { s.batchSize = n }
}

// WithFlushInterval sets the maximum time between flushes. Default: 5s.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Sink) { s.flushInterval = d }
}

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) { s.client.Timeout = d }
}

// WithOnError sets a callback invoked when a timer-triggered flush fails.
// Default: logs a warning.
func WithOnError(f func(error)) Option {
	return func(s *Sink) { s.errFunc = f }
}

type verdictPayload struct {
	WindowIndex int    `json:"windowIndex"`
	Symbols     []int  `json:"symbols"`
	Actual      int    `json:"actual"`
	PredictedK  []int  `json:"predictedK"`
	Anomaly     bool   `json:"anomaly"`
	Line        string `json:"line"` // the canonical report rendering
}

type summaryPayload struct {
	Summary   []verdictPayload `json:"summary"`
	Anomalies int              `json:"anomalies"`
}

// Sink POSTs batched verdicts to an HTTP endpoint as a JSON array. Verdicts
// accumulate in an internal buffer and are flushed when batchSize is reached
// or flushInterval elapses. Retries on 5xx with exponential backoff.
type Sink struct {
	client        *http.Client
	url           string
	headers       map[string]string
	batchSize     int
	flushInterval time.Duration
	errFunc       func(error)
	mu            sync.Mutex
	pending       []verdictPayload
	timer         *time.Timer
}

// New creates a webhook sink targeting the given URL.
func New(url string, opts ...Option) *Sink {
	s := &Sink{
		client:        &http.Client{Timeout: defaultTimeout},
		url:           url,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		errFunc:       func(err error) { log.Warn().Err(err).Msg("webhook flush error") },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func payloadFrom(v model.Verdict) verdictPayload {
	return verdictPayload{
		WindowIndex: v.WindowIndex,
		Symbols:     v.Symbols,
		Actual:      v.Actual,
		PredictedK:  v.PredictedK,
		Anomaly:     v.IsAnomaly,
		Line:        report.FormatVerdict(v),
	}
}

// WriteVerdict appends a verdict to the batch. When batchSize is reached,
// the batch is flushed immediately. A timer is started on the first verdict
// to ensure the batch flushes even if batchSize is never reached.
func (s *Sink) WriteVerdict(v model.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, payloadFrom(v))

	if len(s.pending) >= s.batchSize {
		return s.flushLocked()
	}

	// Start timer on first verdict in a new batch.
	if len(s.pending) == 1 {
		s.timer = time.AfterFunc(s.flushInterval, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if err := s.flushLocked(); err != nil {
				s.errFunc(err)
			}
		})
	}
	return nil
}

// WriteSummary flushes any pending verdicts, then posts the phase summary as
// a single object.
func (s *Sink) WriteSummary(anomalies []model.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		return err
	}

	sum := summaryPayload{Summary: make([]verdictPayload, len(anomalies)), Anomalies: len(anomalies)}
	for i, v := range anomalies {
		sum.Summary[i] = payloadFrom(v)
	}
	body, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("webhook: marshal summary: %w", err)
	}
	return s.postWithRetry(body)
}

// Close flushes any remaining verdicts and stops the timer.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.flushLocked()
}

// flushLocked sends the pending batch via HTTP POST. Caller must hold s.mu.
func (s *Sink) flushLocked() error {
	if len(s.pending) == 0 {
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	batch := s.pending
	s.pending = nil

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	return s.postWithRetry(body)
}

// postWithRetry sends the body via HTTP POST with retry on 5xx.
func (s *Sink) postWithRetry(body []byte) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(1<<(attempt-1)) * time.Second)
		}

		req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range s.headers {
			req.Header.Set(k, v)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("webhook: HTTP %d", resp.StatusCode)

		// Only retry on 5xx server errors.
		if resp.StatusCode < 500 {
			return lastErr
		}
	}
	return lastErr
}
