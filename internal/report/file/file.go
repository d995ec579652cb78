// Package file implements an append-only report sink backed by a buffered
// file.
package file

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/crimson-sun/sawmill/internal/model"
	"github.com/crimson-sun/sawmill/internal/report"
)

const defaultBufSize = 64 * 1024 // 64KB

// Sink appends report lines to a file with buffered I/O. Safe for use from
// the single pipeline goroutine plus a closer.
type Sink struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// New opens (or creates) the report file for appending.
func New(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("report file: open %s: %w", path, err)
	}
	return &Sink{f: f, w: bufio.NewWriterSize(f, defaultBufSize)}, nil
}

// WriteVerdict appends one report line.
func (s *Sink) WriteVerdict(v model.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteString(report.FormatVerdict(v) + "\n"); err != nil {
		return fmt.Errorf("report file: write: %w", err)
	}
	return nil
}

// WriteSummary appends the trailing anomaly summary block and flushes, so a
// completed phase is durable even while the sink stays open for MONITOR.
func (s *Sink) WriteSummary(anomalies []model.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteString(report.FormatSummary(anomalies)); err != nil {
		return fmt.Errorf("report file: write summary: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("report file: flush: %w", err)
	}
	return nil
}

// Close flushes the buffer and closes the file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("report file: flush: %w", err)
	}
	return s.f.Close()
}
