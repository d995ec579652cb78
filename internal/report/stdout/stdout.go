// Package stdout implements a report sink that prints verdict lines to
// standard output.
package stdout

import (
	"fmt"
	"io"
	"os"

	"github.com/crimson-sun/sawmill/internal/model"
	"github.com/crimson-sun/sawmill/internal/report"
)

// Sink writes report lines to stdout (or any writer, for tests).
type Sink struct {
	w io.Writer
}

// New creates a stdout Sink.
func New() *Sink {
	return &Sink{w: os.Stdout}
}

// NewWriter creates a Sink over an arbitrary writer.
func NewWriter(w io.Writer) *Sink {
	return &Sink{w: w}
}

func (s *Sink) WriteVerdict(v model.Verdict) error {
	if _, err := fmt.Fprintln(s.w, report.FormatVerdict(v)); err != nil {
		return fmt.Errorf("stdout report: %w", err)
	}
	return nil
}

func (s *Sink) WriteSummary(anomalies []model.Verdict) error {
	if _, err := io.WriteString(s.w, report.FormatSummary(anomalies)); err != nil {
		return fmt.Errorf("stdout report: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return nil
}
