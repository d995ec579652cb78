// Package report defines the sink for per-window verdict lines and the
// trailing anomaly summary.
package report

import (
	"fmt"
	"strings"

	"github.com/crimson-sun/sawmill/internal/model"
)

// Sink receives one line per processed window plus, at phase end, a summary
// block of the anomalous windows.
type Sink interface {
	WriteVerdict(v model.Verdict) error
	WriteSummary(anomalies []model.Verdict) error
	Close() error
}

// FormatVerdict renders the canonical per-window report line.
func FormatVerdict(v model.Verdict) string {
	label := "Normal"
	if v.IsAnomaly {
		label = "Anomaly"
	}
	return fmt.Sprintf("Sequence %d: %s - %s", v.WindowIndex, formatSymbols(v), label)
}

// FormatSummary renders the trailing block listing anomalous window indices.
func FormatSummary(anomalies []model.Verdict) string {
	var b strings.Builder
	b.WriteString("\nSummary of detected anomalies:\n")
	for _, v := range anomalies {
		fmt.Fprintf(&b, "Sequence %d: %s\n", v.WindowIndex, formatSymbols(v))
	}
	return b.String()
}

// formatSymbols renders the window's symbols and label as one bracketed id
// list, the full run of ids the verdict was made over.
func formatSymbols(v model.Verdict) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, s := range v.Symbols {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", s)
	}
	if len(v.Symbols) > 0 {
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%d]", v.Actual)
	return b.String()
}
