package report

import (
	"io"
	"time"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// Writer defines the interface for report output.
// Implementations write crawl results in various formats.
type Writer interface {
	// Write outputs the full result to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(result *model.ScrapeResult) (int, error)

	// WriteSummary outputs only the completion totals.
	WriteSummary(summary model.Summary) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the result to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(result *model.ScrapeResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteSummary outputs the summary to all configured Writers.
func (m *MultiWriter) WriteSummary(summary model.Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSummary(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusText describes how the crawl ended.
func statusText(reason model.StopReason) string {
	switch reason {
	case model.StopDrained:
		return "Complete"
	case model.StopPageBudget:
		return "Complete (page budget reached)"
	case model.StopDeadline:
		return "Time budget exhausted (partial results)"
	case model.StopCancelled:
		return "Cancelled (partial results)"
	default:
		return "Unknown"
	}
}

// isPartial reports whether reason cut the crawl short.
func isPartial(reason model.StopReason) bool {
	return reason == model.StopDeadline || reason == model.StopCancelled
}

// riskLabel buckets a 0-100 risk score.
func riskLabel(a *model.EmailAnalysis) string {
	switch {
	case a == nil:
		return "-"
	case a.Failed():
		return "unknown"
	case a.RiskScore >= 60:
		return "high"
	case a.RiskScore >= 30:
		return "medium"
	default:
		return "low"
	}
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
