package report

import (
	"encoding/json"
	"io"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// JSONWriter outputs results in JSON format, the document the
// orchestration layer consumes.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the full result in JSON format.
func (w *JSONWriter) Write(result *model.ScrapeResult) (int, error) {
	return w.writeJSON(result)
}

// WriteSummary outputs the summary in JSON format.
func (w *JSONWriter) WriteSummary(summary model.Summary) (int, error) {
	return w.writeJSON(summary)
}

// writeJSON marshals v and writes it with a trailing newline.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}

// JSONReport wraps a result with the tool version and its summary.
type JSONReport struct {
	// Version is the prospectcrawl version that produced the result.
	Version string `json:"version"`

	// Summary holds the completion totals.
	Summary model.Summary `json:"summary"`

	// Result is the full crawl result.
	Result *model.ScrapeResult `json:"result"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(result *model.ScrapeResult, version string) *JSONReport {
	return &JSONReport{
		Version: version,
		Summary: result.Summary(),
		Result:  result,
	}
}

// FullJSONWriter outputs results wrapped in a JSONReport.
type FullJSONWriter struct {
	*JSONWriter

	version string
}

// NewFullJSONWriter creates a writer for results with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the result wrapped with metadata.
func (w *FullJSONWriter) Write(result *model.ScrapeResult) (int, error) {
	return w.writeJSON(NewJSONReport(result, w.version))
}
