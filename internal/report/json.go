package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/gubacrawl/internal/model"
)

// JSONWriter outputs runs as a single JSON document.
type JSONWriter struct {
	output  io.Writer
	indent  string
	version string
	now     func() time.Time
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint indents the output with two spaces.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = "  "
	}
}

// WithVersion records the program version in the document.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// WithClock sets the clock for the generated_at field.
func WithClock(now func() time.Time) JSONWriterOption {
	return func(w *JSONWriter) {
		if now != nil {
			w.now = now
		}
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{output: output, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport is the document written by JSONWriter.
type JSONReport struct {
	Version     string              `json:"version,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
	Totals      Totals              `json:"totals"`
	Runs        []*model.RunSummary `json:"runs"`
}

// Write outputs runs with their totals.
func (w *JSONWriter) Write(runs []*model.RunSummary) (int, error) {
	runs = nonNil(runs)
	doc := JSONReport{
		Version:     w.version,
		GeneratedAt: w.now().UTC(),
		Totals:      Summarize(runs),
		Runs:        runs,
	}

	var (
		data []byte
		err  error
	)
	if w.indent != "" {
		data, err = json.MarshalIndent(doc, "", w.indent)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
