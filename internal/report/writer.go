package report

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/nao1215/gubacrawl/internal/config"
	"github.com/nao1215/gubacrawl/internal/model"
)

// ErrUnknownFormat is returned by New for an unsupported report format.
var ErrUnknownFormat = errors.New("unknown report format")

// Writer writes a report for a set of runs.
type Writer interface {
	// Write renders runs and returns the number of bytes written.
	Write(runs []*model.RunSummary) (int, error)
}

// New returns the writer for format ("markdown" or "json").
func New(format string, output io.Writer, version string) (Writer, error) {
	switch format {
	case config.ReportFormatMarkdown:
		return NewMarkdownWriter(output), nil
	case config.ReportFormatJSON:
		return NewJSONWriter(output, WithPrettyPrint(), WithVersion(version)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes the same runs to several writers and stops on the
// first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write renders runs with every writer and returns the total bytes written.
func (m *MultiWriter) Write(runs []*model.RunSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(runs)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Totals aggregates a set of runs.
type Totals struct {
	Targets        int            `json:"targets"`
	Pages          int            `json:"pages"`
	Records        int            `json:"records"`
	PersistErrors  int            `json:"persist_errors"`
	ProxyRotations int            `json:"proxy_rotations"`
	StopReasons    map[string]int `json:"stop_reasons"`
	Duration       time.Duration  `json:"duration_ns"`
}

// Summarize computes the totals of runs. Nil entries are ignored.
func Summarize(runs []*model.RunSummary) Totals {
	t := Totals{StopReasons: make(map[string]int)}
	for _, r := range runs {
		if r == nil {
			continue
		}
		t.Targets++
		t.Pages += r.PagesFetched
		t.Records += r.Records
		t.PersistErrors += r.PersistErrors
		t.ProxyRotations += r.ProxyRotations
		t.StopReasons[string(r.StopReason)]++
		t.Duration += r.Duration()
	}
	return t
}

// stopReasonOrder is the display order of stop reasons.
var stopReasonOrder = []model.StopReason{
	model.StopWraparound,
	model.StopExhausted,
	model.StopMaxPages,
	model.StopSkipped,
	model.StopCancelled,
	model.StopFailed,
}

// sortedReasons returns the reasons present in t, known ones first.
func (t Totals) sortedReasons() []string {
	out := make([]string, 0, len(t.StopReasons))
	for _, r := range stopReasonOrder {
		if t.StopReasons[string(r)] > 0 {
			out = append(out, string(r))
		}
	}
	var rest []string
	for r, n := range t.StopReasons {
		if n > 0 && !slices.Contains(out, r) {
			rest = append(rest, r)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

// nonNil drops nil entries.
func nonNil(runs []*model.RunSummary) []*model.RunSummary {
	out := make([]*model.RunSummary, 0, len(runs))
	for _, r := range runs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// formatDuration rounds d for display.
func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
