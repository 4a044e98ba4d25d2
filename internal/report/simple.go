package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/gubacrawl/internal/model"
)

const ruleWidth = 72

// SimpleWriter prints a compact plain text summary for the terminal.
type SimpleWriter struct {
	output  io.Writer
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose adds run ids, output files and errors.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{output: output}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write prints one line per run followed by the totals.
func (w *SimpleWriter) Write(runs []*model.RunSummary) (int, error) {
	runs = nonNil(runs)
	var sb strings.Builder

	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	fmt.Fprintf(&sb, "%-12s %-11s %7s %9s %9s %10s\n", "TARGET", "STOP", "PAGES", "RECORDS", "ROTATIONS", "DURATION")
	sb.WriteString(strings.Repeat("-", ruleWidth) + "\n")

	for _, r := range runs {
		fmt.Fprintf(&sb, "%-12s %-11s %7d %9d %9d %10s\n",
			r.TargetID, r.StopReason, r.PagesFetched, r.Records, r.ProxyRotations, formatDuration(r.Duration()))
		if w.verbose {
			fmt.Fprintf(&sb, "  run %s\n", r.RunID)
			if r.OutputFile != "" {
				fmt.Fprintf(&sb, "  output %s\n", r.OutputFile)
			}
			if r.Error != "" {
				fmt.Fprintf(&sb, "  error %s\n", r.Error)
			}
		}
	}

	t := Summarize(runs)
	sb.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	fmt.Fprintf(&sb, "%-12s %-11s %7d %9d %9d %10s\n",
		"TOTAL", fmt.Sprintf("%d run(s)", t.Targets), t.Pages, t.Records, t.ProxyRotations, formatDuration(t.Duration))
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")

	return io.WriteString(w.output, sb.String())
}
