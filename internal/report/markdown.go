package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/gubacrawl/internal/model"
)

const defaultMarkdownTitle = "gubacrawl run report"

// MarkdownWriter outputs runs as a GitHub-flavored Markdown document.
type MarkdownWriter struct {
	output  io.Writer
	title   string
	details bool
}

// MarkdownOption configures a MarkdownWriter.
type MarkdownOption func(*MarkdownWriter)

// WithTitle replaces the document heading.
func WithTitle(title string) MarkdownOption {
	return func(w *MarkdownWriter) {
		if title != "" {
			w.title = title
		}
	}
}

// WithDetails controls the per-run outcome sections. They are on by default.
func WithDetails(details bool) MarkdownOption {
	return func(w *MarkdownWriter) {
		w.details = details
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownOption) *MarkdownWriter {
	w := &MarkdownWriter{output: output, title: defaultMarkdownTitle, details: true}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write renders runs.
func (w *MarkdownWriter) Write(runs []*model.RunSummary) (int, error) {
	runs = nonNil(runs)
	totals := Summarize(runs)
	md := markdown.NewMarkdown(w.output)

	md.H1(w.title)
	md.PlainText("")

	if len(runs) == 0 {
		md.Note("No crawl runs recorded.")
		return len(md.String()), md.Build()
	}

	w.writeTotals(md, totals)
	w.writeAlert(md, runs)
	w.writeRuns(md, runs)
	if len(totals.StopReasons) > 1 {
		w.writeStopReasonChart(md, totals)
	}
	if w.details {
		w.writeDetails(md, runs)
	}
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeTotals(md *markdown.Markdown, t Totals) {
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Targets", strconv.Itoa(t.Targets)},
			{"Pages fetched", strconv.Itoa(t.Pages)},
			{"Records", strconv.Itoa(t.Records)},
			{"Persist errors", strconv.Itoa(t.PersistErrors)},
			{"Proxy rotations", strconv.Itoa(t.ProxyRotations)},
			{"Total crawl time", formatDuration(t.Duration)},
		},
	})
	md.PlainText("")
}

// writeAlert flags runs that did not finish normally.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, runs []*model.RunSummary) {
	var failed, cancelled, persist int
	for _, r := range runs {
		switch r.StopReason {
		case model.StopFailed:
			failed++
		case model.StopCancelled:
			cancelled++
		}
		if r.PersistErrors > 0 {
			persist++
		}
	}
	switch {
	case failed > 0:
		md.Cautionf("%d target(s) could not be crawled.", failed)
	case cancelled > 0:
		md.Warningf("%d crawl(s) were cancelled; their records are partial.", cancelled)
	case persist > 0:
		md.Importantf("%d crawl(s) could not store every page.", persist)
	default:
		md.Tip("Every crawl finished normally.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeRuns(md *markdown.Markdown, runs []*model.RunSummary) {
	md.H2("Runs")
	md.PlainText("")

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			"`" + r.TargetID + "`",
			r.StartedAt.Format("2006-01-02 15:04:05 MST"),
			string(r.StopReason),
			strconv.Itoa(r.PagesFetched),
			strconv.Itoa(r.Records),
			strconv.Itoa(r.ProxyRotations),
			formatDuration(r.Duration()),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Target", "Started", "Stop reason", "Pages", "Records", "Rotations", "Duration"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeStopReasonChart(md *markdown.Markdown, t Totals) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Stop reasons"),
		piechart.WithShowData(true),
	)
	for _, reason := range t.sortedReasons() {
		chart.LabelAndIntValue(reason, uint64(t.StopReasons[reason])) //nolint:gosec // counts are non-negative
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeDetails(md *markdown.Markdown, runs []*model.RunSummary) {
	md.H2("Details")
	md.PlainText("")

	for _, r := range runs {
		md.H3(r.TargetID)
		md.PlainText("")

		props := [][]string{
			{"Run ID", "`" + r.RunID + "`"},
			{"Pages", strconv.Itoa(r.StartPage) + " to " + strconv.Itoa(r.LastPage)},
		}
		if r.OutputFile != "" {
			props = append(props, []string{"Output", "`" + r.OutputFile + "`"})
		}
		if r.Error != "" {
			props = append(props, []string{"Error", r.Error})
		}
		md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: props})
		md.PlainText("")

		if r.PagesFetched == 0 {
			continue
		}
		outcomes := make([][]string, 0, len(model.PageOutcomes))
		for _, o := range model.PageOutcomes {
			if n := r.OutcomeCount(o); n > 0 {
				outcomes = append(outcomes, []string{o.String(), strconv.Itoa(n)})
			}
		}
		md.Table(markdown.TableSet{Header: []string{"Page outcome", "Count"}, Rows: outcomes})
		md.PlainText("")
	}
}
