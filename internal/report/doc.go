// Package report renders run summaries.
//
// Three writers share the Writer interface:
//   - MarkdownWriter: tables, a stop-reason chart and per-run details
//   - JSONWriter: the runs plus totals, for other tools
//   - SimpleWriter: a short plain text table for the terminal
package report
