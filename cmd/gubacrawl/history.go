package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/gubacrawl/internal/config"
	"github.com/nao1215/gubacrawl/internal/database"
	"github.com/nao1215/gubacrawl/internal/model"
	"github.com/nao1215/gubacrawl/internal/report"
)

// defaultHistoryLimit is how many runs history prints by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [target-id]",
		Short: "Show recent crawl runs",
		Long: `History prints the most recent crawl runs recorded in the history database
as a Markdown report. With a target id, only that target's runs are shown.

Examples:
  # Show the last 20 runs
  gubacrawl history

  # Show every run of one target as JSON
  gubacrawl history --limit 0 --json 601360`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("data-dir", config.XDGDataDir(), "Directory holding the history database")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Maximum number of runs to show (0 = all)")
	cmd.Flags().BoolP("json", "j", false, "Print JSON instead of Markdown")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	db, err := database.Open(dataDir, database.Options{CreateIfNotExists: false})
	if err != nil {
		if errors.Is(err, database.ErrHistoryNotFound) {
			return fmt.Errorf("no crawl history yet in %s: run gubacrawl crawl first", dataDir)
		}
		return err
	}
	defer db.Close()

	var (
		runs  []*model.RunSummary
		title = "Recent crawl runs"
	)
	if len(args) == 1 {
		id, err := model.NormalizeTargetID(args[0])
		if err != nil {
			return fmt.Errorf("invalid target id %q: %w", args[0], err)
		}
		runs, err = db.RunsForTarget(cmd.Context(), id, limit)
		if err != nil {
			return err
		}
		title = "Crawl runs of " + id
	} else {
		runs, err = db.RecentRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
	}

	var w report.Writer
	if asJSON {
		w = report.NewJSONWriter(cmd.OutOrStdout(), report.WithPrettyPrint(), report.WithVersion(getVersion()))
	} else {
		w = report.NewMarkdownWriter(cmd.OutOrStdout(), report.WithTitle(title), report.WithDetails(false))
	}
	_, err = w.Write(runs)
	return err
}
