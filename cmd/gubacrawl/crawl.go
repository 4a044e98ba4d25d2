package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/gubacrawl/internal/config"
	"github.com/nao1215/gubacrawl/internal/crawler"
	"github.com/nao1215/gubacrawl/internal/database"
	"github.com/nao1215/gubacrawl/internal/fetch"
	"github.com/nao1215/gubacrawl/internal/metrics"
	"github.com/nao1215/gubacrawl/internal/model"
	"github.com/nao1215/gubacrawl/internal/pipeline"
	"github.com/nao1215/gubacrawl/internal/proxy"
	"github.com/nao1215/gubacrawl/internal/report"
	"github.com/nao1215/gubacrawl/internal/store"
)

// errTargetsFailed is returned when at least one target could not be crawled.
var errTargetsFailed = errors.New("some targets failed")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [target-id...]",
		Short: "Crawl the comment listing of one or more stock forums",
		Long: `Crawl fetches listing pages of each target until the listing is exhausted,
a full year of comments has been walked, or --max-pages is reached.
Comments are appended to comments_<target-id>.csv in the data directory.

Examples:
  # Crawl one stock forum
  gubacrawl crawl 601360

  # Crawl the first 20 pages of two forums without a proxy
  gubacrawl crawl --no-proxy --max-pages 20 601360 600000

  # Crawl every stock listed by the configured target source
  gubacrawl crawl --all

  # Write a Markdown report and expose Prometheus metrics
  gubacrawl crawl --report markdown --report-file report.md --metrics-addr :9090 601360

Proxy vendor credentials and database DSNs are read from the environment
(GUBACRAWL_PROXY_APP_KEY, GUBACRAWL_PROXY_APP_SECRET, GUBACRAWL_TARGETS_DSN)
or from a .env file, never from the configuration file.`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .gubacrawl.yaml in current or home directory)")
	cmd.Flags().String("env-file", config.DefaultEnvFile, "dotenv file with credentials")
	cmd.Flags().String("data-dir", config.XDGDataDir(), "Directory for CSV files and the history database")
	cmd.Flags().BoolP("all", "a", false, "Crawl every target id from the configured target source")

	cmd.Flags().IntP("max-pages", "p", 0, "Stop each crawl after this many pages (0 = unbounded)")
	cmd.Flags().Int("start-page", 1, "First listing page to fetch")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "Timeout for a single request attempt")

	cmd.Flags().Bool("no-proxy", false, "Connect directly even if a proxy source is configured")
	cmd.Flags().String("proxy-source", "", "Proxy source: xiang or static")

	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().StringP("report", "r", "", "Write a run report: markdown or json")
	cmd.Flags().StringP("report-file", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().Bool("history", true, "Record runs and mirror comments in the history database")
	cmd.Flags().Bool("no-history", false, "Disable the history database")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// buildConfig layers defaults, the config file, explicitly set flags and
// the environment, in that order.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicit --config must exist; the implicit lookup may find nothing.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if flags.Changed("data-dir") {
		if cfg.DataDir, err = flags.GetString("data-dir"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("max-pages") {
		if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("start-page") {
		if cfg.StartPage, err = flags.GetInt("start-page"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("proxy-source") {
		if cfg.Proxy.Source, err = flags.GetString("proxy-source"); err != nil {
			return nil, err
		}
	}
	if noProxy, _ := flags.GetBool("no-proxy"); noProxy {
		cfg.Proxy.Source = config.ProxySourceNone
	}
	if flags.Changed("history") {
		if cfg.History, err = flags.GetBool("history"); err != nil {
			return nil, err
		}
	}
	if noHistory, _ := flags.GetBool("no-history"); noHistory {
		cfg.History = false
	}

	if cfg.All, err = flags.GetBool("all"); err != nil {
		return nil, err
	}
	if cfg.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return nil, err
	}
	if cfg.ReportFormat, err = flags.GetString("report"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report-file"); err != nil {
		return nil, err
	}
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	envFile, err := flags.GetString("env-file")
	if err != nil {
		return nil, err
	}
	if err := config.LoadEnv(cfg, envFile); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg.Targets = args
	return cfg, nil
}

// runCrawl wires the crawl stack from cfg and crawls every target.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) error {
	ids, err := resolveTargets(ctx, cfg)
	if err != nil {
		return err
	}

	records, err := store.NewCSVStore(cfg.DataDir)
	if err != nil {
		return err
	}

	var history *database.HistoryDB
	if cfg.History {
		history, err = database.Open(cfg.DataDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer history.Close()
	}

	m := metrics.New()
	c, err := newCrawler(cfg, logger, m, records, history)
	if err != nil {
		return err
	}

	factory := func() *pipeline.Pipeline {
		p := pipeline.New(pipeline.WithLogger(logger))
		if cfg.All {
			p.AddSteps(pipeline.NewSkipCompleteStep(records,
				pipeline.WithThreshold(cfg.CompleteRowThreshold),
				pipeline.WithResetIncomplete(cfg.ResetIncomplete),
				pipeline.WithSkipLogger(logger),
			))
		}
		p.AddSteps(pipeline.NewCrawlStep(c, pipeline.WithOutputPath(records.Path)))
		if history != nil {
			p.AddFinalSteps(pipeline.NewRecordRunStep(history))
		}
		return p
	}

	batchOpts := []pipeline.BatchOption{
		pipeline.WithBatchLogger(logger),
		pipeline.WithBatchDelay(cfg.MinBatchDelay, cfg.MaxBatchDelay),
		pipeline.WithOnRun(m.ObserveRun),
	}
	if cfg.All {
		batchOpts = append(batchOpts, pipeline.WithBatchSize(cfg.BatchSize))
	} else {
		// Targets named on the command line run back to back.
		batchOpts = append(batchOpts, pipeline.WithBatchSize(len(ids)))
	}
	bp := pipeline.NewBatchProcessor(factory, batchOpts...)

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			return m.ListenAndServe(serverCtx, cfg.MetricsAddr)
		})
	}

	var summaries []*model.RunSummary
	g.Go(func() error {
		defer stopServer()
		var err error
		summaries, err = bp.Process(gctx, ids)
		return err
	})
	runErr := g.Wait()

	if _, err := report.NewSimpleWriter(stderr, report.WithVerbose(cfg.Verbose)).Write(summaries); err != nil {
		logger.Warn("failed to print summary", "error", err)
	}
	if err := writeReport(cfg, summaries, stdout); err != nil {
		return err
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("crawl interrupted; records written so far are kept")
		}
		return runErr
	}

	failed := 0
	for _, s := range summaries {
		if s != nil && s.StopReason == model.StopFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errTargetsFailed, failed, len(summaries))
	}
	return nil
}

// newCrawler builds the crawler session with its fetcher, proxy pool and sinks.
func newCrawler(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, records *store.CSVStore, history *database.HistoryDB) (*crawler.Crawler, error) {
	headers := fetch.NewHeaderPool(fetch.WithReferer(strings.TrimSuffix(cfg.BaseURL, "/") + "/"))
	fetcher := fetch.New(
		fetch.WithPolicy(fetch.Policy{MaxAttempts: cfg.MaxAttempts, Backoff: fetch.Linear(cfg.RetryStep), Sleep: crawler.Sleep}),
		fetch.WithHeaderPool(headers),
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithRetryHook(m.FetchRetried),
		fetch.WithLogger(logger),
	)

	var sink crawler.Sink = records
	if history != nil {
		sink = store.MultiSink{records, history}
	}

	opts := append(crawler.FromConfig(cfg),
		crawler.WithFetcher(fetcher),
		crawler.WithSink(sink),
		crawler.WithRecorder(m),
		crawler.WithLogger(logger),
	)

	pool, err := newProxyPool(cfg, logger)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		m.WatchProxyPool(pool.Stats)
		opts = append(opts, crawler.WithLeaser(pool))
	}
	return crawler.New(opts...), nil
}

// newProxyPool returns nil when proxies are disabled.
func newProxyPool(cfg *config.Config, logger *slog.Logger) (*proxy.Pool, error) {
	var src proxy.Source
	switch cfg.Proxy.Source {
	case config.ProxySourceNone:
		return nil, nil
	case config.ProxySourceXiang:
		src = proxy.NewXiangSource(cfg.Proxy.APIURL, cfg.Proxy.AppKey, cfg.Proxy.AppSecret, cfg.Proxy.APITimeout)
	case config.ProxySourceStatic:
		s, err := proxy.NewStaticSource(cfg.Proxy.StaticURLs)
		if err != nil {
			return nil, fmt.Errorf("failed to load static proxies: %w", err)
		}
		src = s
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProxySource, cfg.Proxy.Source)
	}
	return proxy.NewPool(src,
		proxy.WithRefetchInterval(cfg.Proxy.RefetchInterval),
		proxy.WithProbe(cfg.Timeout),
		proxy.WithLogger(logger),
	), nil
}

// resolveTargets returns the validated ids to crawl.
func resolveTargets(ctx context.Context, cfg *config.Config) ([]string, error) {
	if !cfg.All {
		ids := make([]string, 0, len(cfg.Targets))
		for _, t := range cfg.Targets {
			id, err := model.NormalizeTargetID(t)
			if err != nil {
				return nil, fmt.Errorf("invalid target id %q: %w", t, err)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	src, err := database.NewTargetSource(ctx, cfg.TargetSource)
	if err != nil {
		return nil, fmt.Errorf("failed to open target source: %w", err)
	}
	defer src.Close()

	ids, err := src.ListTargetIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list target ids: %w", err)
	}
	return ids, nil
}

// writeReport writes the requested report to the report file or stdout.
func writeReport(cfg *config.Config, summaries []*model.RunSummary, stdout io.Writer) error {
	if cfg.ReportFormat == config.ReportFormatNone {
		return nil
	}

	out := stdout
	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}
		f, err := os.Create(cfg.ReportFile) //nolint:gosec // user-chosen report path
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	w, err := report.New(cfg.ReportFormat, out, getVersion())
	if err != nil {
		return err
	}
	if _, err := w.Write(summaries); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
