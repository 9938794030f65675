package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aluiziolira/bookscrape/config"
	"github.com/aluiziolira/bookscrape/eventlog"
	"github.com/aluiziolira/bookscrape/models"
	"github.com/aluiziolira/bookscrape/pipeline"
	"github.com/aluiziolira/bookscrape/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const defaultConfigFile = "bookscrape.json5"

type options struct {
	configFile      string
	baseURL         string
	startURL        string
	pages           int
	delay           time.Duration
	randomDelay     time.Duration
	detailDelay     time.Duration
	noDetails       bool
	timeout         time.Duration
	maxRetries      int
	retryBackoff    time.Duration
	retryBackoffMax time.Duration
	abortThreshold  int
	output          string
	format          string
	logFile         string
	userAgent       string
	respectRobots   bool
	metricsAddr     string
	verbose         bool

	// transport overrides the HTTP transport; tests only.
	transport http.RoundTripper
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	defaults := config.DefaultConfig()

	root := &cobra.Command{
		Use:           "bookscrape",
		Short:         "bookscrape crawls a paginated book catalogue into CSV and JSON.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(opts, cmd.Flags().Changed)
			if err != nil {
				return err
			}
			logger, level := newLogger(cfg.Verbose)
			slog.SetDefault(logger)
			slog.SetLogLoggerLevel(level.Level())

			_, _, err = runScrape(cmd.Context(), cfg, opts.transport, cmd.OutOrStdout())
			return err
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", defaultConfigFile, "json5 config file; <name>.local.json5 overrides it")
	flags.StringVar(&opts.baseURL, "base-url", defaults.BaseURL, "Catalogue site root")
	flags.StringVar(&opts.startURL, "start-url", "", "First catalogue page (defaults to the base URL)")
	flags.IntVar(&opts.pages, "pages", defaults.MaxPages, "Maximum catalogue pages to scrape")
	flags.DurationVar(&opts.delay, "delay", defaults.Delay, "Minimum pause between catalogue pages")
	flags.DurationVar(&opts.randomDelay, "random-delay", defaults.RandomDelay, "Random jitter added to the page delay")
	flags.DurationVar(&opts.detailDelay, "detail-delay", defaults.DetailDelay, "Pause before each product page request")
	flags.BoolVar(&opts.noDetails, "no-details", false, "Skip product pages; listing fields only")
	flags.DurationVar(&opts.timeout, "timeout", defaults.Timeout, "Per-request timeout")
	flags.IntVar(&opts.maxRetries, "max-retries", defaults.MaxRetries, "Retries after the first attempt for transient failures")
	flags.DurationVar(&opts.retryBackoff, "retry-backoff", defaults.RetryBackoff, "Initial retry backoff")
	flags.DurationVar(&opts.retryBackoffMax, "retry-backoff-max", defaults.RetryBackoffMax, "Maximum retry backoff")
	flags.IntVar(&opts.abortThreshold, "abort-threshold", defaults.AbortThreshold, "Consecutive page failures before the crawl aborts")
	flags.StringVar(&opts.output, "output", defaults.OutputFile, "Output file path")
	flags.StringVar(&opts.format, "format", defaults.OutputFormat, "Output format: csv, json, or dual")
	flags.StringVar(&opts.logFile, "log-file", defaults.LogFile, "Append-only crawl log")
	flags.StringVar(&opts.userAgent, "user-agent", defaults.UserAgent, "User-Agent header")
	flags.BoolVar(&opts.respectRobots, "respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(newConfigCmd(opts))
	return root
}

// resolveConfig layers defaults, the config file, SCRAPER_* variables and
// explicitly set flags, in that order.
func resolveConfig(opts *options, changed func(string) bool) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if opts.configFile != "" {
		err := config.LoadFile(cfg, opts.configFile)
		switch {
		case errors.Is(err, os.ErrNotExist) && !changed("config"):
		case err != nil:
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if changed("base-url") {
		cfg.BaseURL = opts.baseURL
	}
	if changed("start-url") {
		cfg.StartURL = opts.startURL
	}
	if changed("pages") {
		cfg.MaxPages = opts.pages
	}
	if changed("delay") {
		cfg.Delay = opts.delay
	}
	if changed("random-delay") {
		cfg.RandomDelay = opts.randomDelay
	}
	if changed("detail-delay") {
		cfg.DetailDelay = opts.detailDelay
	}
	if changed("no-details") {
		cfg.FollowDetails = !opts.noDetails
	}
	if changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if changed("max-retries") {
		cfg.MaxRetries = opts.maxRetries
	}
	if changed("retry-backoff") {
		cfg.RetryBackoff = opts.retryBackoff
	}
	if changed("retry-backoff-max") {
		cfg.RetryBackoffMax = opts.retryBackoffMax
	}
	if changed("abort-threshold") {
		cfg.AbortThreshold = opts.abortThreshold
	}
	if changed("output") {
		cfg.OutputFile = opts.output
	}
	if changed("format") {
		cfg.OutputFormat = opts.format
	}
	if changed("log-file") {
		cfg.LogFile = opts.logFile
	}
	if changed("user-agent") {
		cfg.UserAgent = opts.userAgent
	}
	if changed("respect-robots") {
		cfg.RespectRobotsTxt = opts.respectRobots
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runScrape crawls and always persists what it collected. Only setup and
// output failures are returned as errors; an aborted crawl is not one.
func runScrape(ctx context.Context, cfg *config.Config, transport http.RoundTripper, out io.Writer) (*models.CrawlResult, pipeline.Manifest, error) {
	sink, err := eventlog.OpenFile(cfg.LogFile)
	if err != nil {
		return nil, pipeline.Manifest{}, err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("close crawl log", slog.Any("error", err))
		}
	}()

	metrics := scraper.NewMetrics()
	fetcher, err := scraper.NewFetcher(cfg, sink, metrics)
	if err != nil {
		return nil, pipeline.Manifest{}, fmt.Errorf("initialising fetcher: %w", err)
	}
	if transport != nil {
		fetcher.WithTransport(transport)
	}

	stopMetrics := serveMetrics(cfg.MetricsAddr, metrics)
	defer stopMetrics()

	slog.Info("starting scrape",
		slog.String("entry_url", cfg.EntryURL()),
		slog.Int("pages", cfg.MaxPages),
		slog.Duration("delay", cfg.Delay),
		slog.Bool("follow_details", cfg.FollowDetails),
	)

	s := scraper.NewScraper(cfg, fetcher, sink, metrics)
	result, err := s.Run(ctx)
	if err != nil {
		return nil, pipeline.Manifest{}, fmt.Errorf("scraping failed: %w", err)
	}
	if !result.Status.Complete() {
		slog.Warn("crawl aborted, persisting partial output", slog.String("reason", result.AbortReason))
	}

	manifest, err := pipeline.Save(cfg, result)
	if err != nil {
		return result, pipeline.Manifest{}, fmt.Errorf("persist output: %w", err)
	}

	printSummary(out, result, manifest, cfg.ManifestFile())
	return result, manifest, nil
}

func serveMetrics(addr string, metrics *scraper.Metrics) func() {
	if addr == "" || metrics == nil {
		return func() {}
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
