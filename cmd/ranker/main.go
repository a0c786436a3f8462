package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/aluiziolira/go-wb-ranker/history"
	"github.com/aluiziolira/go-wb-ranker/keywords"
	"github.com/aluiziolira/go-wb-ranker/parser"
	"github.com/aluiziolira/go-wb-ranker/ranking"
	"github.com/aluiziolira/go-wb-ranker/report"
	"github.com/aluiziolira/go-wb-ranker/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func main() {
	product := flag.String("product", "", "Target product id or marketplace product URL")
	keywordSource := flag.String("keywords", "", "Keyword file (CSV/XLSX) path or URL")
	configPath := flag.String("config", "", "Optional YAML config file")
	maxPages := flag.Int("pages", 0, "Maximum result pages per keyword (1-10)")
	parallelism := flag.Int("parallel", 0, "Concurrent keyword searches (1-20)")
	outputFormat := flag.String("format", "", "Output format: csv, xlsx, json, or dual")
	outputDir := flag.String("output-dir", "", "Directory for report files")
	maxKeywords := flag.Int("max-keywords", 0, "Maximum keywords per run")
	noDedupe := flag.Bool("no-dedupe", false, "Keep duplicate keywords")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	historyDB := flag.String("history-db", "", "SQLite file recording every run")
	showHistory := flag.Bool("history", false, "Print recent runs for -product and exit")
	schedule := flag.String("schedule", "", "Cron spec for repeated runs (e.g. \"0 9 * * *\")")
	healthcheck := flag.Bool("healthcheck", false, "Check the search API and exit")

	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := config.LoadFile(*configPath, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, flagOverrides{
		maxPages:     *maxPages,
		parallelism:  *parallelism,
		outputFormat: *outputFormat,
		outputDir:    *outputDir,
		maxKeywords:  *maxKeywords,
		noDedupe:     *noDedupe,
		verbose:      *verbose,
		metricsAddr:  *metricsAddr,
		historyDB:    *historyDB,
		schedule:     *schedule,
	})

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := scraper.NewMetrics()
	transport, err := scraper.NewHTTPTransport(cfg, metrics)
	if err != nil {
		slog.Error("initialising transport", slog.Any("error", err))
		os.Exit(1)
	}
	client := scraper.NewClient(cfg, transport, metrics)

	if *healthcheck {
		if err := client.HealthCheck(ctx); err != nil {
			slog.Error("health check failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("search api is healthy", slog.String("url", cfg.SearchURL))
		return
	}

	if *product == "" {
		slog.Error("missing -product")
		flag.Usage()
		os.Exit(2)
	}
	productID, err := parser.ParseProductID(*product)
	if err != nil {
		slog.Error("invalid product reference", slog.String("product", *product), slog.Any("error", err))
		os.Exit(1)
	}

	var store *history.Store
	if cfg.HistoryDB != "" {
		store, err = history.Open(cfg.HistoryDB)
		if err != nil {
			slog.Error("opening history", slog.Any("error", err))
			os.Exit(1)
		}
		defer store.Close()
	}

	if *showHistory {
		if store == nil {
			slog.Error("-history requires -history-db")
			os.Exit(2)
		}
		if err := printHistory(ctx, store, productID); err != nil {
			slog.Error("reading history", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if *keywordSource == "" {
		slog.Error("missing -keywords")
		flag.Usage()
		os.Exit(2)
	}

	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics)
	defer shutdownMetricsServer(metricsServer)

	job := &rankJob{
		cfg:       cfg,
		productID: productID,
		source:    *keywordSource,
		loader:    keywords.NewLoader(cfg),
		ranker:    ranking.New(client, cfg, ranking.WithObserver(ranking.LogObserver{Logger: logger})),
		exporter:  report.NewExporter(cfg.OutputDir, cfg.OutputFormat, cfg.ReportRetention),
		store:     store,
	}

	if cfg.Schedule == "" {
		if err := job.Run(ctx); err != nil {
			slog.Error("ranking failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := runScheduled(ctx, cfg.Schedule, job); err != nil {
		slog.Error("scheduler failed", slog.Any("error", err))
		os.Exit(1)
	}
}

type flagOverrides struct {
	maxPages     int
	parallelism  int
	outputFormat string
	outputDir    string
	maxKeywords  int
	noDedupe     bool
	verbose      bool
	metricsAddr  string
	historyDB    string
	schedule     string
}

// applyFlags overlays explicitly provided flag values; zero values keep the
// file and environment settings.
func applyFlags(cfg *config.Config, f flagOverrides) {
	if f.maxPages != 0 {
		cfg.MaxPages = f.maxPages
	}
	if f.parallelism != 0 {
		cfg.Concurrency = f.parallelism
	}
	if f.outputFormat != "" {
		cfg.OutputFormat = strings.ToLower(f.outputFormat)
	}
	if f.outputDir != "" {
		cfg.OutputDir = f.outputDir
	}
	if f.maxKeywords != 0 {
		cfg.MaxKeywords = f.maxKeywords
	}
	if f.noDedupe {
		cfg.DedupeKeywords = false
	}
	if f.verbose {
		cfg.Verbose = true
	}
	if f.metricsAddr != "" {
		cfg.MetricsAddr = f.metricsAddr
	}
	if f.historyDB != "" {
		cfg.HistoryDB = f.historyDB
	}
	if f.schedule != "" {
		cfg.Schedule = f.schedule
	}
}

func runScheduled(ctx context.Context, spec string, job *rankJob) error {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(spec, func() {
		if err := job.Run(ctx); err != nil {
			slog.Error("scheduled ranking failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("add cron job %q: %w", spec, err)
	}

	slog.Info("scheduler started", slog.String("schedule", spec))
	if err := job.Run(ctx); err != nil {
		slog.Error("initial ranking failed", slog.Any("error", err))
	}

	scheduler.Start()
	<-ctx.Done()
	slog.Info("shutdown signal received, waiting for running job")
	<-scheduler.Stop().Done()
	return nil
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
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
	return server
}

func shutdownMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := &slog.LevelVar{}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	if cfg.Verbose {
		level.Set(slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch {
	case cfg.LogFormat == "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case cfg.LogFormat == "text" || isTerminal(os.Stdout):
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
