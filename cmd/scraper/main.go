package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/download"
	"github.com/aluiziolira/go-scrape-tululu/fetch"
	"github.com/aluiziolira/go-scrape-tululu/metrics"
	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/pipeline"
	"github.com/aluiziolira/go-scrape-tululu/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type flagValues struct {
	configPath   string
	baseURL      string
	category     string
	startPage    int
	endPage      int
	destFolder   string
	jsonPath     string
	skipImgs     bool
	skipTxt      bool
	format       string
	delay        time.Duration
	timeout      time.Duration
	proxyAddr    string
	respectRobot bool
	metricsAddr  string
	logFile      string
	verbose      bool
}

func main() {
	defaults := config.DefaultConfig()
	var fv flagValues

	flag.StringVar(&fv.configPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&fv.baseURL, "base-url", defaults.BaseURL, "Catalog site base URL")
	flag.StringVar(&fv.category, "category", defaults.CategoryPath, "Category path relative to the base URL")
	flag.IntVar(&fv.startPage, "start_page", defaults.StartPage, "First category page to crawl")
	flag.IntVar(&fv.endPage, "end_page", defaults.EndPage, "Last category page to crawl (inclusive)")
	flag.StringVar(&fv.destFolder, "dest_folder", defaults.DestFolder, "Folder for books, images and the catalog")
	flag.StringVar(&fv.jsonPath, "json_path", defaults.JSONPath, "Catalog JSON path; relative paths live in dest_folder")
	flag.BoolVar(&fv.skipImgs, "skip_imgs", defaults.SkipImgs, "Do not download cover images")
	flag.BoolVar(&fv.skipTxt, "skip_txt", defaults.SkipTxt, "Do not download book texts")
	flag.StringVar(&fv.format, "format", defaults.OutputFormat, "Output format: json or dual (json + csv index)")
	flag.DurationVar(&fv.delay, "delay", defaults.Delay, "Delay between requests")
	flag.DurationVar(&fv.timeout, "timeout", defaults.Timeout, "Per-request timeout")
	flag.StringVar(&fv.proxyAddr, "proxy", defaults.ProxyAddr, "SOCKS5 proxy address (host:port)")
	flag.BoolVar(&fv.respectRobot, "respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	flag.StringVar(&fv.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flag.StringVar(&fv.logFile, "log-file", defaults.LogFile, "Also write logs to this file")
	flag.BoolVar(&fv.verbose, "v", defaults.Verbose, "Enable verbose logging")

	flag.Parse()

	cfg, err := loadConfig(fv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := newLogger(cfg.Verbose, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	code := 1
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
	} else {
		code = run(cfg, logger)
	}
	closeLog()
	os.Exit(code)
}

func run(cfg *config.Config, logger *slog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	done := make(chan struct{})
	defer close(done)
	go watchShutdown(ctx, done, logger)

	m := metrics.New()
	fetcher, err := fetch.New(cfg, fetch.WithMetrics(m))
	if err != nil {
		logger.Error("initialising fetcher", slog.Any("error", err))
		return 1
	}

	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputPath())
	if err != nil {
		logger.Error("creating writer", slog.Any("error", err))
		return 1
	}

	s, err := scraper.NewScraper(cfg, fetcher, download.New(fetcher), writer, logger, scraper.WithMetrics(m))
	if err != nil {
		logger.Error("initialising scraper", slog.Any("error", err))
		return 1
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		logger.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	result, runErr := s.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if result != nil {
		printSummary(os.Stdout, result, cfg.OutputPath())
	}
	if runErr != nil {
		logger.Error("crawl failed", slog.Any("error", runErr))
		return 1
	}
	if result != nil && result.Interrupted {
		return 130
	}
	return 0
}

// watchShutdown logs once when a signal cancels ctx. Closing done first
// keeps a normal return from being reported as a shutdown.
func watchShutdown(ctx context.Context, done <-chan struct{}, logger *slog.Logger) {
	select {
	case <-ctx.Done():
		select {
		case <-done:
		default:
			logger.Info("shutdown signal received, finishing the current book")
		}
	case <-done:
	}
}

// loadConfig layers defaults, the YAML file, .env/environment and finally
// the flags that were set explicitly on the command line.
func loadConfig(fv flagValues) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if fv.configPath != "" {
		if err := config.LoadFile(cfg, fv.configPath); err != nil {
			return nil, err
		}
	}
	if err := config.LoadEnv(cfg); err != nil {
		return nil, err
	}

	flag.Visit(func(f *flag.Flag) {
		applyFlag(cfg, f.Name, fv)
	})
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	return cfg, nil
}

func applyFlag(cfg *config.Config, name string, fv flagValues) {
	switch name {
	case "base-url":
		cfg.BaseURL = fv.baseURL
	case "category":
		cfg.CategoryPath = fv.category
	case "start_page":
		cfg.StartPage = fv.startPage
	case "end_page":
		cfg.EndPage = fv.endPage
	case "dest_folder":
		cfg.DestFolder = fv.destFolder
	case "json_path":
		cfg.JSONPath = fv.jsonPath
	case "skip_imgs":
		cfg.SkipImgs = fv.skipImgs
	case "skip_txt":
		cfg.SkipTxt = fv.skipTxt
	case "format":
		cfg.OutputFormat = fv.format
	case "delay":
		cfg.Delay = fv.delay
	case "timeout":
		cfg.Timeout = fv.timeout
	case "proxy":
		cfg.ProxyAddr = fv.proxyAddr
	case "respect-robots":
		cfg.RespectRobotsTxt = fv.respectRobot
	case "metrics-addr":
		cfg.MetricsAddr = fv.metricsAddr
	case "log-file":
		cfg.LogFile = fv.logFile
	case "v":
		cfg.Verbose = fv.verbose
	}
}

func printSummary(w io.Writer, result *models.CrawlResult, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	if result.Interrupted {
		fmt.Fprintln(w, "Crawl interrupted")
	} else {
		fmt.Fprintln(w, "Crawl complete")
	}

	fmt.Fprintf(w, "  Run ID:        %s\n", result.RunID)
	fmt.Fprintf(w, "  Pages:         %d\n", result.PageCount)
	if len(result.SkippedPages) > 0 {
		fmt.Fprintf(w, "  Skipped pages: %v\n", result.SkippedPages)
	}
	fmt.Fprintf(w, "  Books saved:   %d\n", len(result.Books))
	fmt.Fprintf(w, "  Books skipped: %d\n", result.SkippedBooks)
	if result.DuplicateIDs > 0 {
		fmt.Fprintf(w, "  Duplicates:    %d\n", result.DuplicateIDs)
	}
	if len(result.ErrorsByType) > 0 {
		labels := make([]string, 0, len(result.ErrorsByType))
		for label := range result.ErrorsByType {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		parts := make([]string, 0, len(labels))
		for _, label := range labels {
			parts = append(parts, fmt.Sprintf("%s=%d", label, result.ErrorsByType[label]))
		}
		fmt.Fprintf(w, "  Error types:   %s\n", strings.Join(parts, " "))
	}
	if len(result.FailedBookIDs) > 0 {
		fmt.Fprintf(w, "  Failed IDs:    %v\n", result.FailedBookIDs)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(w, separator)
}

// newLogger picks a text handler on a terminal and JSON otherwise. When
// logFile is set, records are written to both stdout and the file.
func newLogger(verbose bool, logFile string) (*slog.Logger, func(), error) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = func() { _ = f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), closeFn, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
