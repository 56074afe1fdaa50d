package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/models"
)

func TestLoadConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tululu.yaml")
	if err := os.WriteFile(path, []byte("start_page: 2\nend_page: 9\noutput_format: DUAL\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TULULU_END_PAGE", "5")

	cfg, err := loadConfig(flagValues{configPath: path})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.StartPage != 2 || cfg.EndPage != 5 {
		t.Fatalf("range = %d..%d, want 2..5", cfg.StartPage, cfg.EndPage)
	}
	if cfg.OutputFormat != "dual" {
		t.Fatalf("format = %q, want dual", cfg.OutputFormat)
	}
}

func TestApplyFlag(t *testing.T) {
	cfg := config.DefaultConfig()
	fv := flagValues{startPage: 7, endPage: 8, skipImgs: true, destFolder: "out", delay: time.Second}
	for _, name := range []string{"start_page", "end_page", "skip_imgs", "dest_folder", "delay"} {
		applyFlag(cfg, name, fv)
	}
	if cfg.StartPage != 7 || cfg.EndPage != 8 || !cfg.SkipImgs || cfg.DestFolder != "out" || cfg.Delay != time.Second {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.SkipTxt {
		t.Fatalf("unvisited flags must keep their value")
	}
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	result := &models.CrawlResult{
		RunID:         "run-1",
		Books:         []*models.Book{{ID: 1}},
		StartTime:     start,
		EndTime:       start.Add(1500 * time.Millisecond),
		PageCount:     2,
		SkippedPages:  []int{3},
		SkippedBooks:  2,
		FailedBookIDs: []int{34, 35},
		ErrorsByType:  map[string]int{"redirect": 1, "connection": 1},
	}

	var buf bytes.Buffer
	printSummary(&buf, result, "books_description.json")
	out := buf.String()

	for _, want := range []string{
		"Crawl complete",
		"Books saved:   1",
		"Failed IDs:    [34 35]",
		"Error types:   connection=1 redirect=1",
		"Duration:      1.5s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestWatchShutdown(t *testing.T) {
	t.Run("signal", func(t *testing.T) {
		var buf bytes.Buffer
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		watchShutdown(ctx, make(chan struct{}), slog.New(slog.NewTextHandler(&buf, nil)))
		if !strings.Contains(buf.String(), "shutdown signal received") {
			t.Fatalf("expected shutdown log, got %q", buf.String())
		}
	})

	t.Run("normal return", func(t *testing.T) {
		var buf bytes.Buffer
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		close(done)
		cancel()
		watchShutdown(ctx, done, slog.New(slog.NewTextHandler(&buf, nil)))
		if buf.Len() != 0 {
			t.Fatalf("clean run must not log a shutdown, got %q", buf.String())
		}
	})
}
