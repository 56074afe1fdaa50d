package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aluiziolira/go-scrape-tululu/render"
)

func main() {
	catalog := flag.String("json", "books_description.json", "Catalog JSON written by the scraper")
	tmplPath := flag.String("template", "", "HTML template (default: built-in)")
	outDir := flag.String("out", ".", "Output folder for index.html and pages/")
	perPage := flag.Int("per-page", 10, "Books per page; 0 puts every book on one page")
	title := flag.String("title", "", "Page title")
	serve := flag.String("serve", "", "Serve the output folder on this address after rendering (e.g. :5500)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	written, err := render.Site(render.Options{
		CatalogPath:  *catalog,
		TemplatePath: *tmplPath,
		OutDir:       *outDir,
		PerPage:      *perPage,
		Title:        *title,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("render failed", slog.Any("error", err))
		os.Exit(1)
	}
	for _, path := range written {
		fmt.Println(path)
	}

	if *serve == "" {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := render.Serve(ctx, *serve, *outDir, logger); err != nil {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}
