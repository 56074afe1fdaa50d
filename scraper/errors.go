package scraper

import (
	"context"
	"errors"

	"github.com/aluiziolira/go-scrape-tululu/download"
	"github.com/aluiziolira/go-scrape-tululu/fetch"
	"github.com/aluiziolira/go-scrape-tululu/parser"
)

// Error type labels used in logs, metrics and the run summary.
const (
	labelConnection  = "connection"
	labelHTTP        = "http"
	labelRedirect    = "redirect"
	labelMalformed   = "malformed"
	labelFilesystem  = "filesystem"
	labelInterrupted = "interrupted"
	labelOther       = "other"
)

// ErrorTypeLabel maps an error to a short label for logs and metrics.
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return labelInterrupted
	}
	if fetch.IsConnection(err) {
		return labelConnection
	}
	if fetch.IsHTTP(err) {
		return labelHTTP
	}
	if fetch.IsRedirect(err) {
		return labelRedirect
	}
	if errors.Is(err, parser.ErrMalformedPage) {
		return labelMalformed
	}
	var fsErr download.FilesystemError
	if errors.As(err, &fsErr) {
		return labelFilesystem
	}
	return labelOther
}
