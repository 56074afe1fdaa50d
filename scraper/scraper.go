package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/download"
	"github.com/aluiziolira/go-scrape-tululu/fetch"
	"github.com/aluiziolira/go-scrape-tululu/metrics"
	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/parser"
	"github.com/aluiziolira/go-scrape-tululu/pipeline"
)

// Stages of one book's unit of work.
const (
	StagePage  = "page"
	StageParse = "parse"
	StageText  = "text"
	StageImage = "image"
)

// PageGetter fetches a URL and rejects redirected responses.
type PageGetter interface {
	Get(ctx context.Context, rawURL string) (*fetch.Page, error)
}

// AssetDownloader persists a book's text body and cover image.
type AssetDownloader interface {
	Text(ctx context.Context, target models.DownloadTarget) (string, error)
	Image(ctx context.Context, sourceURL, folder string) (string, error)
}

// BookResult is the outcome of processing one book ID. Exactly one of
// Book and Err is set; Stage names where a failure happened.
type BookResult struct {
	ID    int
	URL   string
	Book  *models.Book
	Stage string
	Err   error
}

// OK reports whether the book is ready for the collection.
func (r BookResult) OK() bool {
	return r.Err == nil && r.Book != nil
}

// Option customises a Scraper.
type Option func(*Scraper)

// WithMetrics records crawl progress on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scraper) {
		s.metrics = m
	}
}

// WithSleep replaces the back-off sleep, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scraper) {
		s.sleep = sleep
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(s *Scraper) {
		s.runID = id
	}
}

// Scraper walks category pages in order and builds the book collection.
// It is not safe for concurrent use.
type Scraper struct {
	cfg        *config.Config
	getter     PageGetter
	downloader AssetDownloader
	writer     pipeline.OutputWriter
	collection *pipeline.Collection
	seen       *seenIDs
	log        *slog.Logger
	metrics    *metrics.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
	runID      string

	errorsByType  map[string]int
	failedBookIDs []int
	skippedPages  []int
	skippedBooks  int
	duplicates    int
	pageCount     int
}

// NewScraper builds a scraper; logger receives every skip and progress event.
func NewScraper(cfg *config.Config, getter PageGetter, downloader AssetDownloader, writer pipeline.OutputWriter, logger *slog.Logger, opts ...Option) (*Scraper, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	seen, err := newSeenIDs(cfg.DedupeMaxSize)
	if err != nil {
		return nil, err
	}

	s := &Scraper{
		cfg:          cfg,
		getter:       getter,
		downloader:   downloader,
		writer:       writer,
		collection:   pipeline.NewCollection(),
		seen:         seen,
		sleep:        sleepContext,
		runID:        uuid.NewString(),
		errorsByType: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.With(slog.String("run_id", s.runID))
	return s, nil
}

// Run crawls the configured page range and writes the collection. Failures
// of a single page, book or asset are logged and skipped; only filesystem
// errors abort the crawl. The collection gathered so far is written even
// when the run aborts or ctx is canceled.
func (s *Scraper) Run(ctx context.Context) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	crawlRange := s.cfg.Range()
	s.log.Info("crawl started",
		slog.Int("start_page", crawlRange.StartPage),
		slog.Int("end_page", crawlRange.EndPage),
		slog.Bool("skip_txt", s.cfg.SkipTxt),
		slog.Bool("skip_imgs", s.cfg.SkipImgs),
	)

	runErr := s.crawl(ctx, crawlRange)
	interrupted := ctx.Err() != nil

	var flushErr error
	if err := s.collection.Flush(s.writer); err != nil {
		flushErr = fmt.Errorf("write collection: %w", err)
	}

	result := &models.CrawlResult{
		RunID:         s.runID,
		Books:         s.collection.Books(),
		StartTime:     start,
		EndTime:       time.Now(),
		PageCount:     s.pageCount,
		SkippedPages:  append([]int(nil), s.skippedPages...),
		SkippedBooks:  s.skippedBooks,
		FailedBookIDs: append([]int(nil), s.failedBookIDs...),
		ErrorsByType:  s.snapshotErrors(),
		DuplicateIDs:  s.duplicates,
		Interrupted:   interrupted,
	}

	s.log.Info("crawl finished",
		slog.Int("books", len(result.Books)),
		slog.Int("skipped_books", result.SkippedBooks),
		slog.Any("failed_book_ids", result.FailedBookIDs),
		slog.Any("skipped_pages", result.SkippedPages),
		slog.Bool("interrupted", interrupted),
		slog.Duration("duration", result.EndTime.Sub(start)),
	)

	return result, errors.Join(runErr, flushErr)
}

func (s *Scraper) crawl(ctx context.Context, crawlRange models.CrawlRange) error {
	for _, page := range crawlRange.Pages() {
		if ctx.Err() != nil {
			return nil
		}

		ids, err := s.categoryPage(ctx, page)
		if err != nil {
			if stop := s.skipPage(ctx, page, err); stop {
				return nil
			}
			continue
		}
		s.pageCount++

		saved := 0
		for _, id := range ids {
			if ctx.Err() != nil {
				return nil
			}
			if s.seen.markSeen(id) {
				s.duplicates++
				s.log.Debug("book already processed in this run", slog.Int("page", page), slog.Int("book_id", id))
				continue
			}

			result := s.ProcessBook(ctx, id)
			ok, err := s.reduce(ctx, page, result)
			if err != nil {
				return err
			}
			if ok {
				saved++
			}
		}

		s.log.Info("category page processed",
			slog.Int("page", page),
			slog.Int("listed", len(ids)),
			slog.Int("saved", saved),
		)
	}
	return nil
}

func (s *Scraper) categoryPage(ctx context.Context, page int) ([]int, error) {
	pageURL, err := s.cfg.CategoryURL(page)
	if err != nil {
		return nil, err
	}
	fetched, err := s.getter.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return parser.ParseCategoryPage(fetched.Body)
}

// skipPage logs a failed category page and reports whether the crawl
// should stop because ctx ended during back-off.
func (s *Scraper) skipPage(ctx context.Context, page int, err error) bool {
	label := ErrorTypeLabel(err)
	if label == labelInterrupted {
		return true
	}
	s.skippedPages = append(s.skippedPages, page)
	s.errorsByType[label]++
	s.metrics.IncError(label)

	pageURL, _ := s.cfg.CategoryURL(page)
	attrs := []any{
		slog.Int("page", page),
		slog.String("url", pageURL),
		slog.String("error_type", label),
		slog.Any("error", err),
	}

	switch label {
	case labelRedirect:
		s.log.Info("category page exhausted, skipping", attrs...)
	case labelMalformed:
		s.log.Warn("category page has no book listing, skipping", attrs...)
	default:
		s.log.Error("category page failed, skipping", attrs...)
	}

	if label == labelConnection {
		return s.backoff(ctx) != nil
	}
	return false
}

// ProcessBook runs the full unit of work for one book: fetch and parse its
// page, then download the text body and cover unless disabled. Assets
// written before a later failure are removed again.
func (s *Scraper) ProcessBook(ctx context.Context, id int) BookResult {
	bookURL, err := s.cfg.BookURL(id)
	if err != nil {
		return BookResult{ID: id, Stage: StagePage, Err: err}
	}
	result := BookResult{ID: id, URL: bookURL}

	page, err := s.getter.Get(ctx, bookURL)
	if err != nil {
		result.Stage, result.Err = StagePage, err
		return result
	}

	book, err := parser.ParseBookPage(page.Body, page.FinalURL)
	if err != nil {
		result.Stage, result.Err = StageParse, err
		return result
	}
	book.ID = id

	var written []string
	if !s.cfg.SkipTxt {
		textURL, err := s.cfg.TextURL(id)
		if err != nil {
			result.Stage, result.Err = StageText, err
			return result
		}
		path, err := s.downloader.Text(ctx, models.DownloadTarget{
			SourceURL: textURL,
			Folder:    s.cfg.BooksFolder(),
			Filename:  fmt.Sprintf("%d. %s", id, book.Title),
		})
		if err != nil {
			result.Stage, result.Err = StageText, err
			return result
		}
		written = append(written, path)
		book.BookPath = s.relative(path)
		s.metrics.IncAsset(StageText)
	}

	if !s.cfg.SkipImgs {
		path, err := s.downloader.Image(ctx, book.ImageURL, s.cfg.ImagesFolder())
		if err != nil {
			s.rollback(id, written)
			result.Stage, result.Err = StageImage, err
			return result
		}
		book.ImgSrc = s.relative(path)
		s.metrics.IncAsset(StageImage)
	}

	result.Book = book
	return result
}

// reduce folds one book result into the collection. It returns an error
// only when the crawl must abort.
func (s *Scraper) reduce(ctx context.Context, page int, result BookResult) (bool, error) {
	if result.OK() {
		if err := s.collection.Add(result.Book); err != nil {
			s.log.Warn("book rejected by collection",
				slog.Int("page", page),
				slog.Int("book_id", result.ID),
				slog.Any("error", err),
			)
			return false, nil
		}
		s.metrics.IncBooksSaved()
		s.log.Info("book saved",
			slog.Int("page", page),
			slog.Int("book_id", result.ID),
			slog.String("title", result.Book.Title),
		)
		return true, nil
	}

	label := ErrorTypeLabel(result.Err)
	if label == labelInterrupted {
		return false, nil
	}

	s.skippedBooks++
	s.failedBookIDs = append(s.failedBookIDs, result.ID)
	s.errorsByType[label]++
	s.metrics.IncError(label)
	s.metrics.IncBooksSkipped(label)

	attrs := []any{
		slog.Int("page", page),
		slog.Int("book_id", result.ID),
		slog.String("url", result.URL),
		slog.String("stage", result.Stage),
		slog.String("error_type", label),
		slog.Any("error", result.Err),
	}

	switch label {
	case labelFilesystem:
		s.log.Error("filesystem failure, aborting crawl", attrs...)
		return false, result.Err
	case labelRedirect:
		s.log.Info("book does not exist, skipping", attrs...)
	case labelConnection:
		s.log.Error("connection failure, backing off and skipping book", attrs...)
		if err := s.backoff(ctx); err != nil {
			return false, nil
		}
	default:
		s.log.Warn("book skipped", attrs...)
	}
	return false, nil
}

func (s *Scraper) backoff(ctx context.Context) error {
	s.metrics.IncBackoff()
	return s.sleep(ctx, s.cfg.BackoffDelay)
}

func (s *Scraper) rollback(id int, paths []string) {
	for _, path := range paths {
		if err := download.Remove(path); err != nil {
			s.log.Warn("could not remove asset of skipped book",
				slog.Int("book_id", id),
				slog.String("path", path),
				slog.Any("error", err),
			)
		}
	}
}

// relative expresses path relative to the destination folder, with forward
// slashes, for use in the catalog.
func (s *Scraper) relative(path string) string {
	rel, err := filepath.Rel(s.cfg.DestFolder, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (s *Scraper) snapshotErrors() map[string]int {
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
