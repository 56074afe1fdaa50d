// Package render turns the crawled catalog into static HTML pages.
package render

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

//go:embed templates/index.html
var templates embed.FS

const (
	defaultTemplate = "templates/index.html"
	pagesDir        = "pages"
	defaultTitle    = "Библиотека"
)

// Options configures Site.
type Options struct {
	CatalogPath  string
	TemplatePath string // empty selects the embedded template
	OutDir       string
	PerPage      int // 0 renders every book on one page
	Title        string
	Logger       *slog.Logger
}

// Page is the data one rendered page sees.
type Page struct {
	Title      string
	Books      []*models.Book
	Page       int
	TotalPages int
	Links      []Link
	PrevURL    string
	NextURL    string
	// Root prefixes catalog-relative asset paths so that pages in
	// subdirectories still reach books/ and images/.
	Root string
}

// Link points at one page of the paginated catalog.
type Link struct {
	Number  int
	URL     string
	Current bool
}

// LoadCatalog reads the JSON collection written by the crawler.
func LoadCatalog(path string) ([]*models.Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}
	var books []*models.Book
	if err := json.Unmarshal(data, &books); err != nil {
		return nil, fmt.Errorf("decode catalog %q: %w", path, err)
	}
	if books == nil {
		books = []*models.Book{}
	}
	return books, nil
}

// ParseTemplate loads the template at path, or the embedded default when
// path is empty.
func ParseTemplate(path string) (*template.Template, error) {
	if path == "" {
		return template.ParseFS(templates, defaultTemplate)
	}
	tmpl, err := template.ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", path, err)
	}
	return tmpl, nil
}

// Render executes tmpl for one page.
func Render(w io.Writer, tmpl *template.Template, page Page) error {
	if tmpl == nil {
		return errors.New("template is nil")
	}
	return tmpl.Execute(w, page)
}

// Site renders the whole catalog into opts.OutDir: index.html holds the
// first page and, when paginated, pages/index<N>.html holds page N.
// It returns the paths written.
func Site(opts Options) ([]string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PerPage < 0 {
		return nil, fmt.Errorf("per-page cannot be negative")
	}
	title := opts.Title
	if title == "" {
		title = defaultTitle
	}

	books, err := LoadCatalog(opts.CatalogPath)
	if err != nil {
		return nil, err
	}
	tmpl, err := ParseTemplate(opts.TemplatePath)
	if err != nil {
		return nil, err
	}

	chunks := paginate(books, opts.PerPage)
	total := len(chunks)
	var written []string

	for i, chunk := range chunks {
		number := i + 1
		if total > 1 {
			page := buildPage(title, chunk, number, total, "../", false)
			path := filepath.Join(opts.OutDir, pagesDir, pageFilename(number))
			if err := writePage(path, tmpl, page); err != nil {
				return written, err
			}
			written = append(written, path)
		}
		if number == 1 {
			page := buildPage(title, chunk, number, total, "", true)
			path := filepath.Join(opts.OutDir, "index.html")
			if err := writePage(path, tmpl, page); err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}

	logger.Info("catalog rendered",
		slog.Int("books", len(books)),
		slog.Int("pages", total),
		slog.String("out_dir", opts.OutDir),
	)
	return written, nil
}

// Serve exposes dir over HTTP until ctx is canceled.
func Serve(ctx context.Context, addr, dir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           http.FileServer(http.Dir(dir)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("serving catalog", slog.String("addr", addr), slog.String("dir", dir))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func paginate(books []*models.Book, perPage int) [][]*models.Book {
	if perPage <= 0 || len(books) <= perPage {
		return [][]*models.Book{books}
	}
	var chunks [][]*models.Book
	for start := 0; start < len(books); start += perPage {
		end := min(start+perPage, len(books))
		chunks = append(chunks, books[start:end])
	}
	return chunks
}

func buildPage(title string, books []*models.Book, number, total int, root string, atTop bool) Page {
	linkTo := func(n int) string {
		if atTop {
			return pagesDir + "/" + pageFilename(n)
		}
		return pageFilename(n)
	}

	page := Page{
		Title:      title,
		Books:      books,
		Page:       number,
		TotalPages: total,
		Root:       root,
	}
	if total <= 1 {
		return page
	}
	for n := 1; n <= total; n++ {
		page.Links = append(page.Links, Link{Number: n, URL: linkTo(n), Current: n == number})
	}
	if number > 1 {
		page.PrevURL = linkTo(number - 1)
	}
	if number < total {
		page.NextURL = linkTo(number + 1)
	}
	return page
}

func pageFilename(n int) string {
	return fmt.Sprintf("index%d.html", n)
}

func writePage(path string, tmpl *template.Template, page Page) error {
	var buf bytes.Buffer
	if err := Render(&buf, tmpl, page); err != nil {
		return fmt.Errorf("render page %d: %w", page.Page, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
