// Package download persists book text bodies and cover images.
package download

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/aluiziolira/go-scrape-tululu/fetch"
	"github.com/aluiziolira/go-scrape-tululu/models"
)

// FilesystemError wraps a failure to create a directory or write a file.
// Unlike network failures it is not skipped: the crawl aborts.
type FilesystemError struct {
	Path string
	Err  error
}

func (e FilesystemError) Error() string {
	return fmt.Errorf("filesystem %s: %w", e.Path, e.Err).Error()
}

func (e FilesystemError) Unwrap() error {
	return e.Err
}

// Getter fetches a URL and rejects redirected responses.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*fetch.Page, error)
}

// Downloader writes fetched assets to disk.
type Downloader struct {
	getter Getter
}

// New returns a Downloader backed by getter.
func New(getter Getter) *Downloader {
	return &Downloader{getter: getter}
}

// Text fetches target.SourceURL and writes the body to
// <Folder>/<sanitized Filename>.txt, returning the written path.
func (d *Downloader) Text(ctx context.Context, target models.DownloadTarget) (string, error) {
	page, err := d.getter.Get(ctx, target.SourceURL)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(target.Folder, SanitizeFilename(target.Filename)+".txt")
	if err := writeFile(target.Folder, dest, []byte(page.Text())); err != nil {
		return "", err
	}
	return dest, nil
}

// Image fetches sourceURL and writes the raw bytes to folder under the
// URL's last path segment, returning the written path.
func (d *Downloader) Image(ctx context.Context, sourceURL, folder string) (string, error) {
	name, err := ImageFilename(sourceURL)
	if err != nil {
		return "", err
	}

	page, err := d.getter.Get(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(folder, name)
	if err := writeFile(folder, dest, page.Body); err != nil {
		return "", err
	}
	return dest, nil
}

// ImageFilename derives a sanitized filename from the last path segment
// of rawURL, keeping its extension.
func ImageFilename(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse image url %q: %w", rawURL, err)
	}
	segment := path.Base(u.Path)
	if segment == "/" || segment == "." {
		segment = ""
	}
	return SanitizeFilename(segment), nil
}

// Remove deletes a previously written asset. Missing files are ignored.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return FilesystemError{Path: path, Err: err}
	}
	return nil
}

// writeFile replaces dest through a temp file in the same folder and a rename.
func writeFile(folder, dest string, data []byte) error {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return FilesystemError{Path: folder, Err: err}
	}

	tmp, err := os.CreateTemp(folder, ".download-*")
	if err != nil {
		return FilesystemError{Path: folder, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return FilesystemError{Path: dest, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return FilesystemError{Path: dest, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return FilesystemError{Path: dest, Err: err}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return FilesystemError{Path: dest, Err: err}
	}
	return nil
}
