// Package parser extracts catalog data from the site's HTML pages.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

// ErrMalformedPage is returned when a page lacks the markup the parser
// relies on. Callers skip the page or book.
var ErrMalformedPage = errors.New("malformed page")

// HeaderDelimiter separates title from author in a book page's <h1>,
// e.g. "Alice in Wonderland :: Carroll Lewis".
const HeaderDelimiter = "::"

const (
	contentSelector         = "#content"
	fallbackContentSelector = ".ow_px_td"
	coverSelector           = ".bookimage img"
	commentSelector         = "div.texts"
	commentTextSelector     = "span.black"
	genreSelector           = "span.d_book a"
)

// SplitHeader splits an <h1> header on the first HeaderDelimiter and
// trims whitespace (including non-breaking spaces) from both halves.
func SplitHeader(header string) (title, author string, err error) {
	before, after, found := strings.Cut(header, HeaderDelimiter)
	if !found {
		return "", "", fmt.Errorf("%w: header %q has no %q delimiter", ErrMalformedPage, header, HeaderDelimiter)
	}
	return strings.TrimSpace(before), strings.TrimSpace(after), nil
}

// JoinHeader is the inverse of SplitHeader for canonically spaced headers.
func JoinHeader(title, author string) string {
	return title + " " + HeaderDelimiter + " " + author
}

// ParseBookPage extracts a book's metadata from its detail page. pageURL
// is used to resolve a relative cover src; the returned Book has no ID.
func ParseBookPage(body []byte, pageURL string) (*models.Book, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("read book html: %w", err)
	}

	content := doc.Find(contentSelector).First()
	if content.Length() == 0 {
		content = doc.Find(fallbackContentSelector).First()
	}
	if content.Length() == 0 {
		return nil, fmt.Errorf("%w: no content region", ErrMalformedPage)
	}

	header := content.Find("h1").First()
	if header.Length() == 0 {
		return nil, fmt.Errorf("%w: no title header", ErrMalformedPage)
	}
	title, author, err := SplitHeader(header.Text())
	if err != nil {
		return nil, err
	}

	src, ok := content.Find(coverSelector).First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: no cover image", ErrMalformedPage)
	}
	imageURL, err := resolveURL(pageURL, strings.TrimSpace(src))
	if err != nil {
		return nil, fmt.Errorf("%w: cover src %q: %v", ErrMalformedPage, src, err)
	}

	comments := make([]string, 0)
	content.Find(commentSelector).Each(func(_ int, s *goquery.Selection) {
		comments = append(comments, s.Find(commentTextSelector).First().Text())
	})

	genres := make([]string, 0)
	content.Find(genreSelector).Each(func(_ int, s *goquery.Selection) {
		genres = append(genres, s.Text())
	})

	book := &models.Book{
		Title:    title,
		Author:   author,
		ImageURL: imageURL,
		Comments: comments,
		Genres:   genres,
	}
	if err := ValidateBook(book); err != nil {
		return nil, err
	}
	return book, nil
}

// ValidateBook ensures the parser captured the required fields.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("%w: book is nil", ErrMalformedPage)
	}
	if b.Title == "" {
		return fmt.Errorf("%w: book missing title", ErrMalformedPage)
	}
	if b.ImageURL == "" {
		return fmt.Errorf("%w: book missing cover for %s", ErrMalformedPage, b.Title)
	}
	return nil
}

func resolveURL(base, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if base == "" {
		return refURL.String(), nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
