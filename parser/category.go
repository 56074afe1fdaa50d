package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	bookEntrySelector = "table.d_book"
	bookLinkPrefix    = "/b"
	bookLinkSuffix    = "/"
)

// ParseCategoryPage returns the book IDs listed on one category page, in
// document order and without de-duplication. A page whose content region
// is missing, or whose entries carry no usable book link, is malformed.
func ParseCategoryPage(body []byte) ([]int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("read category html: %w", err)
	}

	content := doc.Find(contentSelector).First()
	if content.Length() == 0 {
		return nil, fmt.Errorf("%w: no content region", ErrMalformedPage)
	}

	ids := make([]int, 0)
	var parseErr error
	content.Find(bookEntrySelector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, ok := s.Find("a[href]").First().Attr("href")
		if !ok {
			parseErr = fmt.Errorf("%w: entry %d has no link", ErrMalformedPage, i)
			return false
		}
		id, err := BookIDFromHref(href)
		if err != nil {
			parseErr = fmt.Errorf("entry %d: %w", i, err)
			return false
		}
		ids = append(ids, id)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return ids, nil
}

// BookIDFromHref extracts the numeric ID from a "/b<id>/" link.
func BookIDFromHref(href string) (int, error) {
	trimmed := strings.TrimSpace(href)
	if !strings.HasPrefix(trimmed, bookLinkPrefix) || !strings.HasSuffix(trimmed, bookLinkSuffix) {
		return 0, fmt.Errorf("%w: unexpected book link %q", ErrMalformedPage, href)
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(trimmed, bookLinkPrefix), bookLinkSuffix)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: unexpected book link %q", ErrMalformedPage, href)
	}
	return id, nil
}
