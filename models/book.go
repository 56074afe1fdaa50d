// Package models defines data structures for the crawler.
package models

import "time"

// Book is one catalog entry parsed from a book detail page.
// ID is filled in by the caller; the page itself does not carry it.
type Book struct {
	ID       int      `json:"id"`
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	ImageURL string   `json:"link_img"`
	Comments []string `json:"comments"`
	Genres   []string `json:"genres"`
	BookPath string   `json:"book_path,omitempty"`
	ImgSrc   string   `json:"img_src,omitempty"`
}

// CrawlRange is the inclusive range of category pages to walk.
type CrawlRange struct {
	StartPage int
	EndPage   int
}

// Pages returns the page indexes in the range in ascending order.
func (r CrawlRange) Pages() []int {
	if r.EndPage < r.StartPage {
		return nil
	}
	pages := make([]int, 0, r.EndPage-r.StartPage+1)
	for p := r.StartPage; p <= r.EndPage; p++ {
		pages = append(pages, p)
	}
	return pages
}

// DownloadTarget describes a single asset download.
type DownloadTarget struct {
	SourceURL string
	Folder    string
	Filename  string
}

// CrawlResult holds the overall result of a crawl run.
type CrawlResult struct {
	RunID         string
	Books         []*Book
	StartTime     time.Time
	EndTime       time.Time
	PageCount     int
	SkippedPages  []int
	SkippedBooks  int
	FailedBookIDs []int
	ErrorsByType  map[string]int
	DuplicateIDs  int
	Interrupted   bool
}
