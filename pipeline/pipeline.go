package pipeline

import (
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/parser"
)

var (
	// ErrCollectionClosed is returned when Add is called after Flush.
	ErrCollectionClosed = errors.New("pipeline: collection flushed")
	// ErrDuplicateBook is returned when a book ID is added twice.
	ErrDuplicateBook = errors.New("pipeline: duplicate book id")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(books []*models.Book) error
	Close() error
	Validate() error
}

// Collection accumulates finished books in the order they completed.
// It has a single owner, the crawl loop, and is not safe for concurrent use.
type Collection struct {
	books  []*models.Book
	seen   map[int]struct{}
	closed bool
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{
		books: make([]*models.Book, 0),
		seen:  make(map[int]struct{}),
	}
}

// Add appends a book that passed parsing and all of its downloads.
func (c *Collection) Add(book *models.Book) error {
	if c.closed {
		return ErrCollectionClosed
	}
	if err := parser.ValidateBook(book); err != nil {
		return err
	}
	if _, ok := c.seen[book.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateBook, book.ID)
	}
	c.seen[book.ID] = struct{}{}
	c.books = append(c.books, book)
	return nil
}

// Len returns the number of accumulated books.
func (c *Collection) Len() int {
	return len(c.books)
}

// Books returns a copy of the accumulated slice.
func (c *Collection) Books() []*models.Book {
	out := make([]*models.Book, len(c.books))
	copy(out, c.books)
	return out
}

// Flush writes every accumulated book, closes and validates the writer.
// The collection accepts no more books afterwards.
func (c *Collection) Flush(w OutputWriter) error {
	c.closed = true

	if err := w.Write(c.books); err != nil {
		w.Close()
		return fmt.Errorf("write collection: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	if err := w.Validate(); err != nil {
		return fmt.Errorf("validate output: %w", err)
	}
	return nil
}
