package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

// JSONWriter writes the collection as one indented JSON array. Books are
// buffered by Write and the file is replaced on Close.
type JSONWriter struct {
	filename string
	books    []*models.Book
	closed   bool
}

// NewJSONWriter initialises the JSON writer and its parent directory.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &JSONWriter{
		filename: filename,
		books:    make([]*models.Book, 0),
	}, nil
}

// Write buffers books for the final array.
func (jw *JSONWriter) Write(books []*models.Book) error {
	if jw.closed {
		return fmt.Errorf("json writer closed")
	}
	jw.books = append(jw.books, books...)
	return nil
}

// Close encodes the buffered books and writes the file.
func (jw *JSONWriter) Close() error {
	if jw.closed {
		return nil
	}
	jw.closed = true

	data, err := EncodeCatalog(jw.books)
	if err != nil {
		return err
	}
	return replaceFile(jw.filename, data)
}

// Validate ensures the JSON file exists and holds an array.
func (jw *JSONWriter) Validate() error {
	data, err := os.ReadFile(jw.filename)
	if err != nil {
		return fmt.Errorf("read json file: %w", err)
	}
	var decoded []json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("json file is not an array: %w", err)
	}
	return nil
}

// EncodeCatalog renders books as UTF-8, two-space indented JSON without
// escaping HTML characters or non-ASCII text.
func EncodeCatalog(books []*models.Book) ([]byte, error) {
	if books == nil {
		books = []*models.Book{}
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(books); err != nil {
		return nil, fmt.Errorf("encode json catalog: %w", err)
	}
	return buf.Bytes(), nil
}

// CSVWriter writes a flat index of the collection.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	header := []string{"id", "title", "author", "link_img", "genres", "comments_count", "book_path", "img_src"}
	if err := writer.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends books to the CSV output.
func (cw *CSVWriter) Write(books []*models.Book) error {
	for _, book := range books {
		record := []string{
			strconv.Itoa(book.ID),
			book.Title,
			book.Author,
			book.ImageURL,
			strings.Join(book.Genres, "; "),
			strconv.Itoa(len(book.Comments)),
			book.BookPath,
			book.ImgSrc,
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := os.Stat(cw.file.Name())
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

func replaceFile(filename string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), ".catalog-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write json file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close json file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod json file: %w", err)
	}
	if err := os.Rename(tmpName, filename); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename json file: %w", err)
	}
	return nil
}
