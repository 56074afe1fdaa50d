package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

func sampleBook() *models.Book {
	return &models.Book{
		ID:       239,
		Title:    "Алиби & <другое>",
		Author:   "Иванов Сергей",
		ImageURL: "http://tululu.test/shots/239.jpg",
		Comments: []string{"Отличная книга"},
		Genres:   []string{"Научная фантастика", "Детектив"},
		BookPath: "books/239. Алиби.txt",
		ImgSrc:   "images/239.jpg",
	}
}

func TestJSONWriterWritesArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "books.json")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write([]*models.Book{sampleBook()}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate json: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "[\n  {\n") {
		t.Fatalf("expected indented array, got %q", text[:min(len(text), 20)])
	}
	if !strings.Contains(text, "Алиби & <другое>") {
		t.Fatalf("non-ASCII and HTML characters must not be escaped: %s", text)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("records = %d, want 1", len(decoded))
	}
	for _, key := range []string{"title", "author", "link_img", "comments", "genres"} {
		if _, ok := decoded[0][key]; !ok {
			t.Fatalf("record missing %q: %v", key, decoded[0])
		}
	}
}

func TestJSONWriterEmptyCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.json")
	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := NewCollection().Flush(writer); err != nil {
		t.Fatalf("flush: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("empty collection = %q, want []", data)
	}
}

func TestEncodeCatalogOmitsSkippedAssets(t *testing.T) {
	book := sampleBook()
	book.BookPath = ""
	book.ImgSrc = ""

	data, err := EncodeCatalog([]*models.Book{book})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(string(data), "book_path") || strings.Contains(string(data), "img_src") {
		t.Fatalf("skipped asset paths should be omitted: %s", data)
	}
}

func TestCSVWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write([]*models.Book{sampleBook()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "id" || records[0][1] != "title" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][0] != "239" || records[1][4] != "Научная фантастика; Детектив" || records[1][5] != "1" {
		t.Fatalf("unexpected row: %v", records[1])
	}
}

func TestNewWriterDual(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "books.json")

	writer, err := NewWriter("dual", jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	c := NewCollection()
	if err := c.Add(sampleBook()); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.Flush(writer); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
	if info, err := os.Stat(filepath.Join(dir, "books.csv")); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
}

func TestNewWriterUnknownFormat(t *testing.T) {
	if _, err := NewWriter("xml", filepath.Join(t.TempDir(), "books.json")); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
