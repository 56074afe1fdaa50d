package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

// Config holds crawler configuration.
type Config struct {
	BaseURL          string        `yaml:"base_url" env:"BASE_URL"`
	CategoryPath     string        `yaml:"category_path" env:"CATEGORY_PATH"`
	StartPage        int           `yaml:"start_page" env:"START_PAGE"`
	EndPage          int           `yaml:"end_page" env:"END_PAGE"`
	DestFolder       string        `yaml:"dest_folder" env:"DEST_FOLDER"`
	BooksDir         string        `yaml:"books_dir" env:"BOOKS_DIR"`
	ImagesDir        string        `yaml:"images_dir" env:"IMAGES_DIR"`
	JSONPath         string        `yaml:"json_path" env:"JSON_PATH"`
	SkipImgs         bool          `yaml:"skip_imgs" env:"SKIP_IMGS"`
	SkipTxt          bool          `yaml:"skip_txt" env:"SKIP_TXT"`
	OutputFormat     string        `yaml:"output_format" env:"OUTPUT_FORMAT"` // json or dual
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Delay            time.Duration `yaml:"delay" env:"DELAY"`
	BackoffDelay     time.Duration `yaml:"backoff_delay" env:"BACKOFF_DELAY"`
	MaxBodySize      int           `yaml:"max_body_size" env:"MAX_BODY_SIZE"`
	UserAgent        string        `yaml:"user_agent" env:"USER_AGENT"`
	ProxyAddr        string        `yaml:"proxy_addr" env:"PROXY_ADDR"`
	RespectRobotsTxt bool          `yaml:"respect_robots_txt" env:"RESPECT_ROBOTS_TXT"`
	DedupeMaxSize    int           `yaml:"dedupe_max_size" env:"DEDUPE_MAX_SIZE"`
	MetricsAddr      string        `yaml:"metrics_addr" env:"METRICS_ADDR"`
	LogFile          string        `yaml:"log_file" env:"LOG_FILE"`
	Verbose          bool          `yaml:"verbose" env:"VERBOSE"`
}

// DefaultConfig returns defaults for tululu.org's science fiction category.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://tululu.org/",
		CategoryPath:     "l55/",
		StartPage:        1,
		EndPage:          4,
		DestFolder:       ".",
		BooksDir:         "books",
		ImagesDir:        "images",
		JSONPath:         "books_description.json",
		OutputFormat:     "json",
		Timeout:          30 * time.Second,
		Delay:            0,
		BackoffDelay:     3 * time.Second,
		MaxBodySize:      32 * 1024 * 1024,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt: false,
		DedupeMaxSize:    10000,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.StartPage < 1 {
		return fmt.Errorf("start page must be at least 1")
	}
	if c.EndPage < c.StartPage {
		return fmt.Errorf("end page (%d) cannot be before start page (%d)", c.EndPage, c.StartPage)
	}
	if c.DestFolder == "" {
		return fmt.Errorf("destination folder cannot be empty")
	}
	if c.BooksDir == "" || c.ImagesDir == "" {
		return fmt.Errorf("books and images directories cannot be empty")
	}
	if c.JSONPath == "" {
		return fmt.Errorf("json path cannot be empty")
	}
	if c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be json or dual")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.BackoffDelay < 0 {
		return fmt.Errorf("backoff delay cannot be negative")
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("max body size cannot be negative")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// Range returns the configured category page range.
func (c *Config) Range() models.CrawlRange {
	return models.CrawlRange{StartPage: c.StartPage, EndPage: c.EndPage}
}

// BooksFolder is where text bodies are written.
func (c *Config) BooksFolder() string {
	return filepath.Join(c.DestFolder, c.BooksDir)
}

// ImagesFolder is where cover images are written.
func (c *Config) ImagesFolder() string {
	return filepath.Join(c.DestFolder, c.ImagesDir)
}

// OutputPath resolves JSONPath; relative paths live inside DestFolder.
func (c *Config) OutputPath() string {
	if filepath.IsAbs(c.JSONPath) {
		return c.JSONPath
	}
	return filepath.Join(c.DestFolder, c.JSONPath)
}

// CategoryURL returns the absolute URL of one category listing page.
func (c *Config) CategoryURL(page int) (string, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	category := c.CategoryPath
	if !strings.HasSuffix(category, "/") {
		category += "/"
	}
	ref, err := url.Parse(fmt.Sprintf("%s%d", category, page))
	if err != nil {
		return "", fmt.Errorf("parse category path: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// BookURL returns the detail page URL for a book ID.
func (c *Config) BookURL(id int) (string, error) {
	return c.resolve(fmt.Sprintf("/b%d/", id))
}

// TextURL returns the plain-text body URL for a book ID.
func (c *Config) TextURL(id int) (string, error) {
	return c.resolve(fmt.Sprintf("/txt.php?id=%d", id))
}

func (c *Config) resolve(ref string) (string, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", ref, err)
	}
	return base.ResolveReference(rel).String(), nil
}
