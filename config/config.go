package config

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL    string `yaml:"base_url"`
	CategoryID int    `yaml:"category_id"`

	// Page mode walks listing pages, ID mode walks detail IDs directly.
	ByID      bool `yaml:"by_id"`
	StartPage int  `yaml:"start_page"`
	EndPage   int  `yaml:"end_page"`
	StartID   int  `yaml:"start_id"`
	EndID     int  `yaml:"end_id"`
	BatchSize int  `yaml:"batch_size"`

	StopAtCatalogEnd bool `yaml:"stop_at_catalog_end"`
	SkipStored       bool `yaml:"skip_stored"`
	DedupeMaxSize    int  `yaml:"dedupe_max_size"`
	Workers          int  `yaml:"workers"`

	DestDir      string `yaml:"dest_dir"`
	StoreFile    string `yaml:"store_file"`
	IndexFile    string `yaml:"index_file"`
	BooksDir     string `yaml:"books_dir"`
	ImagesDir    string `yaml:"images_dir"`
	CommentsDir  string `yaml:"comments_dir"`
	SkipText     bool   `yaml:"skip_text"`
	SkipImages   bool   `yaml:"skip_images"`
	SaveComments bool   `yaml:"save_comments"`

	Timeout           time.Duration `yaml:"timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax   time.Duration `yaml:"retry_backoff_max"`
	RetryStatuses     []int         `yaml:"retry_statuses"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Delay             time.Duration `yaml:"delay"`
	RandomDelay       time.Duration `yaml:"random_delay"`
	MaxBodySize       int           `yaml:"max_body_size"`
	UserAgent         string        `yaml:"user_agent"`
	RespectRobotsTxt  bool          `yaml:"respect_robots_txt"`

	Verbose     bool   `yaml:"verbose"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns conservative defaults for tululu.org.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://tululu.org",
		CategoryID:       55,
		StartPage:        1,
		EndPage:          10,
		StartID:          1,
		EndID:            10,
		BatchSize:        20,
		StopAtCatalogEnd: true,
		SkipStored:       true,
		DedupeMaxSize:    100000,
		Workers:          1,
		DestDir:          ".",
		StoreFile:        "book_list.json",
		BooksDir:         "books",
		ImagesDir:        "images",
		CommentsDir:      "comments",
		Timeout:          30 * time.Second,
		MaxAttempts:      4,
		RetryBackoff:     5 * time.Second,
		RetryBackoffMax:  2 * time.Minute,
		RetryStatuses:    []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		Burst:            1,
		MaxBodySize:      64 * 1024 * 1024,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
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

	if c.ByID {
		if c.StartID <= 0 {
			return fmt.Errorf("start id must be positive")
		}
		if c.EndID < c.StartID {
			return fmt.Errorf("end id (%d) cannot be before start id (%d)", c.EndID, c.StartID)
		}
	} else {
		if c.CategoryID <= 0 {
			return fmt.Errorf("category id must be positive")
		}
		if c.StartPage <= 0 {
			return fmt.Errorf("start page must be positive")
		}
		if c.EndPage < c.StartPage {
			return fmt.Errorf("end page (%d) cannot be before start page (%d)", c.EndPage, c.StartPage)
		}
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.DestDir == "" {
		return fmt.Errorf("destination directory cannot be empty")
	}
	if c.StoreFile == "" {
		return fmt.Errorf("store file cannot be empty")
	}
	for name, dir := range map[string]string{"books": c.BooksDir, "images": c.ImagesDir, "comments": c.CommentsDir} {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("%s directory cannot be empty", name)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	for _, status := range c.RetryStatuses {
		if status < 500 || status > 599 {
			return fmt.Errorf("retry status %d is not a server error", status)
		}
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return fmt.Errorf("burst must be positive when rate limiting")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("max body size cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// BaseURLTrimmed returns the base URL without a trailing slash.
func (c *Config) BaseURLTrimmed() string {
	return strings.TrimRight(c.BaseURL, "/")
}

// StorePath resolves StoreFile against DestDir unless it is absolute.
func (c *Config) StorePath() string {
	return c.resolve(c.StoreFile)
}

// IndexPath resolves IndexFile like StorePath; empty when no index is kept.
func (c *Config) IndexPath() string {
	if c.IndexFile == "" {
		return ""
	}
	return c.resolve(c.IndexFile)
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DestDir, name)
}
