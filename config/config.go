package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL          string
	StartURL         string // defaults to BaseURL
	MaxPages         int
	Delay            time.Duration
	RandomDelay      time.Duration
	DetailDelay      time.Duration
	FollowDetails    bool
	Timeout          time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	AbortThreshold   int
	DedupeMaxSize    int
	BatchSize        int
	OutputFile       string
	OutputFormat     string // csv, json, or dual
	LogFile          string
	UserAgent        string
	Verbose          bool
	RespectRobotsTxt bool
	MetricsAddr      string
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://books.toscrape.com",
		MaxPages:         50,
		Delay:            time.Second,
		RandomDelay:      0,
		DetailDelay:      500 * time.Millisecond,
		FollowDetails:    true,
		Timeout:          10 * time.Second,
		MaxRetries:       2,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		AbortThreshold:   3,
		DedupeMaxSize:    10000,
		BatchSize:        64,
		OutputFile:       "output/books.csv",
		OutputFormat:     "dual",
		LogFile:          "output/scrape.log",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:          false,
		RespectRobotsTxt: false,
	}
}

// EntryURL returns the first catalogue page the crawl visits.
func (c *Config) EntryURL() string {
	if c.StartURL != "" {
		return c.StartURL
	}
	return c.BaseURL
}

func (c *Config) outputBase() string {
	return strings.TrimSuffix(strings.TrimSuffix(c.OutputFile, ".csv"), ".json")
}

// CSVFile derives the row-oriented output path from OutputFile. A .json
// OutputFile gets a .csv sibling so it never collides with JSONFile.
func (c *Config) CSVFile() string {
	if strings.HasSuffix(c.OutputFile, ".json") {
		return c.outputBase() + ".csv"
	}
	return c.OutputFile
}

// JSONFile derives the hierarchical output path from OutputFile.
func (c *Config) JSONFile() string {
	return c.outputBase() + ".json"
}

// ManifestFile derives the run manifest path from OutputFile.
func (c *Config) ManifestFile() string {
	return c.outputBase() + ".manifest.json"
}

// EntriesPerPage is the number of books a full catalogue page lists. The
// dedupe set must hold every URL a crawl can see or uniqueness is lost.
const EntriesPerPage = 20

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
	if c.StartURL != "" {
		startURL, err := url.Parse(c.StartURL)
		if err != nil {
			return fmt.Errorf("invalid start URL: %w", err)
		}
		if startURL.Host == "" {
			return fmt.Errorf("start URL must include a host")
		}
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.DetailDelay < 0 {
		return fmt.Errorf("detail delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
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
	if c.AbortThreshold <= 0 {
		return fmt.Errorf("abort threshold must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if need := c.MaxPages * EntriesPerPage; c.DedupeMaxSize < need {
		return fmt.Errorf("dedupe max size %d cannot hold %d pages of %d entries (need %d)", c.DedupeMaxSize, c.MaxPages, EntriesPerPage, need)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.LogFile == "" {
		return fmt.Errorf("log file cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
