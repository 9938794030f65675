// Package models defines data structures for the scraper.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Availability is the stock state parsed from the availability text.
// Count is nil when the page does not state how many copies are left.
type Availability struct {
	InStock bool   `json:"in_stock"`
	Count   *int   `json:"stock_count"`
	Raw     string `json:"raw"`
}

// BookRecord represents one scraped catalogue entry. Nil pointer and map
// fields mean the source page did not carry the value.
type BookRecord struct {
	Title        string            `json:"title"`
	Price        decimal.Decimal   `json:"price"`
	Rating       int               `json:"rating"`
	Availability Availability      `json:"availability"`
	Description  *string           `json:"description"`
	Category     *string           `json:"category"`
	ProductInfo  map[string]string `json:"product_info"`
	ImageURL     string            `json:"image_url"`
	URL          string            `json:"url"`
	ScrapedAt    time.Time         `json:"scraped_at"`
}

// MalformedRecord describes a catalogue entry that failed mandatory validation.
type MalformedRecord struct {
	PageURL   string `json:"page_url"`
	Index     int    `json:"index"`
	Title     string `json:"title,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

// CrawlStatus tells whether a crawl ran to the end of the catalogue.
type CrawlStatus string

const (
	StatusComplete CrawlStatus = "complete"
	StatusAborted  CrawlStatus = "aborted"
)

// Complete reports whether the run finished without aborting.
func (s CrawlStatus) Complete() bool {
	return s == StatusComplete
}

// CrawlResult holds the overall result of a crawl.
type CrawlResult struct {
	Status         CrawlStatus
	AbortReason    string
	Records        []BookRecord
	Malformed      []MalformedRecord
	FailedURLs     []string
	ErrorsByType   map[string]int
	StartTime      time.Time
	EndTime        time.Time
	PageCount      int
	RequestCount   int
	RetryCount     int
	DuplicateCount int
	DetailFailures int
}

// Duration returns how long the crawl ran.
func (r *CrawlResult) Duration() time.Duration {
	if r == nil || r.EndTime.Before(r.StartTime) {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
