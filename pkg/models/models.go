package models

import (
	"net/url"
	"time"
)

// FrontierEntry is a link accepted for future crawling
type FrontierEntry struct {
	URL   string
	Depth int // Producing page's depth + 1
}

// PageContext holds the per-page state handed to link extraction and tokenizing.
// It is created by the crawl loop for a single page and never shared across pages.
type PageContext struct {
	PageURL  *url.URL // Absolute URL of the page, base for all relative references
	Depth    int      // Distance from the seed
	MaxDepth int      // Links found at Depth >= MaxDepth are not queued
}

// NewPageContext creates a PageContext. A nil or relative pageURL is the caller's bug.
func NewPageContext(pageURL *url.URL, depth, maxDepth int) *PageContext {
	return &PageContext{PageURL: pageURL, Depth: depth, MaxDepth: maxDepth}
}

// CanDiscover reports whether links found on this page may still be queued
func (pc *PageContext) CanDiscover() bool {
	return pc.Depth < pc.MaxDepth
}

// PageDBEntry stores the result of processing a page URL in the database
type PageDBEntry struct {
	Status      PageStatus `json:"status"`                 // "success" or "failure"
	ErrorType   string     `json:"error_type,omitempty"`   // Error category (on failure)
	ProcessedAt time.Time  `json:"processed_at,omitempty"` // Timestamp of successful processing
	LastAttempt time.Time  `json:"last_attempt"`           // Timestamp of the last processing attempt
	Depth       int        `json:"depth"`                  // Depth at which this page was processed/attempted
	WordCount   int64      `json:"word_count,omitempty"`   // Qualifying tokens counted on this page
	LinksQueued int        `json:"links_queued,omitempty"` // New frontier entries produced by this page
}

// WordCount is one row of the frequency report
type WordCount struct {
	Word  string `yaml:"word"`
	Count int64  `yaml:"count"`
}

// CrawlSummary holds the metadata written at the end of a crawl session.
type CrawlSummary struct {
	SessionID      string      `yaml:"session_id"`
	StartURLs      []string    `yaml:"start_urls"`
	MaxDepth       int         `yaml:"max_depth"`
	CrawlStartTime time.Time   `yaml:"crawl_start_time"`
	CrawlEndTime   time.Time   `yaml:"crawl_end_time"`
	PagesProcessed int64       `yaml:"pages_processed"`
	PagesFailed    int64       `yaml:"pages_failed"`
	VisitedURLs    int         `yaml:"visited_urls"`
	DistinctWords  int         `yaml:"distinct_words"`
	TotalWords     int64       `yaml:"total_words"`
	TopWords       []WordCount `yaml:"top_words,omitempty"`
}
