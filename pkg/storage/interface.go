package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/wordcrawl/pkg/models"
)

// VisitedSet records every URL already queued or processed during a crawl session.
// MarkVisited is an atomic insert-if-absent: of any number of concurrent calls
// for the same URL exactly one returns true.
type VisitedSet interface {
	// MarkVisited adds a canonical URL to the set
	// Returns true if the URL was newly added, false if it already existed
	MarkVisited(uri string) (bool, error)

	// Contains reports whether the URL is in the set without modifying it
	Contains(uri string) (bool, error)

	// Count returns the number of URLs in the set
	Count() (int, error)
}

// FrequencyTable maps a normalized word to the number of times it has been counted.
// All methods are safe for concurrent use and increments are never lost.
type FrequencyTable interface {
	Increment(word string)
	Add(word string, n int64)
	Count(word string) int64
	Snapshot() map[string]int64 // Point-in-time copy, safe to mutate
	Total() int64               // Sum of all counts
	Len() int                   // Number of distinct words
}

// PageStore tracks per-page processing outcome so a crawl can be resumed
type PageStore interface {
	// CheckPageStatus retrieves the status and details of a page URL
	// Returns status (PageStatusSuccess, PageStatusFailure, PageStatusPending, PageStatusSkipped, PageStatusNotFound, PageStatusDBError),
	// the PageDBEntry if found and parsed, and any error
	CheckPageStatus(uri string) (status models.PageStatus, entry *models.PageDBEntry, err error)

	// UpdatePageStatus updates the status and details for a page URL
	UpdatePageStatus(uri string, entry *models.PageDBEntry) error

	// CompletePage records a finished page together with the word counts it contributed, atomically
	CompletePage(uri string, entry *models.PageDBEntry, counts map[string]int64) error
}

// StoreAdmin handles lifecycle, resume and administrative operations
type StoreAdmin interface {
	// RequeueIncomplete scans the DB and sends incomplete pages (failed, pending, empty) to the provided channel
	// Should be called only during resume
	RequeueIncomplete(ctx context.Context, out chan<- models.FrontierEntry) (requeuedCount int, scanErrors int, err error)

	// WriteVisitedLog writes all page keys (URLs) to the specified file path
	WriteVisitedLog(filePath string) error

	// LoadFrequencies returns the word counts accumulated by CompletePage
	LoadFrequencies() (map[string]int64, error)

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// CrawlStore combines all store interfaces for a persistent, resumable crawl
type CrawlStore interface {
	VisitedSet
	PageStore
	StoreAdmin
}
