package storage

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/wordcrawl/pkg/log"
	"github.com/Sriram-PR/wordcrawl/pkg/models"
	"github.com/Sriram-PR/wordcrawl/pkg/utils"
)

const (
	pageKeyPrefix = "page:"      // Prefix for page URL keys in DB
	wordKeyPrefix = "word:"      // Prefix for persisted word counts
	visitedDBDir  = "visited_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the CrawlStore interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	ctx      context.Context // Parent context
	keyCount atomic.Int64    // Cached page key count for O(1) Count
}

// NewBadgerStore initializes and returns a new BadgerStore under stateDir
// Without resume, any existing state is removed first
func NewBadgerStore(ctx context.Context, stateDir string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
		ctx: ctx,
	}

	dbPath := filepath.Join(stateDir, visitedDBDir)

	if !resume {
		logger.Warnf("Resume flag is false. REMOVING existing state directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			// Log error but attempt to continue; Badger might recover or create new files
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Initializing visited URL database at: %s (Resume: %v)", dbPath, resume)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1) // Only keep the latest state

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	if resume {
		count, err := store.countPageKeys()
		if err != nil {
			logger.Warnf("Failed to count existing keys on resume: %v", err)
		} else {
			store.keyCount.Store(int64(count))
			logger.Infof("Loaded existing page key count on resume: %d", count)
		}
	}

	logger.Info("Visited URL database initialized successfully.")
	return store, nil
}

// countPageKeys performs a one-time prefix scan (used only during initialization on resume).
func (s *BadgerStore) countPageKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(pageKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on the same key return badger.ErrConflict to all but
// the first committer; the retried transaction then observes the committed key.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// MarkVisited implements the VisitedSet interface
func (s *BadgerStore) MarkVisited(uri string) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("%w: visitedDB not initialized", utils.ErrDatabase)
	}
	key := []byte(pageKeyPrefix + uri)

	var added bool
	err := s.dbUpdate(func(txn *badger.Txn) error {
		added = false // Reset on conflict retry
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			// Key doesn't exist, add it with an empty (implicitly pending) value
			if errSet := txn.SetEntry(badger.NewEntry(key, []byte{})); errSet != nil {
				return errSet
			}
			added = true
			return nil
		}
		return errGet // nil if the key exists
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkVisited: %v", err)
		return false, fmt.Errorf("%w: marking page key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if added {
		s.keyCount.Add(1)
	}

	return added, nil
}

// Contains implements the VisitedSet interface
func (s *BadgerStore) Contains(uri string) (bool, error) {
	status, _, err := s.CheckPageStatus(uri)
	if err != nil {
		return false, err
	}
	return status != models.PageStatusNotFound, nil
}

// Count implements the VisitedSet interface.
// Returns the cached page key count maintained by atomic increments on writes.
func (s *BadgerStore) Count() (int, error) {
	return int(s.keyCount.Load()), nil
}

// CheckPageStatus implements the PageStore interface
func (s *BadgerStore) CheckPageStatus(uri string) (models.PageStatus, *models.PageDBEntry, error) {
	status := models.PageStatusNotFound
	var entry *models.PageDBEntry
	key := []byte(pageKeyPrefix + uri)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil // Not found is a status, not an error
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting page key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				status = models.PageStatusPending // Marked visited, not yet processed
				return nil
			}

			var decodedEntry models.PageDBEntry
			if errJson := json.Unmarshal(val, &decodedEntry); errJson != nil {
				s.log.Warnf("Failed to unmarshal PageDBEntry for key '%s': %v. Treating as 'pending'.", string(key), errJson)
				status = models.PageStatusPending
				return nil
			}

			entry = &decodedEntry
			status = decodedEntry.Status
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in CheckPageStatus for key '%s': %v", string(key), errView)
		return models.PageStatusDBError, nil, errView
	}

	return status, entry, nil
}

// UpdatePageStatus implements the PageStore interface
func (s *BadgerStore) UpdatePageStatus(uri string, entry *models.PageDBEntry) error {
	if s.db == nil {
		return fmt.Errorf("%w: visitedDB not initialized", utils.ErrDatabase)
	}
	key := []byte(pageKeyPrefix + uri)

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal PageDBEntry for key '%s': %w", utils.ErrParsing, string(key), errJson)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	var isNew bool
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		isNew = errors.Is(errGet, badger.ErrKeyNotFound)
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in UpdatePageStatus: %v", err)
		return fmt.Errorf("%w: failed setting page status for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Updated page status for key '%s' to '%s'", string(key), entry.Status)
	return nil
}

// CompletePage implements the PageStore interface.
// The page entry and every count delta are applied in one transaction, so a resumed crawl never sees a
// finished page without its words. Counts are stored as 8-byte big-endian values.
func (s *BadgerStore) CompletePage(uri string, entry *models.PageDBEntry, counts map[string]int64) error {
	if s.db == nil {
		return fmt.Errorf("%w: visitedDB not initialized", utils.ErrDatabase)
	}
	key := []byte(pageKeyPrefix + uri)

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal PageDBEntry for key '%s': %w", utils.ErrParsing, string(key), errJson)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	var isNew bool
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		isNew = errors.Is(errGet, badger.ErrKeyNotFound)
		if err := txn.SetEntry(badger.NewEntry(key, entryBytes)); err != nil {
			return err
		}
		for word, delta := range counts {
			if err := addWordCount(txn, word, delta); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in CompletePage: %v", err)
		return fmt.Errorf("%w: failed completing page '%s' with %d word counts: %w", utils.ErrDatabase, string(key), len(counts), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Completed page '%s' as '%s' with %d distinct words", string(key), entry.Status, len(counts))
	return nil
}

// addWordCount adds delta to the stored count of word. A value with an invalid encoding is overwritten.
func addWordCount(txn *badger.Txn, word string, delta int64) error {
	key := []byte(wordKeyPrefix + word)
	var current int64

	item, err := txn.Get(key)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return err
	default:
		errVal := item.Value(func(val []byte) error {
			if len(val) == 8 {
				current = int64(binary.BigEndian.Uint64(val))
			}
			return nil
		})
		if errVal != nil {
			return errVal
		}
	}

	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(current+delta))
	return txn.Set(key, val)
}

// LoadFrequencies implements the StoreAdmin interface.
// It returns the sum of the counts recorded by CompletePage.
func (s *BadgerStore) LoadFrequencies() (map[string]int64, error) {
	out := make(map[string]int64)
	badValues := 0

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(wordKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			word := string(item.Key()[len(wordKeyPrefix):])
			errVal := item.Value(func(val []byte) error {
				if len(val) != 8 {
					badValues++
					return nil
				}
				out[word] = int64(binary.BigEndian.Uint64(val))
				return nil
			})
			if errVal != nil {
				return errVal
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: loading word counts: %w", utils.ErrDatabase, err)
	}
	if badValues > 0 {
		s.log.Warnf("Skipped %d word count entries with invalid encoding.", badValues)
	}
	return out, nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				if err = s.db.RunValueLogGC(0.5); err != nil {
					break
				}
				s.log.Debug("BadgerDB GC cycle completed.")
			}

			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debug("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Infof("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// RequeueIncomplete implements the StoreAdmin interface
func (s *BadgerStore) RequeueIncomplete(ctx context.Context, out chan<- models.FrontierEntry) (int, int, error) {
	s.log.Info("Resume Mode: Scanning database for incomplete pages to requeue...")
	requeuedCount := 0
	scanErrors := 0
	scanStartTime := time.Now()

	scanErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pageKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				s.log.Warnf("Resume scan interrupted by context cancellation: %v", err)
				return err
			}

			item := it.Item()
			urlToRequeue := string(item.KeyCopy(nil)[len(pageKeyPrefix):])

			var (
				shouldRequeue bool
				requeueDepth  int
			)
			errGetValue := item.Value(func(val []byte) error {
				if len(val) == 0 { // Marked but never given a status
					shouldRequeue = true
					return nil
				}
				var entry models.PageDBEntry
				if errJson := json.Unmarshal(val, &entry); errJson != nil {
					s.log.Errorf("Resume Scan: Failed unmarshal PageDBEntry for '%s': %v. Skipping.", urlToRequeue, errJson)
					scanErrors++
					return nil
				}
				if !entry.Status.IsTerminal() {
					shouldRequeue = true
					requeueDepth = entry.Depth
				}
				return nil
			})
			if errGetValue != nil {
				s.log.Errorf("Resume Scan: Error getting value for key '%s': %v", urlToRequeue, errGetValue)
				scanErrors++
				continue
			}
			if !shouldRequeue {
				continue
			}

			s.log.Debugf("Resume Scan: Requeueing '%s' (Depth: %d)", urlToRequeue, requeueDepth)
			select {
			case out <- models.FrontierEntry{URL: urlToRequeue, Depth: requeueDepth}:
				requeuedCount++
			case <-ctx.Done():
				s.log.Warnf("Resume scan interrupted while sending '%s' to queue: %v", urlToRequeue, ctx.Err())
				return ctx.Err()
			}
		}
		return nil
	})

	if scanErr != nil && !errors.Is(scanErr, context.Canceled) && !errors.Is(scanErr, context.DeadlineExceeded) {
		s.log.Errorf("Error during DB scan for resume: %v.", scanErr)
		scanErr = fmt.Errorf("%w: resume scan: %w", utils.ErrDatabase, scanErr)
	}
	s.log.Infof("Resume Scan Complete: Requeued %d pages in %v. Errors: %d.", requeuedCount, time.Since(scanStartTime), scanErrors)

	return requeuedCount, scanErrors, scanErr
}

// WriteVisitedLog implements the StoreAdmin interface.
func (s *BadgerStore) WriteVisitedLog(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		s.log.Errorf("Failed create visited log '%s': %v", filePath, err)
		return fmt.Errorf("create visited log '%s': %w", filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	var writeErr error
	writtenCount := 0

	iterErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(pageKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := s.ctx.Err(); err != nil {
				s.log.Warnf("WriteVisitedLog scan interrupted by context cancellation: %v", err)
				return err
			}

			key := it.Item().Key()
			if _, err := writer.WriteString(string(key[len(pageKeyPrefix):]) + "\n"); err != nil {
				writeErr = err
				return err
			}
			writtenCount++
			if writtenCount%5000 == 0 {
				if err := writer.Flush(); err != nil {
					writeErr = err
					return err
				}
			}
		}
		return nil
	})

	if flushErr := writer.Flush(); flushErr != nil && writeErr == nil {
		writeErr = flushErr
	}
	if syncErr := file.Sync(); syncErr != nil && writeErr == nil {
		writeErr = syncErr
	}

	if writeErr != nil {
		s.log.Warnf("Finished writing visited log with errors. Wrote ~%d URLs to %s", writtenCount, filePath)
		return fmt.Errorf("write visited log '%s': %w", filePath, writeErr)
	}
	if iterErr != nil {
		return iterErr
	}
	s.log.Infof("Finished writing %d URLs to visited log: %s", writtenCount, filePath)
	return nil
}

// Close implements the StoreAdmin interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing visited DB...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing visited DB: %v", err)
			return err
		}
		s.log.Info("Visited DB closed.")
		return nil
	}
	s.log.Info("Visited DB already closed or was not initialized.")
	return nil
}
