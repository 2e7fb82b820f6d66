package crawler

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/wordcrawl/pkg/config"
	"github.com/Sriram-PR/wordcrawl/pkg/models"
	"github.com/Sriram-PR/wordcrawl/pkg/queue"
	"github.com/Sriram-PR/wordcrawl/pkg/storage"
	"github.com/Sriram-PR/wordcrawl/pkg/utils"
)

// Session owns the state shared by every page of one crawl
type Session struct {
	ID          string
	Config      *config.AppConfig
	Visited     storage.VisitedSet
	Frequencies storage.FrequencyTable
	Frontier    *queue.ThreadSafePriorityQueue
	Store       storage.CrawlStore // nil unless persistent_visited is set
	Log         *logrus.Entry
	StartTime   time.Time
}

// NewSession creates the stores for a crawl. With persistent_visited the visited set
// lives in BadgerDB under state_dir; otherwise it is in memory and resume is not possible.
func NewSession(ctx context.Context, cfg *config.AppConfig, resume bool, baseLog *logrus.Entry) (*Session, error) {
	id := uuid.NewString()
	log := baseLog.WithField("session_id", id)

	s := &Session{
		ID:          id,
		Config:      cfg,
		Frequencies: storage.NewMemoryFrequencyTable(),
		Frontier:    queue.NewThreadSafePriorityQueue(log.WithField("component", "frontier")),
		Log:         log,
		StartTime:   time.Now(),
	}

	if !cfg.PersistentVisited {
		if resume {
			return nil, utils.WrapErrorf(utils.ErrConfigValidation, "resume requires persistent_visited: true")
		}
		s.Visited = storage.NewMemoryVisitedSet()
		log.Info("Using in-memory visited set")
		return s, nil
	}

	store, err := storage.NewBadgerStore(ctx, cfg.StateDir, resume, log.WithField("component", "store"))
	if err != nil {
		return nil, err
	}
	s.Store = store
	s.Visited = store
	return s, nil
}

// NewMemorySession builds a session with in-memory stores, used by tests and one-shot crawls
func NewMemorySession(cfg *config.AppConfig, log *logrus.Entry) *Session {
	return &Session{
		ID:          uuid.NewString(),
		Config:      cfg,
		Visited:     storage.NewMemoryVisitedSet(),
		Frequencies: storage.NewMemoryFrequencyTable(),
		Frontier:    queue.NewThreadSafePriorityQueue(log),
		Log:         log,
		StartTime:   time.Now(),
	}
}

// NewPageContext builds the per-page context for a fetched page
func (s *Session) NewPageContext(pageURL *url.URL, depth int) *models.PageContext {
	return models.NewPageContext(pageURL, depth, s.Config.GetEffectiveMaxDepth())
}

type visitedLogWriter interface {
	WriteVisitedLog(filePath string) error
}

// WriteVisitedLog writes every visited URL to filePath, one per line
func (s *Session) WriteVisitedLog(filePath string) error {
	w, ok := s.Visited.(visitedLogWriter)
	if !ok {
		s.Log.Warn("Visited set cannot write a log, skipping")
		return nil
	}
	return w.WriteVisitedLog(filePath)
}

// Close releases the persistent store, if any
func (s *Session) Close() error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Close()
}
