package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/wordcrawl/pkg/fetch"
	"github.com/Sriram-PR/wordcrawl/pkg/models"
	"github.com/Sriram-PR/wordcrawl/pkg/parse"
	"github.com/Sriram-PR/wordcrawl/pkg/process"
	"github.com/Sriram-PR/wordcrawl/pkg/utils"
)

// PageFetcher retrieves one HTML page
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (*fetch.Page, error)
}

// Crawler drives a Session: it seeds the frontier, runs the workers and stops when no work is left
type Crawler struct {
	session *Session
	fetcher PageFetcher
	log     *logrus.Entry

	wg        sync.WaitGroup // Outstanding frontier entries (queued or in flight)
	processed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// NewCrawler creates a Crawler for the session
func NewCrawler(session *Session, fetcher PageFetcher) *Crawler {
	return &Crawler{
		session: session,
		fetcher: fetcher,
		log:     session.Log,
	}
}

// frontierSink is the FrontierSink handed to link extraction. Every accepted entry
// is counted in the WaitGroup before it becomes visible to workers.
type frontierSink struct {
	c *Crawler
}

func (fs frontierSink) Add(entry *models.FrontierEntry) {
	c := fs.c
	if store := c.session.Store; store != nil {
		pending := &models.PageDBEntry{Status: models.PageStatusPending, Depth: entry.Depth, LastAttempt: time.Now()}
		if err := store.UpdatePageStatus(entry.URL, pending); err != nil {
			c.log.WithField("url", entry.URL).Warnf("Failed to record pending status: %v", err)
		}
	}
	c.enqueue(entry)
}

func (c *Crawler) enqueue(entry *models.FrontierEntry) {
	c.wg.Add(1)
	if !c.session.Frontier.Add(entry) {
		c.wg.Done()
	}
}

// Run crawls until the frontier is exhausted, the global timeout fires or ctx is cancelled.
// The returned summary reflects whatever was processed; the error is the context error, if any.
func (c *Crawler) Run(ctx context.Context, resume bool) (models.CrawlSummary, error) {
	cfg := c.session.Config
	startTime := time.Now()
	maxDepth := cfg.GetEffectiveMaxDepth()
	runLog := c.log.WithFields(logrus.Fields{"resume": resume, "max_depth": maxDepth})
	runLog.Infof("Crawl starting with %d worker(s)...", max(cfg.NumWorkers, 1))

	var (
		crawlCtx context.Context
		cancel   context.CancelFunc
	)
	if cfg.GlobalCrawlTimeout > 0 {
		crawlCtx, cancel = context.WithTimeout(ctx, cfg.GlobalCrawlTimeout)
		runLog.Infof("Global crawl timeout: %v", cfg.GlobalCrawlTimeout)
	} else {
		crawlCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	if store := c.session.Store; store != nil && cfg.DBGCInterval > 0 {
		gcCtx, stopGC := context.WithCancel(crawlCtx)
		defer stopGC()
		go store.RunGC(gcCtx, cfg.DBGCInterval)
	}

	// --- Resume: restore counts and requeue incomplete pages ---
	requeued := 0
	if resume && c.session.Store != nil {
		if err := c.restoreFrequencies(); err != nil {
			runLog.Errorf("Failed to restore word counts: %v", err)
		}
		requeued = c.requeueIncomplete(crawlCtx, runLog)
		if err := crawlCtx.Err(); err != nil {
			c.drainFrontier()
			return c.summary(startTime), err
		}
	}

	// --- Seed the frontier ---
	seeded := c.seed(runLog)
	if seeded == 0 && requeued == 0 {
		runLog.Warn("No tasks seeded: every start URL is already visited and nothing was requeued.")
	} else {
		runLog.Infof("Seeded %d start URL(s), requeued %d page(s).", seeded, requeued)
	}

	// --- Close the frontier once all work is done or the crawl is cancelled ---
	waiterDone := make(chan struct{})
	go func() {
		defer close(waiterDone)
		tasksDone := make(chan struct{})
		go func() { c.wg.Wait(); close(tasksDone) }()
		select {
		case <-tasksDone:
			runLog.Debug("All frontier entries processed.")
		case <-crawlCtx.Done():
			runLog.Warnf("Crawl context done (%v) with work outstanding. Shutting down.", crawlCtx.Err())
		}
		c.session.Frontier.Close()
	}()

	numWorkers := max(cfg.NumWorkers, 1)
	g, gctx := errgroup.WithContext(crawlCtx)
	for i := 1; i <= numWorkers; i++ {
		workerLog := c.log.WithField("worker_id", i)
		g.Go(func() error {
			c.worker(gctx, workerLog)
			return nil
		})
	}
	_ = g.Wait()
	<-waiterDone
	c.drainFrontier()

	summary := c.summary(startTime)
	summaryLog := c.log.WithField("duration", summary.CrawlEndTime.Sub(startTime).String())
	summaryLog.Info("========================================================================")
	summaryLog.Info("CRAWL FINISHED")
	summaryLog.Infof("Pages processed: %d, failed: %d, skipped: %d, visited URLs: %d",
		summary.PagesProcessed, summary.PagesFailed, c.skipped.Load(), summary.VisitedURLs)
	summaryLog.Infof("Distinct words: %d, total words: %d", summary.DistinctWords, summary.TotalWords)
	summaryLog.Info("========================================================================")

	return summary, crawlCtx.Err()
}

// seed marks the configured start URLs visited and queues the new ones at depth 0
func (c *Crawler) seed(runLog *logrus.Entry) int {
	seeded := 0
	for i, raw := range c.session.Config.StartURLs {
		seedLog := runLog.WithFields(logrus.Fields{"index": i, "url": raw})
		canonical, _, err := parse.ParseAbsolute(raw)
		if err != nil {
			seedLog.Warnf("Invalid start URL, skipping: %v", err)
			continue
		}
		added, err := c.session.Visited.MarkVisited(canonical)
		if err != nil {
			seedLog.Errorf("Failed to mark start URL visited: %v", err)
			continue
		}
		if !added {
			seedLog.Debug("Start URL already visited, not queued")
			continue
		}
		frontierSink{c: c}.Add(&models.FrontierEntry{URL: canonical, Depth: 0})
		seeded++
	}
	return seeded
}

func (c *Crawler) restoreFrequencies() error {
	counts, err := c.session.Store.LoadFrequencies()
	if err != nil {
		return err
	}
	for word, n := range counts {
		c.session.Frequencies.Add(word, n)
	}
	c.log.Infof("Restored %d word counts from previous run", len(counts))
	return nil
}

func (c *Crawler) requeueIncomplete(ctx context.Context, runLog *logrus.Entry) int {
	runLog.Info("Resume mode: scanning database for incomplete pages...")
	requeueChan := make(chan models.FrontierEntry, 100)
	var requeueWg sync.WaitGroup
	requeued := 0
	requeueWg.Add(1)
	go func() {
		defer requeueWg.Done()
		for entry := range requeueChan {
			c.enqueue(&entry)
			requeued++
		}
	}()

	_, _, scanErr := c.session.Store.RequeueIncomplete(ctx, requeueChan)
	close(requeueChan)
	requeueWg.Wait()

	if scanErr != nil && !errors.Is(scanErr, context.Canceled) && !errors.Is(scanErr, context.DeadlineExceeded) {
		runLog.Errorf("Error during requeue scan: %v", scanErr)
	}
	return requeued
}

// drainFrontier releases entries that will not be processed so the WaitGroup can settle
func (c *Crawler) drainFrontier() {
	for range c.session.Frontier.Drain() {
		c.wg.Done()
	}
}

// worker pops frontier entries until the frontier is closed and empty or ctx is done
func (c *Crawler) worker(ctx context.Context, workerLog *logrus.Entry) {
	workerLog.Debug("Worker starting")
	defer workerLog.Debug("Worker finished")

	for {
		if ctx.Err() != nil {
			return
		}
		entry, ok := c.session.Frontier.Pop()
		if !ok {
			return
		}
		c.processPage(ctx, entry, workerLog)
	}
}

// processPage fetches one frontier entry and streams it through a fresh PageHandler
func (c *Crawler) processPage(ctx context.Context, entry *models.FrontierEntry, workerLog *logrus.Entry) {
	taskLog := workerLog.WithFields(logrus.Fields{"url": entry.URL, "depth": entry.Depth})
	startTime := time.Now()

	taskCtx := ctx
	if c.session.Config.PerPageTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, c.session.Config.PerPageTimeout)
		defer cancel()
	}

	var (
		taskErr        error
		skipped        bool
		result         process.PageResult
		redirectTarget string // Newly visited redirect target, recorded with the same outcome
	)

	defer func() {
		if r := recover(); r != nil {
			taskErr = fmt.Errorf("panic: %v", r)
			taskLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered while processing page")
		}

		status := models.PageStatusSuccess
		errorType := "None"
		logFields := logrus.Fields{"duration": time.Since(startTime).String()}
		switch {
		case taskErr != nil:
			status = models.PageStatusFailure
			errorType = utils.CategorizeError(taskErr)
			logFields["category"] = errorType
			c.failed.Add(1)
			taskLog.WithFields(logFields).Warnf("Page failed: %v", taskErr)
		case skipped:
			status = models.PageStatusSkipped
			c.skipped.Add(1)
			taskLog.WithFields(logFields).Info("Page skipped")
		default:
			c.processed.Add(1)
			logFields["links_queued"] = result.Links.Queued
			logFields["words"] = result.Words
			taskLog.WithFields(logFields).Info("Page processed")
		}

		if store := c.session.Store; store != nil {
			pageEntry := &models.PageDBEntry{
				Status:      status,
				ErrorType:   errorType,
				LastAttempt: time.Now(),
				Depth:       entry.Depth,
				WordCount:   result.Words,
				LinksQueued: result.Links.Queued,
			}
			if status == models.PageStatusSuccess {
				pageEntry.ProcessedAt = pageEntry.LastAttempt
				if err := store.CompletePage(entry.URL, pageEntry, result.WordCounts); err != nil {
					taskLog.Errorf("Failed to record completed page with %d distinct words: %v", len(result.WordCounts), err)
				}
			} else if err := store.UpdatePageStatus(entry.URL, pageEntry); err != nil {
				taskLog.Errorf("Failed to update page status to '%s': %v", status, err)
			}
			if redirectTarget != "" {
				if err := store.UpdatePageStatus(redirectTarget, pageEntry); err != nil {
					taskLog.Errorf("Failed to update redirect target status to '%s': %v", status, err)
				}
			}
		}
		c.wg.Done()
	}()

	page, err := c.fetcher.FetchPage(taskCtx, entry.URL)
	if err != nil {
		if errors.Is(err, utils.ErrNotHTML) {
			taskLog.Infof("Not HTML: %v", err)
			skipped = true
			return
		}
		taskErr = err
		return
	}

	// A redirect onto an already visited URL would count that page twice
	if finalURL := parse.Canonicalize(page.FinalURL); finalURL != entry.URL {
		added, err := c.session.Visited.MarkVisited(finalURL)
		if err != nil {
			taskErr = utils.WrapErrorf(utils.ErrDatabase, "marking redirect target '%s' visited: %v", finalURL, err)
			return
		}
		if !added {
			taskLog.Infof("Redirected to already visited '%s'", finalURL)
			skipped = true
			return
		}
		redirectTarget = finalURL
		taskLog = taskLog.WithField("final_url", finalURL)
	}

	// Decode to UTF-8 from the Content-Type charset, a <meta> declaration or a BOM
	body, err := charset.NewReader(bytes.NewReader(page.Body), page.ContentType)
	if err != nil {
		taskLog.Debugf("Unknown charset in '%s', reading body as UTF-8: %v", page.ContentType, err)
		body = bytes.NewReader(page.Body)
	}

	pc := c.session.NewPageContext(page.FinalURL, entry.Depth)
	result, taskErr = process.ProcessPage(
		body,
		pc,
		c.session.Visited,
		c.session.Frequencies,
		frontierSink{c: c},
		taskLog,
	)
}

func (c *Crawler) summary(startTime time.Time) models.CrawlSummary {
	visited, err := c.session.Visited.Count()
	if err != nil {
		c.log.Warnf("Could not get visited count: %v", err)
		visited = -1
	}
	cfg := c.session.Config
	return models.CrawlSummary{
		SessionID:      c.session.ID,
		StartURLs:      cfg.StartURLs,
		MaxDepth:       cfg.GetEffectiveMaxDepth(),
		CrawlStartTime: startTime,
		CrawlEndTime:   time.Now(),
		PagesProcessed: c.processed.Load(),
		PagesFailed:    c.failed.Load(),
		VisitedURLs:    visited,
		DistinctWords:  c.session.Frequencies.Len(),
		TotalWords:     c.session.Frequencies.Total(),
	}
}
