package process

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Sriram-PR/wordcrawl/pkg/models"
	"github.com/Sriram-PR/wordcrawl/pkg/parse"
	"github.com/Sriram-PR/wordcrawl/pkg/storage"
	"github.com/Sriram-PR/wordcrawl/pkg/utils"
)

// FrontierSink receives links accepted for future crawling
type FrontierSink interface {
	Add(entry *models.FrontierEntry)
}

// LinkStats counts what happened to the link-bearing tags of one page
type LinkStats struct {
	Queued      int // New URLs handed to the sink
	Duplicate   int // Already in the visited set
	Malformed   int // Reference could not be parsed
	Opaque      int // mailto:, javascript:, tel: targets
	Unsupported int // Hierarchical targets with another scheme or no host
	DepthGated  int // Page was at or past the depth ceiling
	StoreErrors int // Visited set failed; link dropped
}

// LinkExtractor turns tag events of a single page into frontier entries.
// One extractor serves one page and is not safe for concurrent use; the
// visited set and sink it writes to are shared and must be.
type LinkExtractor struct {
	visited storage.VisitedSet
	sink    FrontierSink
	stats   LinkStats
	log     *logrus.Entry
}

// NewLinkExtractor creates a LinkExtractor
func NewLinkExtractor(visited storage.VisitedSet, sink FrontierSink, log *logrus.Entry) *LinkExtractor {
	return &LinkExtractor{
		visited: visited,
		sink:    sink,
		log:     log,
	}
}

// linkAttribute returns the attribute carrying a crawlable reference for tag, or "" if it carries none
func linkAttribute(tag atom.Atom) string {
	switch tag {
	case atom.A:
		return "href"
	case atom.Frame, atom.Iframe:
		return "src"
	}
	return ""
}

func attrValue(attrs []html.Attribute, key string) (string, bool) {
	for _, a := range attrs {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// HandleTag resolves the tag's reference against the page URL and queues it if it is new.
// No outcome aborts the page: malformed references are logged, everything else is counted.
func (le *LinkExtractor) HandleTag(tag atom.Atom, attrs []html.Attribute, pc *models.PageContext) {
	attrName := linkAttribute(tag)
	if attrName == "" {
		return
	}

	ref, ok := attrValue(attrs, attrName)
	if !ok {
		return
	}

	// Depth gate comes before any resolution work
	if !pc.CanDiscover() {
		le.stats.DepthGated++
		return
	}

	res := parse.ResolveReference(pc.PageURL, ref)
	switch res.Outcome {
	case parse.ResolveEmpty:
		return
	case parse.ResolveMalformed:
		le.stats.Malformed++
		le.log.WithFields(logrus.Fields{
			"tag":      tag.String(),
			"category": utils.CategorizeError(res.Err),
		}).Warnf("Skipping malformed link reference: %v", res.Err)
		return
	case parse.ResolveOpaque:
		le.stats.Opaque++
		le.log.Debugf("Skipping non-crawlable link: %s", ref)
		return
	case parse.ResolveUnsupported:
		le.stats.Unsupported++
		le.log.WithField("tag", tag.String()).Infof("Skipping link with unsupported scheme or missing host: %s", res.URL)
		return
	}

	added, err := le.visited.MarkVisited(res.URL)
	if err != nil {
		le.stats.StoreErrors++
		le.log.Error(utils.WrapErrorf(utils.ErrDatabase, "checking/marking link '%s' visited: %v", res.URL, err))
		return
	}
	if !added {
		le.stats.Duplicate++
		le.log.Debugf("Link already visited/pending, skipping queue: %s", res.URL)
		return
	}

	le.sink.Add(&models.FrontierEntry{URL: res.URL, Depth: pc.Depth + 1})
	le.stats.Queued++
	le.log.Debugf("Queued new link: %s (depth %d)", res.URL, pc.Depth+1)
}

// Stats returns the counters accumulated so far
func (le *LinkExtractor) Stats() LinkStats {
	return le.stats
}
