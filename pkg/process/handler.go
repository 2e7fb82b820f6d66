package process

import (
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Sriram-PR/wordcrawl/pkg/models"
	"github.com/Sriram-PR/wordcrawl/pkg/parse"
	"github.com/Sriram-PR/wordcrawl/pkg/storage"
)

// PageHandler routes a page's parse events: tags to the LinkExtractor, text to the WordCounter
type PageHandler struct {
	page  *models.PageContext
	links *LinkExtractor
	words *WordCounter
}

var _ parse.EventHandler = (*PageHandler)(nil)

// NewPageHandler creates a PageHandler for one page
func NewPageHandler(page *models.PageContext, links *LinkExtractor, words *WordCounter) *PageHandler {
	return &PageHandler{page: page, links: links, words: words}
}

// OnSimpleTag handles a self-closing tag exactly like a start tag
func (h *PageHandler) OnSimpleTag(tag atom.Atom, attrs []html.Attribute, pos parse.Position) {
	h.OnStartTag(tag, attrs, pos)
}

// OnStartTag implements parse.EventHandler
func (h *PageHandler) OnStartTag(tag atom.Atom, attrs []html.Attribute, _ parse.Position) {
	h.links.HandleTag(tag, attrs, h.page)
}

// OnText implements parse.EventHandler
func (h *PageHandler) OnText(text string, _ parse.Position) {
	h.words.HandleText(text, h.page)
}

// PageResult summarizes the processing of one page
type PageResult struct {
	Links LinkStats
	Words      int64            // Qualifying tokens counted
	WordCounts map[string]int64 // Per-word counts added to the table by this page
}

// ProcessPage streams body through a fresh handler for page, updating the shared visited set and frequency table
// A tokenizer error is returned after the events read up to that point have been applied
func ProcessPage(
	body io.Reader,
	page *models.PageContext,
	visited storage.VisitedSet,
	table storage.FrequencyTable,
	sink FrontierSink,
	log *logrus.Entry,
) (PageResult, error) {
	links := NewLinkExtractor(visited, sink, log)
	words := NewWordCounter(table)

	err := parse.Stream(body, NewPageHandler(page, links, words))
	return PageResult{Links: links.Stats(), Words: words.Counted(), WordCounts: words.Counts()}, err
}
