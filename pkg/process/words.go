package process

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Sriram-PR/wordcrawl/pkg/models"
	"github.com/Sriram-PR/wordcrawl/pkg/storage"
)

const minWordLen = 2

// WordCounter tokenizes text runs of one page into a shared frequency table.
// It is not safe for concurrent use (the Caser keeps state); create one per page.
type WordCounter struct {
	table   storage.FrequencyTable
	caser   cases.Caser
	counted int64
	counts  map[string]int64
}

// NewWordCounter creates a WordCounter writing to table
func NewWordCounter(table storage.FrequencyTable) *WordCounter {
	return &WordCounter{
		table: table,
		caser: cases.Lower(language.Und),
	}
}

// HandleText counts every qualifying word of text. It never fails; unusable input yields no words.
// The page context is accepted for symmetry with tag handling and does not affect counting.
func (wc *WordCounter) HandleText(text string, _ *models.PageContext) {
	for _, word := range tokenize(wc.caser, text) {
		wc.table.Increment(word)
		wc.counted++
		if wc.counts == nil {
			wc.counts = make(map[string]int64)
		}
		wc.counts[word]++
	}
}

// Counts returns the per-word counts this counter has added to the table
func (wc *WordCounter) Counts() map[string]int64 {
	return wc.counts
}

// Counted returns the number of words this counter has added to the table
func (wc *WordCounter) Counted() int64 {
	return wc.counted
}

// Tokenize returns the words of text that would be counted, in order
func Tokenize(text string) []string {
	return tokenize(cases.Lower(language.Und), text)
}

func tokenize(caser cases.Caser, text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	lowered := caser.String(text)
	fields := strings.FieldsFunc(lowered, isSeparator)

	words := fields[:0]
	for _, f := range fields {
		if isCountable(f) {
			words = append(words, f)
		}
	}
	if len(words) == 0 {
		return nil
	}
	return words
}

// isSeparator splits on whitespace, punctuation (P*) and ASCII symbols.
// Non-ASCII symbols and invalid bytes stay inside the token, so "abc©def" and "caf\xe9" are discarded whole.
func isSeparator(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	if unicode.IsSpace(r) || unicode.IsPunct(r) {
		return true
	}
	return r < utf8.RuneSelf && unicode.IsSymbol(r)
}

// isCountable keeps tokens of at least minWordLen letters in a-z
func isCountable(token string) bool {
	if len(token) < minWordLen {
		return false
	}
	for i := 0; i < len(token); i++ {
		if token[i] < 'a' || token[i] > 'z' {
			return false
		}
	}
	return true
}
