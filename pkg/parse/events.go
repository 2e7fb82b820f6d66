package parse

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Sriram-PR/wordcrawl/pkg/utils"
)

// Position locates an event in the page's byte stream
type Position struct {
	Offset int // Byte offset of the token's raw bytes in the input
	Index  int // Zero-based index of the token among all tokens read
}

// EventHandler consumes the parse events of a single page in document order
type EventHandler interface {
	OnSimpleTag(tag atom.Atom, attrs []html.Attribute, pos Position)
	OnStartTag(tag atom.Atom, attrs []html.Attribute, pos Position)
	OnText(text string, pos Position)
}

// Elements whose text content is never rendered.
// iframe, noembed and noframes hold fallback markup that the tokenizer reads as raw text.
var hiddenTextElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Noembed:  true,
	atom.Noframes: true,
}

// Stream tokenizes r and dispatches start-tag, self-closing-tag and text events to h.
// Text inside the elements of hiddenTextElements is not dispatched.
// A self-closing form such as <script/> still opens the element, since the slash is ignored on non-void elements.
// Adjacent text runs are delivered as the tokenizer produces them, without merging.
// Reaching the end of input returns nil; any other read error is wrapped in utils.ErrParsing.
func Stream(r io.Reader, h EventHandler) error {
	z := html.NewTokenizer(r)
	offset := 0
	hiddenDepth := 0

	for index := 0; ; index++ {
		tt := z.Next()
		if tt == html.ErrorToken {
			err := z.Err()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: tokenizing HTML at byte %d: %w", utils.ErrParsing, offset, err)
		}

		pos := Position{Offset: offset, Index: index}
		offset += len(z.Raw())

		switch tt {
		case html.StartTagToken:
			tok := z.Token()
			if hiddenTextElements[tok.DataAtom] {
				hiddenDepth++
			}
			h.OnStartTag(tok.DataAtom, tok.Attr, pos)
		case html.SelfClosingTagToken:
			tok := z.Token()
			if hiddenTextElements[tok.DataAtom] {
				hiddenDepth++
			}
			h.OnSimpleTag(tok.DataAtom, tok.Attr, pos)
		case html.EndTagToken:
			tok := z.Token()
			if hiddenTextElements[tok.DataAtom] && hiddenDepth > 0 {
				hiddenDepth--
			}
		case html.TextToken:
			if hiddenDepth > 0 {
				continue
			}
			h.OnText(string(z.Text()), pos)
		}
	}
}
