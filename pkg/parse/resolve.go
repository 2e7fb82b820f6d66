package parse

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Sriram-PR/wordcrawl/pkg/utils"
)

// ResolveOutcome classifies the result of resolving a link reference
type ResolveOutcome int

const (
	ResolveOK          ResolveOutcome = iota // URL holds the canonical absolute form
	ResolveEmpty                             // Missing or blank reference
	ResolveMalformed                         // Reference could not be parsed, Err is set
	ResolveOpaque                            // Non-hierarchical form such as mailto:, javascript: or tel:
	ResolveUnsupported                       // Hierarchical but not http(s) with a host, e.g. ftp:// or file:///
)

// String implements fmt.Stringer for logging
func (o ResolveOutcome) String() string {
	switch o {
	case ResolveOK:
		return "ok"
	case ResolveEmpty:
		return "empty"
	case ResolveMalformed:
		return "malformed"
	case ResolveOpaque:
		return "opaque"
	case ResolveUnsupported:
		return "unsupported"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Resolution is the result of ResolveReference
type Resolution struct {
	Outcome ResolveOutcome
	URL     string // Canonical absolute URL for ResolveOK, the resolved form for ResolveUnsupported
	Err     error  // Wraps utils.ErrMalformedReference for ResolveMalformed
}

// ResolveReference resolves ref against the absolute base URL and canonicalizes it.
// It never panics; every failure is reported through the Outcome.
func ResolveReference(base *url.URL, ref string) Resolution {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Resolution{Outcome: ResolveEmpty}
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return Resolution{
			Outcome: ResolveMalformed,
			Err:     fmt.Errorf("%w: %q: %v", utils.ErrMalformedReference, ref, err),
		}
	}

	abs := refURL
	if base != nil {
		abs = base.ResolveReference(refURL)
	}

	switch outcome := classify(abs); outcome {
	case ResolveOpaque:
		return Resolution{Outcome: outcome}
	case ResolveUnsupported:
		return Resolution{Outcome: outcome, URL: abs.String()}
	}

	return Resolution{Outcome: ResolveOK, URL: Canonicalize(abs)}
}

// classify reports whether an absolute u can be fetched as a page.
// Forms without a hierarchical part (mailto:, javascript:, tel:, data:) are opaque.
// Hierarchical URLs with another scheme or without a host are unsupported.
func classify(u *url.URL) ResolveOutcome {
	if u.Opaque != "" || (u.Host == "" && u.Path == "") {
		return ResolveOpaque
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return ResolveUnsupported
	}
	return ResolveOK
}

// Canonicalize standardizes an absolute URL for visited-set comparison and storage
// It lowercases the scheme and host, removes default ports (80 for http, 443 for https), turns an empty path into "/" and drops the fragment
// The query string is part of the page identity and is kept
// Does not modify the input *url.URL
func Canonicalize(u *url.URL) string {
	if u == nil {
		return ""
	}
	// Work on a copy
	canonical := *u

	canonical.Scheme = strings.ToLower(canonical.Scheme)
	canonical.Host = strings.ToLower(canonical.Host)

	// Remove default ports
	host, port, err := net.SplitHostPort(canonical.Host)
	if err == nil {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	if canonical.Path == "" {
		canonical.Path = "/"
		canonical.RawPath = ""
	}

	canonical.Fragment = ""
	canonical.RawFragment = ""
	canonical.ForceQuery = false

	return canonical.String()
}

// ParseAbsolute parses a seed URL that must be absolute http(s) with a host and canonicalizes it
// Returns the canonical string, the parsed URL object, and any parse error
func ParseAbsolute(rawURL string) (string, *url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", nil, fmt.Errorf("%w: URL %q: %v", utils.ErrParsing, rawURL, err)
	}
	if !parsed.IsAbs() || classify(parsed) != ResolveOK {
		return "", nil, fmt.Errorf("%w: URL %q is not an absolute http(s) URL", utils.ErrParsing, rawURL)
	}
	return Canonicalize(parsed), parsed, nil
}
