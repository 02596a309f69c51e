// Package browse provides the document sources the scanner reads from: a
// plain HTTP fetcher and a Playwright-rendered browser page. Both hand back
// the same Document so the extractor does not care which one produced it.
package browse

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Document is a rendered page: the raw markup plus a parsed handle.
type Document struct {
	URL  string
	HTML string
	Doc  *goquery.Document
}

// NewDocument parses markup into a Document.
func NewDocument(pageURL, markup string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	return &Document{URL: pageURL, HTML: markup, Doc: doc}, nil
}

// Settle is the heuristic wait policy applied after navigation so lazy
// content can materialize. It is bounded; extraction tolerates partial pages.
type Settle struct {
	Delay       time.Duration // fixed wait after navigation
	ScrollSteps int           // number of scroll-and-wait steps
	StepDelay   time.Duration // wait between scroll steps
}

// BlockedError indicates the site refused the request (login wall, anti-bot
// challenge). Not worth retrying within a cycle.
type BlockedError struct {
	URL        string
	StatusCode int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked with HTTP %d: %s", e.StatusCode, e.URL)
}

// IsBlocked checks if an error is a BlockedError.
func IsBlocked(err error) bool {
	var blocked *BlockedError
	return errors.As(err, &blocked)
}
