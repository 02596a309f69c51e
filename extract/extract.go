// Package extract turns one rendered page into raw offer candidates. Three
// strategies are tried in order, each a fallback for the previous one when it
// yields nothing: anchors matching item-detail links, a raw-markup id scan,
// and generic layout containers.
package extract

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"marketwatch/browse"
	"marketwatch/pkg/offer"
)

// itemLinkRe matches an item-detail path: a segment "item" followed by a
// long numeric id. Short ids are navigation noise, not listings.
var itemLinkRe = regexp.MustCompile(`(?:^|/)item/\d{10,}(?:/|$)`)

// itemPathRe captures a full item path out of raw markup (pattern strategy).
var itemPathRe = regexp.MustCompile(`((?:/[A-Za-z0-9_.\-]+)*/item/(\d{10,}))`)

const (
	minTitleLen          = 4 // anchor strategy: shortest line accepted as a title
	minContainerTitleLen = 6 // container strategy threshold
)

type strategy struct {
	name string
	run  func(doc *browse.Document) []offer.RawCandidate
}

// Extractor extracts candidates from rendered documents.
type Extractor struct {
	origin *url.URL
	limit  int
	logger *slog.Logger
}

// New creates an Extractor. origin resolves relative listing links; limit
// bounds the number of candidates returned per document.
func New(origin string, limit int, logger *slog.Logger) (*Extractor, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, err
	}
	return &Extractor{origin: base, limit: limit, logger: logger}, nil
}

// Extract runs the strategy chain and returns at most limit candidates. A
// strategy that fails or finds nothing falls through to the next; an empty
// result is not an error.
func (e *Extractor) Extract(doc *browse.Document) []offer.RawCandidate {
	strategies := []strategy{
		{"anchor", e.anchorStrategy},
		{"pattern", e.patternStrategy},
		{"container", e.containerStrategy},
	}

	for _, s := range strategies {
		candidates := s.run(doc)
		if len(candidates) == 0 {
			e.logger.Debug("Strategy yielded no candidates, falling through", "strategy", s.name, "url", doc.URL)
			continue
		}
		if len(candidates) > e.limit {
			e.logger.Info("Capping extracted candidates",
				"strategy", s.name,
				"found", len(candidates),
				"limit", e.limit)
			candidates = candidates[:e.limit]
		}
		e.logger.Info("Extraction complete",
			"strategy", s.name,
			"url", doc.URL,
			"candidates", len(candidates))
		return candidates
	}

	e.logger.Warn("All extraction strategies yielded nothing", "url", doc.URL)
	return nil
}

// anchorStrategy walks every hyperlink whose href looks like an item-detail
// URL. The anchor's rendered text carries the listing tile: the price is the
// first line with a currency marker, the title the first non-price line of
// plausible length.
func (e *Extractor) anchorStrategy(doc *browse.Document) []offer.RawCandidate {
	var candidates []offer.RawCandidate
	seen := make(map[string]bool)

	doc.Doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		link, path, ok := e.normalizeLink(href)
		if !ok || !itemLinkRe.MatchString(path) {
			return
		}

		id, ok := externalIDFromPath(path)
		if !ok || seen[id] {
			return
		}

		priceText, title := splitTile(sel.Text(), minTitleLen)
		if priceText == "" {
			// No price line means this anchor is not a listing tile.
			return
		}

		seen[id] = true
		candidates = append(candidates, offer.RawCandidate{
			ExternalID: id,
			Title:      title,
			PriceText:  priceText,
			Link:       link,
			Confidence: offer.ConfidenceFull,
		})
	})

	return candidates
}

// patternStrategy scans the raw markup for item ids when anchors are
// unavailable or mangled. Only the id is reliable: the title is a
// placeholder and the price unknown, flagged ID_ONLY for follow-up.
func (e *Extractor) patternStrategy(doc *browse.Document) []offer.RawCandidate {
	var candidates []offer.RawCandidate
	seen := make(map[string]bool)

	for _, m := range itemPathRe.FindAllStringSubmatch(doc.HTML, -1) {
		path, id := m[1], m[2]
		if seen[id] {
			continue
		}
		seen[id] = true

		link := e.origin.ResolveReference(&url.URL{Path: path}).String()
		candidates = append(candidates, offer.RawCandidate{
			ExternalID: id,
			Title:      "Listing " + id,
			PriceText:  "",
			Link:       link,
			Confidence: offer.ConfidenceIDOnly,
		})
	}

	return candidates
}

// containerStrategy is the last resort: parse the generic layout tiles the
// marketplace renders listings into, matching on visible text blocks.
func (e *Extractor) containerStrategy(doc *browse.Document) []offer.RawCandidate {
	var candidates []offer.RawCandidate
	seen := make(map[string]bool)

	doc.Doc.Find(`div[style*="max-width"]`).Each(func(_ int, sel *goquery.Selection) {
		priceText, title := splitTile(sel.Text(), minContainerTitleLen)
		if priceText == "" {
			return
		}

		href, exists := sel.Find("a[href]").First().Attr("href")
		if !exists {
			return
		}
		link, path, ok := e.normalizeLink(href)
		if !ok {
			return
		}
		id, ok := externalIDFromPath(path)
		if !ok || seen[id] {
			return
		}

		seen[id] = true
		candidates = append(candidates, offer.RawCandidate{
			ExternalID: id,
			Title:      title,
			PriceText:  priceText,
			Link:       link,
			Confidence: offer.ConfidenceFull,
		})
	})

	return candidates
}

// normalizeLink resolves href against the site origin and strips query
// parameters and fragments (tracking noise). Returns the absolute link and
// its path.
func (e *Extractor) normalizeLink(href string) (link, path string, ok bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", "", false
	}
	u := e.origin.ResolveReference(ref)
	u.RawQuery = ""
	u.Fragment = ""
	if u.Path == "" || u.Path == "/" {
		return "", "", false
	}
	return u.String(), u.Path, true
}

// externalIDFromPath derives the stable listing id from a normalized path:
// the last or second-to-last segment, whichever is numeric.
func externalIDFromPath(path string) (string, bool) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(segments) - 1; i >= 0 && i >= len(segments)-2; i-- {
		if isNumeric(segments[i]) {
			return segments[i], true
		}
	}
	return "", false
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// splitTile separates a tile's rendered text into its price line (first line
// with a currency marker) and title line (first non-price line longer than
// minLen runes). An empty price means the tile is not a listing.
func splitTile(text string, minLen int) (priceText, title string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		isPrice := strings.Contains(line, "$")
		switch {
		case isPrice && priceText == "":
			priceText = line
		case !isPrice && title == "" && utf8.RuneCountInString(line) >= minLen:
			title = line
		}
		if priceText != "" && title != "" {
			break
		}
	}
	return priceText, title
}
