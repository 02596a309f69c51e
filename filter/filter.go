// Package filter normalizes raw candidates and applies the acceptance rules:
// price band and negative-keyword exclusion. Every outcome is a tagged
// result; a rejected candidate never aborts the pass.
package filter

import (
	"strconv"
	"strings"

	"marketwatch/pkg/offer"
)

// Options carries the process-wide filtering policy.
type Options struct {
	NegativeKeywords []string
	// AllowZeroPrice accepts zero-priced offers even when the query has a
	// configured price band ("Ver Link" style placeholder pricing).
	AllowZeroPrice bool
}

// Result is a normalized candidate plus the acceptance decision.
type Result struct {
	Candidate    offer.RawCandidate
	PriceNumeric int
	Accepted     bool
	Reason       offer.RejectionReason // set only when rejected
	Keyword      string                // the matched negative keyword, if any
}

// ParsePrice strips every non-digit rune from text and interprets the rest
// as a base-10 integer. Returns (0, false) when no digits are present or the
// digit run does not fit an int.
func ParsePrice(text string) (int, bool) {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, false
	}
	return n, true
}

// Normalize parses the candidate's price and decides acceptance against the
// query's price band and the negative keyword list.
func Normalize(c offer.RawCandidate, q offer.SearchQuery, opts Options) Result {
	price, parsed := ParsePrice(c.PriceText)
	res := Result{Candidate: c, PriceNumeric: price}

	// Keyword exclusion applies regardless of price.
	if kw, found := matchNegative(c.Title, opts.NegativeKeywords); found {
		res.Reason = offer.ReasonNegativeKeyword
		res.Keyword = kw
		return res
	}

	// A zero price is suspicious when the query has a band; without a band
	// it passes through (the id-only strategy produces no price at all).
	if q.Bounded() {
		if price == 0 {
			if !opts.AllowZeroPrice {
				if !parsed {
					res.Reason = offer.ReasonUnparseablePrice
				} else {
					res.Reason = offer.ReasonPriceOutOfRange
				}
				return res
			}
		} else if !q.InBand(price) {
			res.Reason = offer.ReasonPriceOutOfRange
			return res
		}
	}

	res.Accepted = true
	return res
}

// matchNegative reports the first negative keyword contained in the title,
// case-insensitively.
func matchNegative(title string, keywords []string) (string, bool) {
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}
