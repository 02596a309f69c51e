// Package offer contains the core domain types for the marketplace monitor.
package offer

import "time"

// Confidence indicates how much of a listing the extractor recovered.
type Confidence string

const (
	// ConfidenceFull means title, price and link were all parsed.
	ConfidenceFull Confidence = "FULL"
	// ConfidenceIDOnly means only the listing id was recoverable; title is a
	// placeholder and the price is unknown.
	ConfidenceIDOnly Confidence = "ID_ONLY"
)

// RejectionReason explains why a candidate was excluded from dedup/notify.
type RejectionReason string

const (
	ReasonPriceOutOfRange  RejectionReason = "PRICE_OUT_OF_RANGE"
	ReasonNegativeKeyword  RejectionReason = "NEGATIVE_KEYWORD"
	ReasonUnparseablePrice RejectionReason = "UNPARSEABLE_PRICE"
)

// SearchQuery is one configured marketplace search. Immutable; the scan
// controller iterates queries in configuration order.
type SearchQuery struct {
	Query    string `yaml:"query"`
	MinPrice *int   `yaml:"min_price"`
	MaxPrice *int   `yaml:"max_price"`
}

// Bounded reports whether the query carries a configured price band. A band
// may be one-sided.
func (q SearchQuery) Bounded() bool {
	return q.MinPrice != nil || q.MaxPrice != nil
}

// InBand reports whether price falls inside the configured band, bounds
// inclusive. An unbounded side always passes.
func (q SearchQuery) InBand(price int) bool {
	if q.MinPrice != nil && price < *q.MinPrice {
		return false
	}
	if q.MaxPrice != nil && price > *q.MaxPrice {
		return false
	}
	return true
}

// RawCandidate is one listing as extracted from a rendered page. It lives
// only within a single extraction pass.
type RawCandidate struct {
	ExternalID string     // stable id mined from the listing link
	Title      string
	PriceText  string
	Link       string     // absolute URL with tracking parameters stripped
	Confidence Confidence
}

// Record is the durable form of an accepted offer. Written exactly once per
// ExternalID; later sightings never touch the stored row.
type Record struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	PriceText    string     `json:"price_text"`
	PriceNumeric int        `json:"price_numeric"`
	Link         string     `json:"link"`
	Confidence   Confidence `json:"confidence"`
	FirstSeenAt  time.Time  `json:"first_seen_at"`
}
