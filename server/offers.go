package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"marketwatch/pkg/offer"
)

// handleOffers serves recent offers as JSON, narrowed by the shared view
// filters.
func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	records, err := s.store.Recent(r.Context(), recentLimit)
	if err != nil {
		s.logger.Error("Failed to load offers", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	filtered := applyViewFilters(records, r)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(filtered); err != nil {
		s.logger.Warn("Failed to encode offers response", "error", err)
	}
}

// applyViewFilters narrows records by the request's q/min/max query params.
// Offers without a parsed price pass the price bounds unfiltered.
func applyViewFilters(records []offer.Record, r *http.Request) []offer.Record {
	q := strings.ToLower(r.URL.Query().Get("q"))
	minP, hasMin := parseIntParam(r, "min")
	maxP, hasMax := parseIntParam(r, "max")

	filtered := make([]offer.Record, 0, len(records))
	for _, rec := range records {
		if q != "" && !strings.Contains(strings.ToLower(rec.Title), q) {
			continue
		}
		if rec.PriceNumeric > 0 {
			if hasMin && rec.PriceNumeric < minP {
				continue
			}
			if hasMax && rec.PriceNumeric > maxP {
				continue
			}
		}
		filtered = append(filtered, rec)
	}
	return filtered
}

func parseIntParam(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
