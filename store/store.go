// Package store persists offer records and answers the one question the
// pipeline cares about: has this listing been seen before. Registration is
// insert-if-absent; the insert itself is the conflict point, so overlapping
// cycles cannot double-register an id.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"marketwatch/pkg/offer"
)

const localFileName = "offers.json"

// LocalStore keeps records in a single JSON file. Development backend; a
// mutex makes the check-and-insert atomic within the one process that owns
// the store.
type LocalStore struct {
	mu      sync.Mutex
	path    string
	records map[string]offer.Record
	logger  *slog.Logger
}

// OpenLocal creates or loads a file-backed store under dir.
func OpenLocal(dir string, logger *slog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	s := &LocalStore{
		path:    filepath.Join(dir, localFileName),
		records: make(map[string]offer.Record),
		logger:  logger,
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", s.path, err)
		}
		return s, nil
	}

	var records []offer.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	for _, rec := range records {
		s.records[rec.ID] = rec
	}
	logger.Info("Loaded offer store", "path", s.path, "records", len(s.records))
	return s, nil
}

// TryRegister inserts rec if its id is absent. Returns true when the record
// was created, false when the id was already known. Existing rows are never
// touched.
func (s *LocalStore) TryRegister(_ context.Context, rec offer.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return false, nil
	}

	if rec.FirstSeenAt.IsZero() {
		rec.FirstSeenAt = time.Now().UTC()
	}
	s.records[rec.ID] = rec

	if err := s.save(); err != nil {
		// Roll back so a later cycle retries the registration.
		delete(s.records, rec.ID)
		return false, err
	}
	return true, nil
}

// Recent returns up to limit records, newest first.
func (s *LocalStore) Recent(_ context.Context, limit int) ([]offer.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]offer.Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].FirstSeenAt.After(records[j].FirstSeenAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// save writes the full record set. Called with the mutex held.
func (s *LocalStore) save() error {
	records := make([]offer.Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].FirstSeenAt.Before(records[j].FirstSeenAt)
	})

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal offers: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
