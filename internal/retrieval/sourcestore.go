package retrieval

import (
	"context"
	"sync"
)

// MemorySourceStore is the in-memory SourceStore used in tests and local runs.
type MemorySourceStore struct {
	mu      sync.RWMutex
	records map[string]SourceRecord
}

func NewMemorySourceStore() *MemorySourceStore {
	return &MemorySourceStore{records: map[string]SourceRecord{}}
}

func (s *MemorySourceStore) Put(ctx context.Context, records []SourceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		s.records[r.ID] = r
	}
	return nil
}

// GetByIDs returns records for the ids that exist, preserving input order.
// Missing ids are skipped, not errors.
func (s *MemorySourceStore) GetByIDs(ctx context.Context, ids []string) ([]SourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SourceRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}
