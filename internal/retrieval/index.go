package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"
)

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector is zero or the dimensions disagree.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MemoryIndex is a threadsafe in-memory VectorIndex scoring by cosine
// similarity. Used in tests and local runs without Postgres.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]VectorRecord
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: map[string]VectorRecord{}}
}

func (m *MemoryIndex) Upsert(ctx context.Context, records []VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		m.records[r.ID] = r
	}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]SearchHit, error) {
	if topK <= 0 {
		topK = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]SearchHit, 0, len(m.records))
	for _, r := range m.records {
		if !matchesFilter(r.Metadata, filter) {
			continue
		}
		hits = append(hits, SearchHit{
			ID:       r.ID,
			Score:    CosineSimilarity(vector, r.Values),
			Metadata: r.Metadata,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func matchesFilter(meta, filter map[string]string) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}
