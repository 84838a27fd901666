package page

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNotFound = errors.New("page: not found")

// Store persists GeneratedPage aggregates. Either the full assembled page is
// inserted or nothing is; Update only touches image backfill fields.
type Store interface {
	Insert(ctx context.Context, p *GeneratedPage) error
	Update(ctx context.Context, id string, u Update) error
	GetByID(ctx context.Context, id string) (*GeneratedPage, error)
	FindByNormalizedQuery(ctx context.Context, normalized string, minCreatedAt time.Time) (*GeneratedPage, error)
}

// MemoryStore is the in-memory Store used in tests and single-node local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*GeneratedPage
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]*GeneratedPage{}}
}

func (s *MemoryStore) Insert(ctx context.Context, p *GeneratedPage) error {
	if p == nil || p.ID == "" {
		return errors.New("page: insert requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.byID[p.ID] = &cp
	s.order = append(s.order, p.ID)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	applyUpdate(p, u)
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*GeneratedPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) FindByNormalizedQuery(ctx context.Context, normalized string, minCreatedAt time.Time) (*GeneratedPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var candidates []*GeneratedPage
	for _, p := range s.byID {
		if p.NormalizedQuery == normalized && !p.CreatedAt.Before(minCreatedAt) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	cp := *candidates[0]
	return &cp, nil
}

func applyUpdate(p *GeneratedPage, u Update) {
	if u.ContentAtoms != nil {
		p.ContentAtoms = *u.ContentAtoms
	}
	if u.ImagesReady != nil {
		p.ImagesReady = *u.ImagesReady
	}
	if u.ImageStatus != nil {
		p.ImageStatus = *u.ImageStatus
	}
}
