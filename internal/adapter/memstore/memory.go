package memstore

import (
	"fmt"
	"sort"
	"sync"

	"sentry/internal/domain"
)

// MemoryStore is an IndexStore that lives only as long as the process.
type MemoryStore struct {
	mu      sync.RWMutex
	metas   map[string]domain.IndexMeta
	entries map[string][]domain.CorpusEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		metas:   make(map[string]domain.IndexMeta),
		entries: make(map[string][]domain.CorpusEntry),
	}
}

func (s *MemoryStore) ReplaceIndex(meta domain.IndexMeta, entries []domain.CorpusEntry) error {
	if meta.Name == "" {
		return fmt.Errorf("index name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]domain.CorpusEntry, len(entries))
	copy(copied, entries)

	meta.Entries = len(copied)
	s.metas[meta.Name] = meta
	s.entries[meta.Name] = copied
	return nil
}

func (s *MemoryStore) LoadIndex(name string) (domain.IndexMeta, []domain.CorpusEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.metas[name]
	if !ok {
		return domain.IndexMeta{}, nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
	}
	entries := make([]domain.CorpusEntry, len(s.entries[name]))
	copy(entries, s.entries[name])
	return meta, entries, nil
}

func (s *MemoryStore) ListIndexes() ([]domain.IndexMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metas := make([]domain.IndexMeta, 0, len(s.metas))
	for _, meta := range s.metas {
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas, nil
}

func (s *MemoryStore) DeleteIndex(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.metas[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
	}
	delete(s.metas, name)
	delete(s.entries, name)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
