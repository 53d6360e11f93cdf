package store

import (
	"fmt"

	"sentry/internal/domain"
	"sentry/internal/port"
)

// MemoryIndex is a read-only baseline index held in memory.
// Uses brute-force search; corpus sizes here are thousands of lines, not millions.
type MemoryIndex struct {
	entries   []domain.CorpusEntry
	metric    Metric
	dimension int
}

// NewBaselineIndex builds an index over entries. All vectors must share one dimension.
func NewBaselineIndex(entries []domain.CorpusEntry, metric Metric) (*MemoryIndex, error) {
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}

	dimension := 0
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if i == 0 {
			dimension = len(e.Vector)
		}
		if len(e.Vector) != dimension {
			return nil, fmt.Errorf("%w: entry %s has %d, expected %d", domain.ErrDimensionMismatch, e.ID, len(e.Vector), dimension)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("duplicate entry id: %s", e.ID)
		}
		seen[e.ID] = struct{}{}
	}

	return &MemoryIndex{
		entries:   entries,
		metric:    metric,
		dimension: dimension,
	}, nil
}

// LoadBaselineIndex reads a persisted index and builds it with the stored metric.
func LoadBaselineIndex(st port.IndexStore, name string) (*MemoryIndex, domain.IndexMeta, error) {
	meta, entries, err := st.LoadIndex(name)
	if err != nil {
		return nil, meta, err
	}
	metric, err := ParseMetric(meta.Metric)
	if err != nil {
		return nil, meta, fmt.Errorf("index %s: %w", name, err)
	}
	idx, err := NewBaselineIndex(entries, metric)
	if err != nil {
		return nil, meta, fmt.Errorf("index %s: %w", name, err)
	}
	return idx, meta, nil
}

// Nearest returns the minimum distance from vector to any entry.
func (m *MemoryIndex) Nearest(vector []float32) (float64, error) {
	n, err := m.NearestEntry(vector)
	if err != nil {
		return 0, err
	}
	return n.Distance, nil
}

// NearestEntry returns the closest entry. Ties resolve to the earliest corpus position.
func (m *MemoryIndex) NearestEntry(vector []float32) (domain.Neighbor, error) {
	if len(m.entries) == 0 {
		return domain.Neighbor{}, domain.ErrEmptyIndex
	}
	if len(vector) != m.dimension {
		return domain.Neighbor{}, fmt.Errorf("%w: query has %d, index has %d", domain.ErrDimensionMismatch, len(vector), m.dimension)
	}

	best := -1
	bestDist := 0.0
	for i := range m.entries {
		d := m.metric.Distance(vector, m.entries[i].Vector)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}

	e := m.entries[best]
	return domain.Neighbor{ID: e.ID, Text: e.Text, Distance: bestDist}, nil
}

func (m *MemoryIndex) Len() int {
	return len(m.entries)
}

func (m *MemoryIndex) Dimension() int {
	return m.dimension
}

func (m *MemoryIndex) Metric() Metric {
	return m.metric
}

// Entries exposes the stored entries for calibration. Callers must not modify them.
func (m *MemoryIndex) Entries() []domain.CorpusEntry {
	return m.entries
}
