package store

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sentry/internal/domain"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	st, err := NewBoltStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testSpec() BuildSpec {
	return BuildSpec{Provider: "mock", Model: "mock", Dimension: 2, Metric: MetricL2}
}

func entriesN(n int) []domain.CorpusEntry {
	entries := make([]domain.CorpusEntry, n)
	for i := range entries {
		entries[i] = domain.CorpusEntry{
			ID:     fmt.Sprintf("id_%d", i),
			Vector: []float32{float32(i), 0},
			Text:   fmt.Sprintf("line %d", i),
		}
	}
	return entries
}

func TestBoltStore_ReplaceAndLoadKeepsOrder(t *testing.T) {
	st := openTestStore(t)

	// more than 10 entries so lexical id ordering would differ from positions
	entries := entriesN(12)
	require.NoError(t, st.ReplaceIndex(NewIndexMeta("normal_patterns", testSpec(), 0.12), entries))

	meta, loaded, err := st.LoadIndex("normal_patterns")
	require.NoError(t, err)
	assert.Equal(t, 12, meta.Entries)
	assert.Equal(t, "l2", meta.Metric)
	assert.Equal(t, CurrentSchemaVersion, meta.SchemaVersion)
	require.Len(t, loaded, 12)
	for i, e := range loaded {
		assert.Equal(t, fmt.Sprintf("id_%d", i), e.ID)
		assert.Equal(t, entries[i].Text, e.Text)
		assert.Equal(t, entries[i].Vector, e.Vector)
	}
}

func TestBoltStore_RebuildReplacesNeverMerges(t *testing.T) {
	st := openTestStore(t)

	require.NoError(t, st.ReplaceIndex(NewIndexMeta("idx", testSpec(), 0.12), entriesN(5)))
	require.NoError(t, st.ReplaceIndex(NewIndexMeta("idx", testSpec(), 0.12), entriesN(2)))

	meta, loaded, err := st.LoadIndex("idx")
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Entries)
	assert.Len(t, loaded, 2)
}

func TestBoltStore_IndexesAreIsolatedByName(t *testing.T) {
	st := openTestStore(t)

	require.NoError(t, st.ReplaceIndex(NewIndexMeta("a", testSpec(), 0.12), entriesN(3)))
	require.NoError(t, st.ReplaceIndex(NewIndexMeta("b", testSpec(), 0.12), entriesN(1)))

	metas, err := st.ListIndexes()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "a", metas[0].Name)
	assert.Equal(t, 3, metas[0].Entries)
	assert.Equal(t, "b", metas[1].Name)

	require.NoError(t, st.DeleteIndex("a"))
	_, _, err = st.LoadIndex("a")
	assert.True(t, errors.Is(err, domain.ErrIndexNotFound))

	_, loaded, err := st.LoadIndex("b")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestBoltStore_MissingIndex(t *testing.T) {
	st := openTestStore(t)

	_, _, err := st.LoadIndex("nope")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
	assert.ErrorIs(t, st.DeleteIndex("nope"), domain.ErrIndexNotFound)
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	st, err := NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, st.ReplaceIndex(NewIndexMeta("idx", testSpec(), 0.12), entriesN(4)))
	require.NoError(t, st.Close())

	st2, err := NewBoltStore(path)
	require.NoError(t, err)
	defer st2.Close()

	idx, meta, err := LoadBaselineIndex(st2, "idx")
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, testSpec().Fingerprint(), meta.Fingerprint)
}

func TestMemoryIndex_Nearest(t *testing.T) {
	idx, err := NewBaselineIndex(entriesN(4), MetricL2)
	require.NoError(t, err)

	d, err := idx.Nearest([]float32{2, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)

	n, err := idx.NearestEntry([]float32{2.9, 1})
	require.NoError(t, err)
	assert.Equal(t, "id_3", n.ID)
	assert.InDelta(t, 0.01+1.0, n.Distance, 1e-6)
}

func TestMemoryIndex_TiesResolveToEarliestEntry(t *testing.T) {
	entries := []domain.CorpusEntry{
		{ID: "id_0", Vector: []float32{1, 0}, Text: "first"},
		{ID: "id_1", Vector: []float32{1, 0}, Text: "second"},
	}
	idx, err := NewBaselineIndex(entries, MetricCosine)
	require.NoError(t, err)

	n, err := idx.NearestEntry([]float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, "first", n.Text)
}

func TestMemoryIndex_Errors(t *testing.T) {
	empty, err := NewBaselineIndex(nil, MetricL2)
	require.NoError(t, err)
	_, err = empty.Nearest([]float32{1})
	assert.ErrorIs(t, err, domain.ErrEmptyIndex)

	idx, err := NewBaselineIndex(entriesN(2), MetricL2)
	require.NoError(t, err)
	_, err = idx.Nearest([]float32{1, 2, 3})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = NewBaselineIndex([]domain.CorpusEntry{
		{ID: "a", Vector: []float32{1, 2}},
		{ID: "b", Vector: []float32{1}},
	}, MetricL2)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = NewBaselineIndex(entriesN(1), Metric("manhattan"))
	assert.Error(t, err)
}

func TestMetricDistance(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	assert.InDelta(t, 2.0, MetricL2.Distance(a, b), 1e-9)
	assert.InDelta(t, math.Sqrt2, MetricEuclidean.Distance(a, b), 1e-9)
	assert.InDelta(t, 1.0, MetricCosine.Distance(a, b), 1e-9)
	assert.Equal(t, 0.0, MetricCosine.Distance(a, a))
	assert.Equal(t, 1.0, MetricCosine.Distance(a, []float32{0, 0}))

	_, err := ParseMetric("dot")
	assert.Error(t, err)
	m, err := ParseMetric("cosine")
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, m)
}

func TestCheckCompatibility(t *testing.T) {
	spec := testSpec()
	meta := NewIndexMeta("idx", spec, 0.12)

	res := CheckCompatibility(meta, spec)
	assert.True(t, res.Compatible)
	assert.Empty(t, res.Reasons)

	swapped := spec
	swapped.Model = "text-embedding-3-small"
	res = CheckCompatibility(meta, swapped)
	assert.False(t, res.Compatible)
	assert.Contains(t, res.Reason(), "embedding model changed")

	otherMetric := spec
	otherMetric.Metric = MetricCosine
	res = CheckCompatibility(meta, otherMetric)
	assert.False(t, res.Compatible)
	assert.Contains(t, res.Reason(), "distance metric changed")

	future := meta
	future.SchemaVersion = CurrentSchemaVersion + 1
	res = CheckCompatibility(future, spec)
	assert.False(t, res.Compatible)
	assert.Contains(t, res.Reason(), "newer version")
}
