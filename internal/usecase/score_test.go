package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sentry/config"
	"sentry/internal/adapter/embedding"
	"sentry/internal/adapter/memstore"
	"sentry/internal/adapter/store"
	"sentry/internal/domain"
)

func newTableScorer(t *testing.T, emb *tableEmbedder, corpus []domain.CorpusEntry) *Scorer {
	t.Helper()
	idx, err := store.NewBaselineIndex(corpus, store.MetricL2)
	require.NoError(t, err)
	s, err := NewScorer(emb, idx, 0.12)
	require.NoError(t, err)
	return s
}

func TestScorer_RoundsAndClassifies(t *testing.T) {
	emb := &tableEmbedder{vectors: map[string][]float32{
		"near":     {0.1, 0},     // 0.01
		"boundary": {0.3464, 0},  // 0.11999... rounds to 0.12
		"far":      {0.34642, 0}, // 0.12000... rounds to 0.12
		"threat":   {0.4, 0},     // 0.16
	}}
	s := newTableScorer(t, emb, []domain.CorpusEntry{{ID: "id_0", Vector: []float32{0, 0}}})

	score, err := s.Score(context.Background(), "near")
	require.NoError(t, err)
	assert.Equal(t, 0.01, score)
	assert.False(t, s.Classify(score))

	score, err = s.Score(context.Background(), "boundary")
	require.NoError(t, err)
	assert.Equal(t, 0.12, score)
	assert.False(t, s.Classify(score), "threshold itself is not a threat")

	score, err = s.Score(context.Background(), "far")
	require.NoError(t, err)
	assert.Equal(t, 0.12, score)
	assert.False(t, s.Classify(score))

	score, err = s.Score(context.Background(), "threat")
	require.NoError(t, err)
	assert.Equal(t, 0.16, score)
	assert.True(t, s.Classify(score))
	assert.Equal(t, 0.12, s.Threshold())
}

func TestScorer_Deterministic(t *testing.T) {
	st := memstore.NewMemoryStore()
	emb := embedding.NewHashEmbedder(256)
	_, err := NewTrainUseCase(st, emb, TrainOptions{Name: "idx"}, nil).
		Build(context.Background(), []string{"GET /index.html 200", "GET /docs 200"}, nil)
	require.NoError(t, err)

	idx, _, err := store.LoadBaselineIndex(st, "idx")
	require.NoError(t, err)
	s, err := NewScorer(emb, idx, 0.12)
	require.NoError(t, err)

	rec := domain.Record{Position: 3, Text: "GET /wp-admin.php 404"}
	a, err := s.Evaluate(context.Background(), rec)
	require.NoError(t, err)
	b, err := s.Evaluate(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, a.Score, b.Score)
	assert.Equal(t, a.IsThreat, b.IsThreat)
	assert.Equal(t, rec, a.Record)
}

func TestScorer_EvaluateStampsClassificationTime(t *testing.T) {
	emb := &tableEmbedder{vectors: map[string][]float32{"x": {0, 0}}}
	s := newTableScorer(t, emb, []domain.CorpusEntry{{ID: "id_0", Vector: []float32{0, 0}}})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return fixed }

	cls, err := s.Evaluate(context.Background(), domain.Record{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, fixed, cls.ClassifiedAt)
	assert.Equal(t, 0.0, cls.Score)
	assert.Empty(t, cls.Explanation)
}

func TestScorer_FailuresFailWholeCall(t *testing.T) {
	emb := &tableEmbedder{vectors: map[string][]float32{"short": {1}}, failOn: "down"}
	s := newTableScorer(t, emb, []domain.CorpusEntry{{ID: "id_0", Vector: []float32{0, 0}}})

	_, err := s.Evaluate(context.Background(), domain.Record{Text: "down"})
	assert.Error(t, err)

	_, err = s.Evaluate(context.Background(), domain.Record{Text: "short"})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	empty, err := store.NewBaselineIndex(nil, store.MetricL2)
	require.NoError(t, err)
	s2, err := NewScorer(emb, empty, 0.12)
	require.NoError(t, err)
	_, err = s2.Score(context.Background(), "short")
	assert.ErrorIs(t, err, domain.ErrEmptyIndex)
}

func TestScorer_Explain(t *testing.T) {
	emb := &tableEmbedder{vectors: map[string][]float32{"query": {0.9, 0}}}
	s := newTableScorer(t, emb, []domain.CorpusEntry{
		{ID: "id_0", Vector: []float32{0, 0}, Text: "GET / 200"},
		{ID: "id_1", Vector: []float32{1, 0}, Text: "GET /about 200"},
	})

	ex, err := s.Explain(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, "id_1", ex.Nearest.ID)
	assert.Equal(t, "GET /about 200", ex.Nearest.Text)
	assert.Equal(t, 0.01, ex.Score)
	assert.False(t, ex.IsThreat)
}

func TestScorer_Ready(t *testing.T) {
	idx, err := store.NewBaselineIndex([]domain.CorpusEntry{{ID: "id_0", Vector: make([]float32, 16)}}, store.MetricL2)
	require.NoError(t, err)

	s, err := NewScorer(embedding.NewHashEmbedder(16), idx, 0.12)
	require.NoError(t, err)
	assert.NoError(t, s.Ready(context.Background()))

	s, err = NewScorer(embedding.NewHashEmbedder(32), idx, 0.12)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Ready(context.Background()), domain.ErrDimensionMismatch)

	empty, err := store.NewBaselineIndex(nil, store.MetricL2)
	require.NoError(t, err)
	s, err = NewScorer(embedding.NewHashEmbedder(16), empty, 0.12)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Ready(context.Background()), domain.ErrEmptyIndex)
}

func TestNewScorer_Validation(t *testing.T) {
	idx, err := store.NewBaselineIndex(nil, store.MetricL2)
	require.NoError(t, err)

	_, err = NewScorer(nil, idx, 0.12)
	assert.Error(t, err)
	_, err = NewScorer(embedding.NewMockEmbedder(2), idx, -1)
	assert.Error(t, err)
}

// accessCorpus is one apache access line per normal URI, as produced by the
// traffic generator the default threshold was measured on.
func accessCorpus() []string {
	uris := []string{
		"/index.html", "/contact", "/about", "/products/item1",
		"/products/item2", "/login", "/css/style.css", "/js/app.js",
	}
	ips := []string{"192.168.1.10", "10.0.0.5", "172.16.0.23", "192.168.1.55"}
	lines := make([]string, len(uris))
	for i, uri := range uris {
		lines[i] = fmt.Sprintf(`%s - - [30/Jan/2026:08:0%d:00 +0000] "GET %s HTTP/1.1" 200 %d`, ips[i%len(ips)], i, uri, 1000+137*i)
	}
	return lines
}

func defaultsScorer(t *testing.T) *Scorer {
	t.Helper()
	cfg := config.DefaultConfig()
	emb := embedding.NewHashEmbedder(cfg.Embedding.Dimension)
	require.Equal(t, cfg.Scoring.CalibratedFor, config.CalibrationKey(emb.ModelName(), cfg.Index.Metric))

	st := memstore.NewMemoryStore()
	_, err := NewTrainUseCase(st, emb, TrainOptions{Name: cfg.Index.Name, Provider: cfg.Embedding.Provider}, nil).
		Build(context.Background(), accessCorpus(), nil)
	require.NoError(t, err)
	idx, _, err := store.LoadBaselineIndex(st, cfg.Index.Name)
	require.NoError(t, err)

	s, err := NewScorer(emb, idx, cfg.Scoring.Threshold)
	require.NoError(t, err)
	return s
}

func TestScorer_DefaultsFlagFullFormatSelfTest(t *testing.T) {
	s := defaultsScorer(t)
	ctx := context.Background()

	normal, err := s.Evaluate(ctx, domain.Record{Text: `192.168.1.10 - - [30/Jan/2026:08:00:00 +0000] "GET /index.html HTTP/1.1" 200 1024`})
	require.NoError(t, err)
	assert.Equal(t, 0.0, normal.Score)
	assert.False(t, normal.IsThreat)

	sqli, err := s.Evaluate(ctx, domain.Record{Text: `192.168.66.6 - - [30/Jan/2026:08:05:00 +0000] "GET /login?user=' OR '1'='1 HTTP/1.1" 403 0`})
	require.NoError(t, err)
	assert.True(t, sqli.IsThreat, "score %.4f", sqli.Score)
}

func TestScorer_DefaultsSeparateAttacksFromNormalVariants(t *testing.T) {
	s := defaultsScorer(t)
	ctx := context.Background()

	attacks := []string{
		"/login?user=' OR '1'='1",
		"/admin/config.php",
		"/......./etc/passwd",
		"/api/v1/user?id=<script>alert(1)",
	}
	for _, uri := range attacks {
		line := fmt.Sprintf(`192.168.66.6 - - [31/Jan/2026:09:12:44 +0000] "GET %s HTTP/1.1" 403 2211`, uri)
		c, err := s.Evaluate(ctx, domain.Record{Text: line})
		require.NoError(t, err)
		assert.True(t, c.IsThreat, "%s scored %.4f", uri, c.Score)
	}

	// unseen month, timezone and method on otherwise known requests
	variants := []string{
		`10.0.0.5 - - [02/Feb/2026:23:59:01 +0000] "GET /contact HTTP/1.1" 200 4999`,
		`172.16.0.23 - - [30/Jan/2026:08:00:00 -0500] "GET /about HTTP/1.1" 200 87`,
		`192.168.1.55 - - [30/Jan/2026:08:00:00 +0000] "POST /login HTTP/1.1" 200 310`,
	}
	for _, line := range variants {
		c, err := s.Evaluate(ctx, domain.Record{Text: line})
		require.NoError(t, err)
		assert.False(t, c.IsThreat, "%s scored %.4f", line, c.Score)
	}
}
