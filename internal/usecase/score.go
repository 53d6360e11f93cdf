package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"sentry/internal/domain"
	"sentry/internal/metrics"
	"sentry/internal/port"
)

// readinessProbe is embedded by Ready to check the embedder against the index.
const readinessProbe = "GET /healthz 200"

// Scorer turns a record into an anomaly score and a verdict. The threshold is
// fixed at construction.
type Scorer struct {
	embedder  port.Embedder
	index     port.BaselineIndex
	threshold float64
	clock     func() time.Time
}

// Explanation is a score together with the closest normal pattern.
type Explanation struct {
	Score    float64
	IsThreat bool
	Nearest  domain.Neighbor
}

func NewScorer(embedder port.Embedder, index port.BaselineIndex, threshold float64) (*Scorer, error) {
	if embedder == nil || index == nil {
		return nil, fmt.Errorf("scorer needs an embedder and a baseline index")
	}
	if threshold < 0 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("threshold must be non-negative, got %v", threshold)
	}
	return &Scorer{
		embedder:  embedder,
		index:     index,
		threshold: threshold,
		clock:     time.Now,
	}, nil
}

func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// Score returns the distance from text to its nearest baseline entry, rounded
// to 4 decimals.
func (s *Scorer) Score(ctx context.Context, text string) (float64, error) {
	vec, err := s.embed(ctx, text)
	if err != nil {
		return 0, err
	}
	d, err := s.index.Nearest(vec)
	if err != nil {
		return 0, err
	}
	return round4(d), nil
}

// Classify reports whether score is strictly above the threshold.
func (s *Scorer) Classify(score float64) bool {
	return score > s.threshold
}

// Evaluate scores and classifies one record. Any failure fails the whole call.
func (s *Scorer) Evaluate(ctx context.Context, rec domain.Record) (domain.Classification, error) {
	score, err := s.Score(ctx, rec.Text)
	if err != nil {
		return domain.Classification{}, err
	}
	isThreat := s.Classify(score)

	verdict := "normal"
	if isThreat {
		verdict = "threat"
	}
	metrics.RecordsScored.WithLabelValues(verdict).Inc()
	metrics.AnomalyScore.Observe(score)

	return domain.Classification{
		Record:       rec,
		Score:        score,
		IsThreat:     isThreat,
		ClassifiedAt: s.clock(),
	}, nil
}

// Explain is Score plus the closest normal pattern.
func (s *Scorer) Explain(ctx context.Context, text string) (Explanation, error) {
	vec, err := s.embed(ctx, text)
	if err != nil {
		return Explanation{}, err
	}
	n, err := s.index.NearestEntry(vec)
	if err != nil {
		return Explanation{}, err
	}
	n.Distance = round4(n.Distance)
	return Explanation{
		Score:    n.Distance,
		IsThreat: s.Classify(n.Distance),
		Nearest:  n,
	}, nil
}

// Ready checks that the index has entries and that the embedder produces
// vectors of the index's dimension.
func (s *Scorer) Ready(ctx context.Context) error {
	if s.index.Len() == 0 {
		return domain.ErrEmptyIndex
	}
	vec, err := s.embed(ctx, readinessProbe)
	if err != nil {
		return fmt.Errorf("embedder not ready: %w", err)
	}
	if len(vec) != s.index.Dimension() {
		return fmt.Errorf("%w: embedder %s produces %d, index has %d",
			domain.ErrDimensionMismatch, s.embedder.ModelName(), len(vec), s.index.Dimension())
	}
	return nil
}

func (s *Scorer) embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(vecs))
	}
	return vecs[0], nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
