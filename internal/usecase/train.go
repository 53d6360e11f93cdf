package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"sentry/internal/adapter/store"
	"sentry/internal/domain"
	"sentry/internal/port"
)

// TrainOptions describes the index a TrainUseCase writes.
type TrainOptions struct {
	Name      string
	Provider  string
	Metric    store.Metric
	Threshold float64
	BatchSize int
}

// TrainUseCase builds a baseline index from a normal corpus.
type TrainUseCase struct {
	store    port.IndexStore
	embedder port.Embedder
	opts     TrainOptions
	logger   *zap.Logger
}

// NewTrainUseCase creates a new train use case.
func NewTrainUseCase(st port.IndexStore, embedder port.Embedder, opts TrainOptions, logger *zap.Logger) *TrainUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Metric == "" {
		opts.Metric = store.MetricL2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrainUseCase{
		store:    st,
		embedder: embedder,
		opts:     opts,
		logger:   logger,
	}
}

// TrainResult contains the results of a build.
type TrainResult struct {
	Meta     domain.IndexMeta
	Entries  int
	Duration time.Duration
}

// ProgressFunc receives the number of embedded lines so far.
type ProgressFunc func(done, total int)

// Build embeds every corpus line and replaces the stored index. Entry ids are
// derived from corpus position. Nothing is written unless every line embeds.
func (u *TrainUseCase) Build(ctx context.Context, corpus []string, progress ProgressFunc) (*TrainResult, error) {
	start := time.Now()
	if len(corpus) == 0 {
		return nil, domain.ErrEmptyCorpus
	}
	if _, err := store.ParseMetric(string(u.opts.Metric)); err != nil {
		return nil, err
	}

	entries := make([]domain.CorpusEntry, 0, len(corpus))
	dimension := 0

	for i := 0; i < len(corpus); i += u.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := i + u.opts.BatchSize
		if end > len(corpus) {
			end = len(corpus)
		}
		batch := corpus[i:end]

		vecs, err := u.embedder.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedding corpus lines %d-%d failed: %w", i, end-1, err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d lines", len(vecs), len(batch))
		}

		for j, vec := range vecs {
			pos := i + j
			if dimension == 0 {
				dimension = len(vec)
			}
			if len(vec) == 0 || len(vec) != dimension {
				return nil, fmt.Errorf("%w: corpus line %d has %d, expected %d", domain.ErrDimensionMismatch, pos, len(vec), dimension)
			}
			entries = append(entries, domain.CorpusEntry{
				ID:     EntryID(pos),
				Vector: vec,
				Text:   batch[j],
			})
		}

		if progress != nil {
			progress(len(entries), len(corpus))
		}
	}

	spec := store.BuildSpec{
		Provider:  u.opts.Provider,
		Model:     u.embedder.ModelName(),
		Dimension: dimension,
		Metric:    u.opts.Metric,
	}
	meta := store.NewIndexMeta(u.opts.Name, spec, u.opts.Threshold)
	meta.BuiltAt = time.Now().UTC()

	if err := u.store.ReplaceIndex(meta, entries); err != nil {
		return nil, fmt.Errorf("failed to store index %s: %w", u.opts.Name, err)
	}
	meta.Entries = len(entries)

	u.logger.Info("baseline index built",
		zap.String("index", meta.Name),
		zap.Int("entries", meta.Entries),
		zap.String("model", meta.Model),
		zap.Int("dimension", meta.Dimension),
		zap.String("metric", meta.Metric),
		zap.Duration("took", time.Since(start)),
	)

	return &TrainResult{
		Meta:     meta,
		Entries:  len(entries),
		Duration: time.Since(start),
	}, nil
}

// EntryID returns the stable id of the corpus line at pos.
func EntryID(pos int) string {
	return fmt.Sprintf("id_%d", pos)
}
