package cli

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"sentry/config"
	"sentry/internal/adapter/cache"
	"sentry/internal/adapter/embedding"
	"sentry/internal/adapter/llm"
	"sentry/internal/adapter/store"
	"sentry/internal/domain"
	"sentry/internal/port"
	"sentry/internal/usecase"
)

// newEmbedder creates the configured embedder, wrapped in an LRU cache when
// embedding.cache_size is positive.
func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	ec := cfg.Embedding

	var embedder port.Embedder
	switch ec.Provider {
	case "local":
		embedder = embedding.NewHashEmbedder(ec.Dimension)
	case "openai":
		e, err := embedding.NewOpenAIEmbedder(ec.APIKeyEnv, ec.Model, ec.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		e.SetBatchSize(ec.BatchSize)
		embedder = e
	case "ollama":
		e, err := embedding.NewOllamaEmbedder(ec.Model, ec.BaseURL, ec.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		e.SetBatchSize(ec.BatchSize)
		embedder = e
	case "custom":
		e, err := embedding.NewOpenAICompatibleEmbedder(ec.APIKeyEnv, ec.Model, ec.BaseURL, ec.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		e.SetBatchSize(ec.BatchSize)
		embedder = e
	case "mock":
		embedder = embedding.NewMockEmbedder(ec.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", ec.Provider)
	}

	if ec.CacheSize > 0 {
		embedder = cache.NewCachedEmbedder(embedder, cache.NewEmbeddingCache(ec.CacheSize))
	}
	return embedder, nil
}

func buildSpec(cfg *config.Config, embedder port.Embedder) store.BuildSpec {
	return store.BuildSpec{
		Provider:  cfg.Embedding.Provider,
		Model:     embedder.ModelName(),
		Dimension: embedder.Dimension(),
		Metric:    store.Metric(cfg.Index.Metric),
	}
}

// openStore opens the index database under the root directory.
func openStore(create bool) (*store.BoltStore, string, error) {
	dir := GetRootDir()
	dbPath := config.IndexDBPath(dir)

	if create {
		if err := config.EnsureDataDir(dir); err != nil {
			return nil, "", fmt.Errorf("failed to create .sentry directory: %w", err)
		}
	} else if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, "", fmt.Errorf("no index found at %s. Run 'sentry train' first", dbPath)
	}

	st, err := store.NewBoltStore(dbPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open index store: %w", err)
	}
	return st, dbPath, nil
}

// loadScorer loads the configured index and builds a Scorer over it. A stored
// index built with a different model or metric is refused unless allowDrift.
func loadScorer(st port.IndexStore, cfg *config.Config, embedder port.Embedder, allowDrift bool) (*usecase.Scorer, domain.IndexMeta, error) {
	idx, meta, err := store.LoadBaselineIndex(st, cfg.Index.Name)
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotFound) {
			return nil, meta, fmt.Errorf("%w. Run 'sentry train' first", err)
		}
		return nil, meta, err
	}

	compat := store.CheckCompatibility(meta, buildSpec(cfg, embedder))
	if !compat.Compatible {
		if !allowDrift {
			return nil, meta, fmt.Errorf("%w: %s (rebuild with 'sentry train' or pass --allow-drift)",
				domain.ErrIncompatibleIndex, compat.Reason())
		}
		logger.Warn("scoring against an incompatible index",
			zap.String("index", meta.Name),
			zap.String("reason", compat.Reason()),
		)
	}

	if err := checkCalibration(cfg, embedder.ModelName(), allowDrift); err != nil {
		return nil, meta, err
	}

	if meta.Threshold != 0 && meta.Threshold != cfg.Scoring.Threshold {
		logger.Info("threshold differs from the one recorded at build time",
			zap.Float64("configured", cfg.Scoring.Threshold),
			zap.Float64("recorded", meta.Threshold),
		)
	}

	scorer, err := usecase.NewScorer(embedder, idx, cfg.Scoring.Threshold)
	if err != nil {
		return nil, meta, err
	}
	return scorer, meta, nil
}

// checkCalibration refuses a threshold tuned for another model or metric,
// since distances from different models are not on one scale. An empty
// scoring.calibrated_for trusts the configured threshold as is.
func checkCalibration(cfg *config.Config, model string, allowDrift bool) error {
	want := config.CalibrationKey(model, cfg.Index.Metric)
	got := cfg.Scoring.CalibratedFor
	if got == "" || got == want {
		return nil
	}

	hint := "run 'sentry calibrate --save'"
	if th, ok := embedding.RecommendedThreshold(model, cfg.Index.Metric); ok {
		hint = fmt.Sprintf("set scoring.threshold: %.4f and scoring.calibrated_for: %s, or %s", th, want, hint)
	}
	if !allowDrift {
		return fmt.Errorf("%w: threshold %.4f is for %s, scoring uses %s (%s, or pass --allow-drift)",
			domain.ErrUncalibrated, cfg.Scoring.Threshold, got, want, hint)
	}
	logger.Warn("threshold was calibrated for a different model",
		zap.Float64("threshold", cfg.Scoring.Threshold),
		zap.String("calibrated_for", got),
		zap.String("scoring_with", want),
	)
	return nil
}

// newAnalyzer returns the edge node escalator, or a static answer when
// escalation is disabled.
func newAnalyzer(cfg *config.Config) (port.Analyzer, error) {
	ec := cfg.Escalation
	if !ec.Enabled {
		return usecase.StaticAnalyzer(usecase.DisabledAnalysis), nil
	}

	client, err := llm.NewClient(llm.Options{
		BaseURL:     ec.BaseURL,
		Model:       ec.Model,
		APIKeyEnv:   ec.APIKeyEnv,
		MaxTokens:   ec.MaxTokens,
		Temperature: ec.Temperature,
		Timeout:     ec.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create edge node client: %w", err)
	}
	return usecase.NewEscalator(client, ec.Timeout, logger.Named("escalation")), nil
}

// edgeNodeStats returns usage counters of the edge node client behind a, if any.
func edgeNodeStats(a port.Analyzer) (llm.Stats, bool) {
	esc, ok := a.(*usecase.Escalator)
	if !ok {
		return llm.Stats{}, false
	}
	client, ok := esc.LLM().(*llm.Client)
	if !ok {
		return llm.Stats{}, false
	}
	return client.Stats(), true
}

// logCacheStats reports how many embeddings the cache saved, if e is cached.
func logCacheStats(e port.Embedder) {
	cached, ok := e.(*cache.CachedEmbedder)
	if !ok {
		return
	}
	hits, misses, size := cached.Stats()
	logger.Info("embedding cache",
		zap.Uint64("hits", hits),
		zap.Uint64("misses", misses),
		zap.Int("size", size),
	)
}
