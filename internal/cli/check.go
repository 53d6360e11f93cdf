package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"sentry/internal/adapter/fs"
	"sentry/internal/adapter/memstore"
	"sentry/internal/adapter/store"
	"sentry/internal/port"
	"sentry/internal/usecase"
)

var (
	checkFile       string
	checkJSON       bool
	checkAnalyze    bool
	checkAllowDrift bool
	checkCorpus     string
)

var checkCmd = &cobra.Command{
	Use:   "check [line...]",
	Short: "Score log lines against the baseline",
	Long: `Score one or more log lines and show the closest normal pattern.
Nothing is written to the result stream.

Examples:
  sentry check "GET /index.html 200"
  sentry check "GET /login?user=' OR '1'='1 403" --analyze
  sentry check --file suspicious.log --json
  sentry check --corpus data/normal_train.txt "DROP TABLE users"   # throwaway in-memory index`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVarP(&checkFile, "file", "f", "", "read lines from a file or glob")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "output as JSON")
	checkCmd.Flags().BoolVar(&checkAnalyze, "analyze", false, "escalate threats to the edge node")
	checkCmd.Flags().BoolVar(&checkAllowDrift, "allow-drift", false, "score against an index built with a different model or metric")
	checkCmd.Flags().StringVar(&checkCorpus, "corpus", "", "train a throwaway in-memory baseline from this corpus instead of the stored index")
}

type checkResult struct {
	IsThreat     bool    `json:"is_threat"`
	AnomalyScore float64 `json:"anomaly_score"`
	Log          string  `json:"log"`
	Nearest      string  `json:"nearest_normal"`
	NearestID    string  `json:"nearest_id"`
	Analysis     string  `json:"analysis,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	lines := args
	if checkFile != "" {
		fileLines, err := fs.LoadLines(checkFile)
		if err != nil {
			return err
		}
		lines = append(lines, fileLines...)
	}
	if len(lines) == 0 {
		return fmt.Errorf("nothing to check: pass log lines as arguments or use --file")
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	st, err := openCheckStore(cmd, embedder)
	if err != nil {
		return err
	}
	defer st.Close()

	scorer, _, err := loadScorer(st, cfg, embedder, checkAllowDrift)
	if err != nil {
		return err
	}

	var analyzer port.Analyzer
	if checkAnalyze {
		analyzer, err = newAnalyzer(cfg)
		if err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	results := make([]checkResult, 0, len(lines))
	for _, line := range lines {
		ex, err := scorer.Explain(ctx, line)
		if err != nil {
			return fmt.Errorf("failed to score %q: %w", line, err)
		}
		r := checkResult{
			IsThreat:     ex.IsThreat,
			AnomalyScore: ex.Score,
			Log:          line,
			Nearest:      ex.Nearest.Text,
			NearestID:    ex.Nearest.ID,
		}
		if ex.IsThreat && analyzer != nil {
			r.Analysis = analyzer.Analyze(ctx, line)
		}
		results = append(results, r)
	}

	if checkJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	for _, r := range results {
		verdict := "🟢 normal"
		if r.IsThreat {
			verdict = "🔴 THREAT"
		}
		fmt.Printf("%s  score=%.4f  threshold=%.4f\n", verdict, r.AnomalyScore, scorer.Threshold())
		fmt.Printf("  log:     %s\n", r.Log)
		fmt.Printf("  nearest: %s (%s)\n", r.Nearest, r.NearestID)
		if r.Analysis != "" {
			fmt.Printf("  🤖 %s\n", r.Analysis)
		}
		fmt.Println()
	}
	return nil
}

// openCheckStore returns the persisted index store, or an in-memory store
// holding a fresh index trained from --corpus.
func openCheckStore(cmd *cobra.Command, embedder port.Embedder) (port.IndexStore, error) {
	if checkCorpus == "" {
		st, _, err := openStore(false)
		return st, err
	}

	cfg := GetConfig()
	corpus, err := fs.LoadLines(checkCorpus)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}

	st := memstore.NewMemoryStore()
	trainUC := usecase.NewTrainUseCase(st, embedder, usecase.TrainOptions{
		Name:      cfg.Index.Name,
		Provider:  cfg.Embedding.Provider,
		Metric:    store.Metric(cfg.Index.Metric),
		Threshold: cfg.Scoring.Threshold,
		BatchSize: cfg.Embedding.BatchSize,
	}, logger.Named("train"))
	if _, err := trainUC.Build(cmd.Context(), corpus, nil); err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}
	return st, nil
}
