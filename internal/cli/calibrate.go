package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"sentry/config"
	"sentry/internal/adapter/fs"
	"sentry/internal/adapter/store"
	"sentry/internal/usecase"
)

var (
	calibrateQuantile float64
	calibrateHoldout  string
	calibrateSave     bool
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Suggest a threshold from the spread of the baseline itself",
	Long: `Compute, for every baseline entry, the distance to its nearest other entry
and report percentiles. The chosen quantile becomes the suggested threshold.
Run it after changing the embedding model or metric: the scale of distances
changes with both.

Examples:
  sentry calibrate
  sentry calibrate --quantile 0.995 --holdout data/normal_holdout.txt
  sentry calibrate --save`,
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
	calibrateCmd.Flags().Float64Var(&calibrateQuantile, "quantile", 0.99, "quantile of leave-one-out distances to suggest")
	calibrateCmd.Flags().StringVar(&calibrateHoldout, "holdout", "", "known-normal lines not in the corpus, scored against both thresholds")
	calibrateCmd.Flags().BoolVar(&calibrateSave, "save", false, "write the suggested threshold to the config file")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	st, _, err := openStore(false)
	if err != nil {
		return err
	}
	defer st.Close()

	idx, meta, err := store.LoadBaselineIndex(st, cfg.Index.Name)
	if err != nil {
		return err
	}

	fmt.Println("BASELINE CALIBRATION")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Index:     %s (%d entries)\n", meta.Name, meta.Entries)
	fmt.Printf("Model:     %s (%s, dim %d)\n", meta.Model, meta.Provider, meta.Dimension)
	fmt.Printf("Metric:    %s\n", meta.Metric)
	fmt.Println()

	bar := newProgressBar(idx.Len(), "Calibrating")
	report := usecase.CalibrateWithProgress(idx.Entries(), idx.Metric(), calibrateQuantile, func(done, total int) {
		bar.Set(done)
	})
	bar.Finish()

	if report.Unique < 2 {
		return fmt.Errorf("index %s has %d distinct entries; calibration needs at least 2", meta.Name, report.Unique)
	}

	fmt.Printf("Distinct:  %d of %d entries\n\n", report.Unique, report.Entries)
	fmt.Println("Leave-one-out nearest distance")
	fmt.Println(strings.Repeat("-", 70))
	fmt.Printf("  p50  %.4f\n", report.P50)
	fmt.Printf("  p90  %.4f\n", report.P90)
	fmt.Printf("  p95  %.4f\n", report.P95)
	fmt.Printf("  p99  %.4f\n", report.P99)
	fmt.Printf("  max  %.4f\n", report.Max)
	fmt.Println()
	fmt.Printf("Configured threshold:  %.4f\n", cfg.Scoring.Threshold)
	fmt.Printf("Suggested threshold:   %.4f (q=%.3f)\n", report.Suggested, report.Quantile)

	if calibrateHoldout != "" {
		if err := scoreHoldout(cmd, idx, report); err != nil {
			return err
		}
	}

	if calibrateSave {
		if report.Degenerate() {
			return fmt.Errorf("suggested threshold is %.4f; refusing to save a threshold that flags every unseen line", report.Suggested)
		}
		path := cfgFile
		if path == "" {
			path = filepath.Join(GetRootDir(), "sentry.yaml")
		}
		cfg.Scoring.Threshold = report.Suggested
		cfg.Scoring.CalibratedFor = config.CalibrationKey(meta.Model, meta.Metric)
		if err := cfg.Save(path); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("\nSaved scoring.threshold=%.4f (calibrated_for %s) to %s\n", report.Suggested, cfg.Scoring.CalibratedFor, path)
	}
	return nil
}

// scoreHoldout reports how many known-normal lines each threshold would flag.
func scoreHoldout(cmd *cobra.Command, idx *store.MemoryIndex, report usecase.CalibrationReport) error {
	cfg := GetConfig()

	lines, err := fs.LoadLines(calibrateHoldout)
	if err != nil {
		return fmt.Errorf("failed to load holdout: %w", err)
	}
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	scorer, err := usecase.NewScorer(embedder, idx, cfg.Scoring.Threshold)
	if err != nil {
		return err
	}

	var flaggedConfigured, flaggedSuggested int
	for _, line := range lines {
		score, err := scorer.Score(cmd.Context(), line)
		if err != nil {
			return fmt.Errorf("failed to score holdout line %q: %w", line, err)
		}
		if scorer.Classify(score) {
			flaggedConfigured++
		}
		if score > report.Suggested {
			flaggedSuggested++
		}
	}

	fmt.Println()
	fmt.Printf("Holdout: %d known-normal lines from %s\n", len(lines), calibrateHoldout)
	fmt.Printf("  false positives at configured threshold: %d (%.1f%%)\n", flaggedConfigured, pct(flaggedConfigured, len(lines)))
	fmt.Printf("  false positives at suggested threshold:  %d (%.1f%%)\n", flaggedSuggested, pct(flaggedSuggested, len(lines)))
	return nil
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}
