package cli

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"sentry/config"
	"sentry/internal/adapter/fs"
	"sentry/internal/adapter/store"
	"sentry/internal/usecase"
)

var trainCmd = &cobra.Command{
	Use:   "train [corpus]",
	Short: "Build the baseline index from known-normal log lines",
	Long: `Embed every non-blank line of the training corpus and store the vectors as
the baseline index. Any index previously stored under the same name is
replaced, never merged. The corpus may be a file or a glob.

Examples:
  sentry train                              # Use index.corpus_path from config
  sentry train data/normal_train.txt
  sentry train 'data/normal/**/*.log' --index web`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTrain,
}

var trainIndexName string

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().StringVar(&trainIndexName, "index", "", "index name (default from config)")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if trainIndexName != "" {
		cfg.Index.Name = trainIndexName
	}

	corpusPath := config.ResolvePath(GetRootDir(), cfg.Index.CorpusPath)
	if len(args) > 0 {
		corpusPath = args[0]
	}

	corpus, err := fs.LoadLines(corpusPath)
	if err != nil {
		return fmt.Errorf("failed to load corpus: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	st, dbPath, err := openStore(true)
	if err != nil {
		return err
	}
	defer st.Close()

	trainUC := usecase.NewTrainUseCase(st, embedder, usecase.TrainOptions{
		Name:      cfg.Index.Name,
		Provider:  cfg.Embedding.Provider,
		Metric:    store.Metric(cfg.Index.Metric),
		Threshold: cfg.Scoring.Threshold,
		BatchSize: cfg.Embedding.BatchSize,
	}, logger.Named("train"))

	fmt.Printf("Loaded %d lines from %s\n", len(corpus), corpusPath)
	fmt.Printf("Embedding with %s (%s)...\n", embedder.ModelName(), cfg.Embedding.Provider)

	bar := newProgressBar(len(corpus), "Embedding")
	startTime := time.Now()
	progressCallback := func(done, total int) {
		bar.Set(done)

		// Calculate and display ETA
		elapsed := time.Since(startTime)
		rate := float64(done) / elapsed.Seconds()
		if rate > 0 && done < total {
			eta := time.Duration(float64(total-done)/rate) * time.Second
			bar.Describe(fmt.Sprintf("[cyan]Embedding[reset] ETA: %s", formatDuration(eta)))
		}
	}

	result, err := trainUC.Build(cmd.Context(), corpus, progressCallback)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	bar.Finish()
	logCacheStats(embedder)

	fmt.Printf("\nTraining complete:\n")
	fmt.Printf("  Index:      %s\n", result.Meta.Name)
	fmt.Printf("  Entries:    %d\n", result.Entries)
	fmt.Printf("  Model:      %s (dim %d)\n", result.Meta.Model, result.Meta.Dimension)
	fmt.Printf("  Metric:     %s\n", result.Meta.Metric)
	fmt.Printf("  Threshold:  %.4f\n", result.Meta.Threshold)
	fmt.Printf("  Took:       %s\n", formatDuration(result.Duration))
	fmt.Printf("\nIndex stored at: %s\n", dbPath)
	return nil
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
