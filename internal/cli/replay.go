package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"sentry/config"
	"sentry/internal/adapter/fs"
	"sentry/internal/adapter/sink"
	"sentry/internal/domain"
	"sentry/internal/metrics"
	"sentry/internal/usecase"
)

var (
	replayPace        time.Duration
	replayOutput      string
	replayAppend      bool
	replayAllowDrift  bool
	replayNoEscalate  bool
	replayMetricsAddr string
	replayQuiet       bool
)

var replayCmd = &cobra.Command{
	Use:   "replay [input]",
	Short: "Replay log lines through the sentry into the result stream",
	Long: `Score every line of the input in order, escalate threats to the edge node
and append one row per line to the result stream. The stream is reset with a
fresh header unless --append is given. Ctrl-C stops after the current line.

Examples:
  sentry replay                                  # Use replay.input_path from config
  sentry replay data/live_fire_log.txt --pace 0  # As fast as possible
  sentry replay traffic.log --metrics-addr :9108`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().DurationVar(&replayPace, "pace", -1, "delay between lines (default from config)")
	replayCmd.Flags().StringVarP(&replayOutput, "output", "o", "", "result stream path (default from config)")
	replayCmd.Flags().BoolVar(&replayAppend, "append", false, "append to the existing stream instead of resetting it")
	replayCmd.Flags().BoolVar(&replayAllowDrift, "allow-drift", false, "score against an index built with a different model or metric")
	replayCmd.Flags().BoolVar(&replayNoEscalate, "no-escalate", false, "do not contact the edge node")
	replayCmd.Flags().StringVar(&replayMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address (default from config)")
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "only print the summary")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	dir := GetRootDir()

	if replayPace >= 0 {
		cfg.Replay.Pace = replayPace
	}
	if replayNoEscalate {
		cfg.Escalation.Enabled = false
	}
	if replayMetricsAddr != "" {
		cfg.Metrics.Addr = replayMetricsAddr
	}

	inputPath := config.ResolvePath(dir, cfg.Replay.InputPath)
	if len(args) > 0 {
		inputPath = args[0]
	}
	outputPath := config.ResolvePath(dir, cfg.Sink.Path)
	if replayOutput != "" {
		outputPath = replayOutput
	}

	records, err := fs.LoadRecords(inputPath)
	if err != nil {
		return fmt.Errorf("failed to load replay input: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	st, _, err := openStore(false)
	if err != nil {
		return err
	}
	defer st.Close()

	scorer, meta, err := loadScorer(st, cfg, embedder, replayAllowDrift)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := scorer.Ready(ctx); err != nil {
		return fmt.Errorf("scorer not ready: %w", err)
	}

	analyzer, err := newAnalyzer(cfg)
	if err != nil {
		return err
	}

	out, err := sink.OpenCSV(outputPath, !replayAppend, sink.WithFsync(cfg.Sink.Fsync))
	if err != nil {
		return err
	}
	defer out.Close()

	if cfg.Metrics.Addr != "" {
		metricsCtx, stopMetrics := context.WithCancel(context.WithoutCancel(ctx))
		defer stopMetrics()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.Metrics.Addr); err != nil {
				logger.Error("metrics server failed", zap.String("addr", cfg.Metrics.Addr), zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	}

	fmt.Printf("🛡️  Sentry replay: %d lines from %s\n", len(records), inputPath)
	fmt.Printf("   index %s (%d entries, %s), threshold %.4f, pace %s\n",
		meta.Name, meta.Entries, meta.Metric, scorer.Threshold(), cfg.Replay.Pace)
	fmt.Printf("   writing %s\n\n", outputPath)

	replayUC := usecase.NewReplayUseCase(scorer, analyzer, out, usecase.ReplayOptions{
		Pace:     cfg.Replay.Pace,
		OnResult: printFeed,
	}, logger.Named("replay"))

	result, runErr := replayUC.Run(ctx, records)
	if result != nil {
		printReplaySummary(result)
	}
	logCacheStats(embedder)
	if stats, ok := edgeNodeStats(analyzer); ok && stats.TotalCalls > 0 {
		logger.Info("edge node usage",
			zap.Int("calls", stats.TotalCalls),
			zap.Int("failed", stats.FailedCalls),
			zap.Int("input_chars", stats.TotalInputChars),
			zap.Int("output_chars", stats.TotalOutputChars),
		)
	}
	if runErr != nil {
		return fmt.Errorf("replay aborted: %w", runErr)
	}
	return nil
}

func printFeed(c domain.Classification) {
	if replayQuiet {
		return
	}
	if !c.IsThreat {
		fmt.Printf("🟢 [%d] Score: %.4f\n", c.Record.Position, c.Score)
		return
	}
	fmt.Printf("🔴 [%d] THREAT DETECTED (Score: %.4f): %s\n", c.Record.Position, c.Score, c.Record.Text)
	fmt.Printf("   🤖 Edge Node: %s\n", c.Explanation)
}

func printReplaySummary(r *usecase.ReplayResult) {
	fmt.Printf("\nReplay %s:\n", r.State)
	fmt.Printf("  Run:        %s\n", r.RunID)
	fmt.Printf("  Processed:  %d/%d\n", r.Processed, r.TotalInputs)
	fmt.Printf("  Threats:    %d\n", r.Threats)
	if r.Fallbacks > 0 {
		fmt.Printf("  Fallbacks:  %d (edge node unavailable)\n", r.Fallbacks)
	}
	fmt.Printf("  Took:       %s\n", formatDuration(r.Duration))
}
