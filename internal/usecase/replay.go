package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"sentry/internal/domain"
	"sentry/internal/metrics"
	"sentry/internal/port"
)

// State is the lifecycle of a replay run.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Evaluator scores and classifies a single record.
type Evaluator interface {
	Evaluate(ctx context.Context, rec domain.Record) (domain.Classification, error)
}

// RecordError identifies the record that aborted a run.
type RecordError struct {
	Position int
	Text     string
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (%q): %v", e.Position, e.Text, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// ReplayOptions configures a ReplayUseCase.
type ReplayOptions struct {
	// Pace is the interval between records. Zero replays as fast as possible.
	Pace time.Duration

	// OnResult is called after each row is appended.
	OnResult func(domain.Classification)
}

// ReplayResult summarizes a run.
type ReplayResult struct {
	RunID       string
	State       State
	Processed   int
	Threats     int
	Fallbacks   int
	StartedAt   time.Time
	Duration    time.Duration
	LastRecord  int
	TotalInputs int
}

// ReplayUseCase drives records through the scorer in order, escalates threats
// and appends one row per record. A ReplayUseCase runs once.
type ReplayUseCase struct {
	scorer   Evaluator
	analyzer port.Analyzer
	sink     port.ResultSink
	opts     ReplayOptions
	logger   *zap.Logger
	state    atomic.Int32
}

func NewReplayUseCase(scorer Evaluator, analyzer port.Analyzer, sink port.ResultSink, opts ReplayOptions, logger *zap.Logger) *ReplayUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayUseCase{
		scorer:   scorer,
		analyzer: analyzer,
		sink:     sink,
		opts:     opts,
		logger:   logger,
	}
}

func (u *ReplayUseCase) State() State {
	return State(u.state.Load())
}

func (u *ReplayUseCase) setState(s State) {
	u.state.Store(int32(s))
	metrics.ReplayState.Set(float64(s))
}

// Run processes records until they are exhausted or ctx is cancelled.
// Cancellation is checked between records: the record in flight is scored,
// escalated and appended before the run stops. Cancellation is not an error.
func (u *ReplayUseCase) Run(ctx context.Context, records []domain.Record) (*ReplayResult, error) {
	if !u.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, domain.ErrAlreadyRun
	}
	metrics.ReplayState.Set(float64(StateRunning))

	result := &ReplayResult{
		RunID:       uuid.NewString(),
		StartedAt:   time.Now(),
		LastRecord:  -1,
		TotalInputs: len(records),
	}
	logger := u.logger.With(zap.String("run_id", result.RunID))
	logger.Info("replay started",
		zap.Int("records", len(records)),
		zap.Duration("pace", u.opts.Pace),
	)

	var limiter *rate.Limiter
	if u.opts.Pace > 0 {
		limiter = rate.NewLimiter(rate.Every(u.opts.Pace), 1)
	}

	finish := func(s State) *ReplayResult {
		u.setState(s)
		result.State = s
		result.Duration = time.Since(result.StartedAt)
		return result
	}

	// in-flight work must not observe the stop signal
	work := context.WithoutCancel(ctx)

	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}

		cls, err := u.scorer.Evaluate(work, rec)
		if err != nil {
			logger.Error("scoring failed", zap.Int("position", rec.Position), zap.Error(err))
			return finish(StateFailed), &RecordError{Position: rec.Position, Text: rec.Text, Err: err}
		}

		if cls.IsThreat {
			cls.Explanation = u.analyzer.Analyze(work, rec.Text)
			result.Threats++
			if IsFallback(cls.Explanation) {
				result.Fallbacks++
			}
		}

		if err := u.sink.Append(cls.Row()); err != nil {
			logger.Error("append failed", zap.Int("position", rec.Position), zap.Error(err))
			return finish(StateFailed), &RecordError{Position: rec.Position, Text: rec.Text, Err: err}
		}
		result.Processed++
		result.LastRecord = rec.Position

		logger.Debug("record classified",
			zap.Int("position", rec.Position),
			zap.Float64("score", cls.Score),
			zap.Bool("is_threat", cls.IsThreat),
		)

		if u.opts.OnResult != nil {
			u.opts.OnResult(cls)
		}
	}

	state := StateCompleted
	if result.Processed < len(records) {
		state = StateStopped
	}
	finish(state)

	logger.Info("replay finished",
		zap.Stringer("state", state),
		zap.Int("processed", result.Processed),
		zap.Int("threats", result.Threats),
		zap.Int("fallbacks", result.Fallbacks),
		zap.Duration("took", result.Duration),
	)
	return result, nil
}
