package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"sentry/internal/metrics"
	"sentry/internal/port"
)

const (
	// FallbackPrefix starts every explanation produced without the edge node.
	FallbackPrefix = "Edge Node Offline: "

	// DisabledAnalysis is the explanation for threats when escalation is off.
	DisabledAnalysis = "Escalation disabled"

	escalationPrompt = "Analyze this server log and identify the attack type in 1 short sentence: '%s'"
)

// Escalator asks the edge node to explain a flagged record. It makes exactly
// one attempt, bounded by timeout, and never returns an error.
type Escalator struct {
	llm     port.LLM
	timeout time.Duration
	logger  *zap.Logger
}

func NewEscalator(llm port.LLM, timeout time.Duration, logger *zap.Logger) *Escalator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Escalator{
		llm:     llm,
		timeout: timeout,
		logger:  logger,
	}
}

func (e *Escalator) Analyze(ctx context.Context, text string) string {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := e.llm.Generate(ctx, fmt.Sprintf(escalationPrompt, text))
	metrics.EscalationDuration.Observe(time.Since(start).Seconds())

	out = strings.TrimSpace(out)
	if err == nil && out == "" {
		err = fmt.Errorf("empty response from %s", e.llm.ModelName())
	}
	if err != nil {
		metrics.EscalationsTotal.WithLabelValues("fallback").Inc()
		e.logger.Warn("edge node unavailable",
			zap.String("model", e.llm.ModelName()),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
		return FallbackPrefix + err.Error()
	}

	metrics.EscalationsTotal.WithLabelValues("answered").Inc()
	return out
}

// LLM returns the edge node client.
func (e *Escalator) LLM() port.LLM {
	return e.llm
}

// IsFallback reports whether an explanation came from the degraded path.
func IsFallback(explanation string) bool {
	return strings.HasPrefix(explanation, FallbackPrefix)
}

// StaticAnalyzer answers every escalation with the same text.
type StaticAnalyzer string

func (a StaticAnalyzer) Analyze(ctx context.Context, text string) string {
	return string(a)
}
