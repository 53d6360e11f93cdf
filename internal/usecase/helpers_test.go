package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sentry/internal/domain"
)

// tableEmbedder returns fixed vectors per text so tests control every distance.
type tableEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
	failOn  string
}

func (e *tableEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if t == e.failOn {
			return nil, errors.New("embedding service unavailable")
		}
		v, ok := e.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

func (e *tableEmbedder) Dimension() int   { return 2 }
func (e *tableEmbedder) ModelName() string { return "table" }

// countingAnalyzer records every escalation.
type countingAnalyzer struct {
	mu    sync.Mutex
	texts []string
	reply string
}

func (a *countingAnalyzer) Analyze(ctx context.Context, text string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return a.reply
}

func (a *countingAnalyzer) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.texts)
}

// recordingSink keeps rows in memory and can fail on a given append.
type recordingSink struct {
	mu     sync.Mutex
	rows   []domain.ResultRow
	failAt int
}

func (s *recordingSink) Append(row domain.ResultRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.rows)+1 == s.failAt {
		return errors.New("disk full")
	}
	s.rows = append(s.rows, row)
	return nil
}

func (s *recordingSink) logs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.Log
	}
	return out
}

// stubLLM answers or fails; with block it waits for the context.
type stubLLM struct {
	answer string
	err    error
	block  bool
	calls  int
	last   string
}

func (l *stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	l.calls++
	l.last = prompt
	if l.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return l.answer, l.err
}

func (l *stubLLM) ModelName() string { return "stub" }

func records(texts ...string) []domain.Record {
	out := make([]domain.Record, len(texts))
	for i, t := range texts {
		out[i] = domain.Record{Position: i, Text: t}
	}
	return out
}
