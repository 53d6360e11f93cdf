package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sentry metrics for replay monitoring
var (
	RecordsScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentry_records_scored_total",
			Help: "Total number of records scored",
		},
		[]string{"verdict"}, // verdict: normal/threat
	)

	AnomalyScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentry_anomaly_score",
			Help:    "Distance from each record to its nearest baseline entry",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 0.005 to ~10
		},
	)

	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentry_escalations_total",
			Help: "Total number of threat escalations to the edge node",
		},
		[]string{"outcome"}, // outcome: answered/fallback
	)

	EscalationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentry_escalation_duration_seconds",
			Help:    "Edge node analysis duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentry_embedding_requests_total",
			Help: "Total number of embedding requests",
		},
		[]string{"provider", "status"},
	)

	RowsAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentry_rows_appended_total",
			Help: "Total number of rows appended to the result stream",
		},
	)

	ReplayState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentry_replay_state",
			Help: "Replay state: 0 idle, 1 running, 2 stopped, 3 completed, 4 failed",
		},
	)
)

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serve(ctx, ln)
}

func serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
