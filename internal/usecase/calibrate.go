package usecase

import (
	"encoding/binary"
	"math"
	"sort"

	"sentry/internal/adapter/store"
	"sentry/internal/domain"
)

// CalibrationReport describes how far each distinct corpus vector sits from
// its nearest other distinct vector. Normal traffic should score in the same
// range.
type CalibrationReport struct {
	Entries   int
	Unique    int
	Metric    store.Metric
	P50       float64
	P90       float64
	P95       float64
	P99       float64
	Max       float64
	Quantile  float64
	Suggested float64
}

// Degenerate reports whether the corpus had too few distinct vectors to
// suggest a threshold.
func (r CalibrationReport) Degenerate() bool {
	return r.Unique < 2 || r.Suggested == 0
}

// Calibrate computes leave-one-out nearest distances and suggests the given
// quantile as threshold. The suggestion is rounded to 4 decimals like scores,
// so a line scoring exactly at the quantile is still classified normal.
func Calibrate(entries []domain.CorpusEntry, metric store.Metric, quantile float64) CalibrationReport {
	return CalibrateWithProgress(entries, metric, quantile, nil)
}

// CalibrateWithProgress is Calibrate with a callback after each distinct vector.
// Identical vectors are measured once: log corpora repeat lines, and a repeat
// would otherwise be its own nearest neighbour at distance 0.
func CalibrateWithProgress(entries []domain.CorpusEntry, metric store.Metric, quantile float64, progress ProgressFunc) CalibrationReport {
	if quantile <= 0 || quantile > 1 {
		quantile = 0.99
	}
	vectors := distinctVectors(entries)
	report := CalibrationReport{
		Entries:  len(entries),
		Unique:   len(vectors),
		Metric:   metric,
		Quantile: quantile,
	}
	if len(vectors) < 2 {
		return report
	}

	distances := make([]float64, len(vectors))
	for i := range vectors {
		best := math.Inf(1)
		for j := range vectors {
			if i == j {
				continue
			}
			if d := metric.Distance(vectors[i], vectors[j]); d < best {
				best = d
			}
		}
		distances[i] = best
		if progress != nil {
			progress(i+1, len(vectors))
		}
	}
	sort.Float64s(distances)

	report.P50 = percentile(distances, 0.50)
	report.P90 = percentile(distances, 0.90)
	report.P95 = percentile(distances, 0.95)
	report.P99 = percentile(distances, 0.99)
	report.Max = distances[len(distances)-1]
	report.Suggested = round4(percentile(distances, quantile))
	return report
}

// distinctVectors returns the vectors of entries with exact duplicates
// removed, in first-seen order.
func distinctVectors(entries []domain.CorpusEntry) [][]float32 {
	seen := make(map[string]struct{}, len(entries))
	out := make([][]float32, 0, len(entries))
	buf := make([]byte, 0, 64)
	for _, e := range entries {
		buf = buf[:0]
		for _, v := range e.Vector {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
		key := string(buf)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e.Vector)
	}
	return out
}

// percentile uses the nearest-rank method on sorted values.
func percentile(sorted []float64, q float64) float64 {
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
