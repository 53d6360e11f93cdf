package store

import (
	"fmt"
	"math"
)

// Metric is the distance function shared by index build and query.
type Metric string

const (
	// MetricL2 is squared Euclidean distance. For unit vectors it equals 2*(1-cos).
	MetricL2 Metric = "l2"
	// MetricCosine is 1 - cosine similarity.
	MetricCosine Metric = "cosine"
	// MetricEuclidean is plain Euclidean distance.
	MetricEuclidean Metric = "euclidean"
)

// ParseMetric validates a configured metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricL2, MetricCosine, MetricEuclidean:
		return m, nil
	default:
		return "", fmt.Errorf("unknown distance metric: %q", s)
	}
}

// Distance returns the distance between a and b. Both must have the same length.
func (m Metric) Distance(a, b []float32) float64 {
	switch m {
	case MetricCosine:
		return cosineDistance(a, b)
	case MetricEuclidean:
		return math.Sqrt(squaredL2(a, b))
	default:
		return squaredL2(a, b)
	}
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// cosineDistance is 1 - cosine similarity, clamped at zero.
func cosineDistance(a, b []float32) float64 {
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1
	}

	d := 1 - dotProduct/(math.Sqrt(normA)*math.Sqrt(normB))
	if d < 0 {
		return 0
	}
	return d
}
