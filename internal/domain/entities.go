package domain

import (
	"errors"
	"time"
)

var (
	ErrEmptyCorpus       = errors.New("corpus is empty")
	ErrEmptyIndex        = errors.New("baseline index has no entries")
	ErrIndexNotFound     = errors.New("baseline index not found")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrIncompatibleIndex = errors.New("baseline index is incompatible with configuration")
	ErrUncalibrated      = errors.New("threshold was not calibrated for this embedding model")
	ErrAlreadyRun        = errors.New("replay already started")
)

// Record is one raw log line. Position is its index in the input sequence.
type Record struct {
	Position int
	Text     string
}

// CorpusEntry is a known-normal record with its embedding.
type CorpusEntry struct {
	ID     string
	Vector []float32
	Text   string
}

// Neighbor is the closest corpus entry to a query vector.
type Neighbor struct {
	ID       string
	Text     string
	Distance float64
}

// IndexMeta describes how a persisted baseline index was built.
type IndexMeta struct {
	Name          string    `json:"name"`
	SchemaVersion int       `json:"schema_version"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Dimension     int       `json:"dimension"`
	Metric        string    `json:"metric"`
	Threshold     float64   `json:"threshold"`
	Entries       int       `json:"entries"`
	Fingerprint   string    `json:"fingerprint"`
	BuiltAt       time.Time `json:"built_at"`
}

// Classification is the scorer's verdict for one record.
type Classification struct {
	Record       Record
	Score        float64
	IsThreat     bool
	Explanation  string
	ClassifiedAt time.Time
}

// ResultRow is the persisted form of a Classification.
type ResultRow struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
	IsThreat  bool      `json:"is_threat"`
	Log       string    `json:"log"`
	Analysis  string    `json:"analysis"`
}

// Row converts the classification into its persisted row.
func (c Classification) Row() ResultRow {
	return ResultRow{
		Timestamp: c.ClassifiedAt,
		Score:     c.Score,
		IsThreat:  c.IsThreat,
		Log:       c.Record.Text,
		Analysis:  c.Explanation,
	}
}
