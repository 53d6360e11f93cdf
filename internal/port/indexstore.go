package port

import "sentry/internal/domain"

// IndexStore persists baseline indexes keyed by name.
type IndexStore interface {
	// ReplaceIndex stores entries under name, discarding anything stored there before.
	ReplaceIndex(meta domain.IndexMeta, entries []domain.CorpusEntry) error

	// LoadIndex returns the metadata and entries stored under name, in build order.
	LoadIndex(name string) (domain.IndexMeta, []domain.CorpusEntry, error)

	ListIndexes() ([]domain.IndexMeta, error)

	DeleteIndex(name string) error

	Close() error
}

// ResultSink receives one row per classified record.
type ResultSink interface {
	// Append writes a complete row; readers never observe a partial row.
	Append(row domain.ResultRow) error
}
