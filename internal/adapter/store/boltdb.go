package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"
	"sentry/internal/domain"
)

var (
	bucketIndexes = []byte("indexes")
	bucketEntries = []byte("entries")
	keyMeta       = []byte("meta")
)

// BoltStore persists baseline indexes in a bbolt file.
// Layout: indexes/<name>/meta and indexes/<name>/entries/<position>.
type BoltStore struct {
	db *bbolt.DB
}

type storedEntry struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"v"`
	Text   string    `json:"t"`
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketIndexes); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketIndexes, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// ReplaceIndex drops any index stored under meta.Name and writes entries in one
// transaction, so a crash leaves either the old index or the new one.
func (s *BoltStore) ReplaceIndex(meta domain.IndexMeta, entries []domain.CorpusEntry) error {
	if meta.Name == "" {
		return fmt.Errorf("index name must not be empty")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketIndexes)
		name := []byte(meta.Name)

		if root.Bucket(name) != nil {
			if err := root.DeleteBucket(name); err != nil {
				return fmt.Errorf("failed to drop index %s: %w", meta.Name, err)
			}
		}

		ib, err := root.CreateBucket(name)
		if err != nil {
			return fmt.Errorf("failed to create index %s: %w", meta.Name, err)
		}
		eb, err := ib.CreateBucket(bucketEntries)
		if err != nil {
			return err
		}

		for i, e := range entries {
			data, err := json.Marshal(storedEntry{ID: e.ID, Vector: e.Vector, Text: e.Text})
			if err != nil {
				return err
			}
			if err := eb.Put(positionKey(i), data); err != nil {
				return err
			}
		}

		meta.Entries = len(entries)
		metaData, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return ib.Put(keyMeta, metaData)
	})
}

// LoadIndex returns the stored metadata and entries in build order.
func (s *BoltStore) LoadIndex(name string) (domain.IndexMeta, []domain.CorpusEntry, error) {
	var meta domain.IndexMeta
	var entries []domain.CorpusEntry

	err := s.db.View(func(tx *bbolt.Tx) error {
		ib := tx.Bucket(bucketIndexes).Bucket([]byte(name))
		if ib == nil {
			return fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
		}

		data := ib.Get(keyMeta)
		if data == nil {
			return fmt.Errorf("index %s has no metadata", name)
		}
		if err := json.Unmarshal(data, &meta); err != nil {
			return fmt.Errorf("failed to decode metadata for %s: %w", name, err)
		}

		eb := ib.Bucket(bucketEntries)
		if eb == nil {
			return nil
		}
		entries = make([]domain.CorpusEntry, 0, meta.Entries)
		return eb.ForEach(func(k, v []byte) error {
			var se storedEntry
			if err := json.Unmarshal(v, &se); err != nil {
				return fmt.Errorf("corrupt entry %d in index %s: %w", binary.BigEndian.Uint64(k), name, err)
			}
			entries = append(entries, domain.CorpusEntry{ID: se.ID, Vector: se.Vector, Text: se.Text})
			return nil
		})
	})
	if err != nil {
		return domain.IndexMeta{}, nil, err
	}
	return meta, entries, nil
}

func (s *BoltStore) ListIndexes() ([]domain.IndexMeta, error) {
	var metas []domain.IndexMeta
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketIndexes)
		return root.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil // not a nested bucket
			}
			ib := root.Bucket(k)
			var meta domain.IndexMeta
			if data := ib.Get(keyMeta); data != nil {
				if err := json.Unmarshal(data, &meta); err != nil {
					return err
				}
			}
			meta.Name = string(k)
			metas = append(metas, meta)
			return nil
		})
	})
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas, err
}

func (s *BoltStore) DeleteIndex(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketIndexes).DeleteBucket([]byte(name))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
		}
		return err
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// positionKey keeps entries ordered by corpus position under bbolt's byte ordering.
func positionKey(i int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(i))
	return k
}
