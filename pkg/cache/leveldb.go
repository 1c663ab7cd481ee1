package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"
)

// LevelStore is an embedded KeyValueStore backed by LevelDB. It keeps the
// cache warm across process restarts without any external service. LevelDB
// has no native expiration, so advisory TTLs are ignored; staleness is
// enforced at the entry level.
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore opens (or creates) a LevelDB database at the given path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

// Get implements KeyValueStore.
func (s *LevelStore) Get(_ context.Context, key string) ([]byte, error) {
	value, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	return value, nil
}

// GetMany implements KeyValueStore. All reads go through one snapshot so the
// batch observes a consistent view of the database.
func (s *LevelStore) GetMany(_ context.Context, keys []string) (map[string][]byte, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("leveldb snapshot: %w", err)
	}
	defer snap.Release()

	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		value, err := snap.Get([]byte(key), nil)
		if err != nil {
			if err == leveldb.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("leveldb get %q: %w", key, err)
		}
		out[key] = value
	}
	return out, nil
}

// Put implements KeyValueStore.
func (s *LevelStore) Put(_ context.Context, key string, value []byte, _ time.Duration) error {
	if err := s.db.Put([]byte(key), value, nil); err != nil {
		return fmt.Errorf("leveldb put: %w", err)
	}
	return nil
}

// PutMany implements KeyValueStore via a single write batch.
func (s *LevelStore) PutMany(_ context.Context, items map[string][]byte, _ time.Duration) error {
	batch := new(leveldb.Batch)
	for key, value := range items {
		batch.Put([]byte(key), value)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb batch write: %w", err)
	}
	return nil
}

// DeleteMany implements KeyValueStore via a single write batch.
func (s *LevelStore) DeleteMany(_ context.Context, keys []string) error {
	batch := new(leveldb.Batch)
	for _, key := range keys {
		batch.Delete([]byte(key))
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb batch delete: %w", err)
	}
	return nil
}

// Scan implements KeyValueStore using a prefix iterator.
func (s *LevelStore) Scan(_ context.Context, prefix string) ([]string, error) {
	iter := s.db.NewIterator(ldb_util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var keys []string
	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		keys = append(keys, string(key))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("leveldb scan: %w", err)
	}
	return keys, nil
}
