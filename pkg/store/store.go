// Package store implements the encoded store (C3): a byte-addressable,
// revision-keyed record store layered on go.etcd.io/bbolt, with a
// sibling tombstone bucket. Records are appended under a (main, sub)
// revision key rather than overwritten in place, so every historical
// value stays addressable by the revision that wrote it.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"path/filepath"

	"github.com/cuemby/keystone/pkg/revision"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketRevisions  = []byte("revisions")
	bucketTombstones = []byte("tombstones")
)

// Store is the durable, revision-keyed record store.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the bbolt-backed store under dataDir.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "auth.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketRevisions, bucketTombstones} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// revKey encodes a revision as a 16-byte big-endian (main, sub) pair,
// which sorts identically to lexicographic (main, sub) ordering.
func revKey(rev revision.Revision) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(rev.Main))
	binary.BigEndian.PutUint64(buf[8:16], uint64(rev.Sub))
	return buf
}

// Put durably writes record under revision rev.
func (s *Store) Put(rev revision.Revision, record []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRevisions)
		return b.Put(revKey(rev), record)
	})
}

// GetValues performs a batch lookup preserving the order of revs.
// Missing revisions are skipped (their slot is simply absent from the
// result, not a nil placeholder).
func (s *Store) GetValues(revs []revision.Revision) ([][]byte, error) {
	out := make([][]byte, 0, len(revs))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRevisions)
		for _, rev := range revs {
			v := b.Get(revKey(rev))
			if v == nil {
				continue
			}
			out = append(out, append([]byte(nil), v...))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkDeletions records tombstones for revs in the sibling tombstones
// bucket.
func (s *Store) MarkDeletions(revs []revision.Revision) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTombstones)
		for _, rev := range revs {
			if err := b.Put(revKey(rev), []byte{1}); err != nil {
				return err
			}
		}
		return nil
	})
}

// IsDeleted reports whether rev has a tombstone recorded.
func (s *Store) IsDeleted(rev revision.Revision) (bool, error) {
	var deleted bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTombstones)
		deleted = b.Get(revKey(rev)) != nil
		return nil
	})
	return deleted, err
}

// Encode produces a wire-stable, field-tagged binary encoding of v via
// encoding/gob. gob's self-describing, stable field ordering keeps
// encoded records comparable across process restarts without a
// separate schema or third-party binary-encoding library.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode into v, which must be a pointer.
func Decode(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}
