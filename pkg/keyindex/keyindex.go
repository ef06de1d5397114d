// Package keyindex implements the MVCC key index (C2): a mapping from
// logical byte-keys to their current Entry (create revision, latest
// mod revision, version, deleted flag), supporting prefix and range
// scans over the live key set. Earlier revisions of a key are not
// retained.
//
// The comparator and prefix-successor logic mirror the Rust reference
// implementation's Index type (xline's auth_store/backend.rs) so that
// scan order and range-end computation stay bit-compatible with it.
package keyindex

import (
	"bytes"
	"sort"
	"sync"

	"github.com/cuemby/keystone/pkg/revision"
)

// Entry describes the current MVCC state of one logical key.
type Entry struct {
	CreateRev revision.Revision
	ModRev    revision.Revision
	Version   int64
	Deleted   bool
}

// KeyRevision pairs a live key with its current mod revision, returned
// by Get for range scans.
type KeyRevision struct {
	Key     []byte
	Entry   Entry
}

// Index is a sorted, mutex-guarded key→Entry map. Keys are kept in a
// separate sorted slice so range scans can binary-search their
// boundaries instead of enumerating the whole map.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	sorted  []string // ascending byte order, kept in sync with entries
}

// New creates an empty key index.
func New() *Index {
	return &Index{entries: make(map[string]*Entry)}
}

// InsertOrUpdate records a write to key at (main, sub). If key is new,
// CreateRev and ModRev both equal the new revision and Version is 1;
// otherwise CreateRev is preserved, ModRev is updated and Version
// increments.
func (idx *Index) InsertOrUpdate(key []byte, main, sub int64) Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rev := revision.Revision{Main: main, Sub: sub}
	k := string(key)
	e, ok := idx.entries[k]
	if !ok {
		e = &Entry{CreateRev: rev, ModRev: rev, Version: 1}
		idx.entries[k] = e
		idx.insertSorted(k)
		return *e
	}
	e.ModRev = rev
	e.Version++
	e.Deleted = false
	return *e
}

// Get returns the current entry for every live key in [key, rangeEnd).
// An empty rangeEnd restricts the scan to key alone. revLimit, when
// non-zero, excludes keys whose ModRev.Main exceeds it.
func (idx *Index) Get(key, rangeEnd []byte, revLimit int64) []KeyRevision {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(rangeEnd) == 0 {
		e, ok := idx.entries[string(key)]
		if !ok || e.Deleted {
			return nil
		}
		if revLimit != 0 && e.ModRev.Main > revLimit {
			return nil
		}
		return []KeyRevision{{Key: append([]byte(nil), key...), Entry: *e}}
	}

	lo := idx.lowerBound(key)
	var out []KeyRevision
	for i := lo; i < len(idx.sorted); i++ {
		k := idx.sorted[i]
		if bytes.Compare([]byte(k), rangeEnd) >= 0 {
			break
		}
		e := idx.entries[k]
		if e.Deleted {
			continue
		}
		if revLimit != 0 && e.ModRev.Main > revLimit {
			continue
		}
		out = append(out, KeyRevision{Key: []byte(k), Entry: *e})
	}
	return out
}

// Delete marks every live key in [key, rangeEnd) (or just key, when
// rangeEnd is empty) as deleted, stamping each tombstone at
// (main, sub), (main, sub+1), ... in key order, and returns those
// tombstone revisions for the encoded store to record.
func (idx *Index) Delete(key, rangeEnd []byte, main, sub int64) []revision.Revision {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var keys []string
	if len(rangeEnd) == 0 {
		if e, ok := idx.entries[string(key)]; ok && !e.Deleted {
			keys = append(keys, string(key))
		}
	} else {
		lo := idx.lowerBound(key)
		for i := lo; i < len(idx.sorted); i++ {
			k := idx.sorted[i]
			if bytes.Compare([]byte(k), rangeEnd) >= 0 {
				break
			}
			if e := idx.entries[k]; !e.Deleted {
				keys = append(keys, k)
			}
		}
	}

	revs := make([]revision.Revision, 0, len(keys))
	for i, k := range keys {
		rev := revision.Revision{Main: main, Sub: sub + int64(i)}
		e := idx.entries[k]
		e.ModRev = rev
		e.Deleted = true
		revs = append(revs, rev)
	}
	return revs
}

// Prefix computes the lexicographically exclusive upper bound of p:
// the successor formed by incrementing the last byte that is not
// 0xFF and truncating everything after it. A prefix of all 0xFF bytes
// (or the empty prefix) has no finite successor and returns nil,
// meaning "open ended".
func Prefix(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func (idx *Index) insertSorted(k string) {
	i := sort.SearchStrings(idx.sorted, k)
	idx.sorted = append(idx.sorted, "")
	copy(idx.sorted[i+1:], idx.sorted[i:])
	idx.sorted[i] = k
}

func (idx *Index) lowerBound(key []byte) int {
	return sort.Search(len(idx.sorted), func(i int) bool {
		return idx.sorted[i] >= string(key)
	})
}
