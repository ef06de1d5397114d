// Package revision implements the monotonic main/sub revision counter
// every auth mutation is stamped with.
package revision

import "sync/atomic"

// Revision is a totally ordered, never-reused version stamp. Two
// revisions compare lexicographically on (Main, Sub).
type Revision struct {
	Main int64
	Sub  int64
}

// Less reports whether r sorts before other.
func (r Revision) Less(other Revision) bool {
	if r.Main != other.Main {
		return r.Main < other.Main
	}
	return r.Sub < other.Sub
}

// Counter generates monotonically increasing main revisions. Sub
// revisions are allocated locally by a caller mid-sync (see
// pkg/auth) and are not tracked here.
type Counter struct {
	main atomic.Int64
}

// New creates a Counter starting at the given main revision, typically
// recovered from the highest persisted revision on startup.
func New(start int64) *Counter {
	c := &Counter{}
	c.main.Store(start)
	return c
}

// Current returns the most recently allocated main revision without
// advancing it.
func (c *Counter) Current() int64 {
	return c.main.Load()
}

// Next atomically allocates and returns the next main revision.
func (c *Counter) Next() int64 {
	return c.main.Add(1)
}

// SetIfHigher advances the counter to v if v is greater than the
// current value, used when a node restores raft snapshot state ahead
// of its own locally-observed revision.
func (c *Counter) SetIfHigher(v int64) {
	for {
		cur := c.main.Load()
		if v <= cur {
			return
		}
		if c.main.CompareAndSwap(cur, v) {
			return
		}
	}
}
