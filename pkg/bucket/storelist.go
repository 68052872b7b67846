package bucket

import "sync"

// DirtyList accumulates buckets that have pending writeback work, keyed by
// position so registering the same bucket twice between flushes is a
// no-op. Batching dirty pages this way lets a cluster flush them as one
// sequential run instead of one write per mutation.
type DirtyList struct {
	mu      sync.Mutex
	buckets map[int64]*Bucket
}

// NewDirtyList returns an empty list.
func NewDirtyList() *DirtyList {
	return &DirtyList{buckets: make(map[int64]*Bucket)}
}

// Add registers b as having pending writeback work.
func (l *DirtyList) Add(b *Bucket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[b.Position()] = b
}

// Count returns the number of distinct buckets currently pending.
func (l *DirtyList) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Drain returns every pending bucket and clears the list. Callers typically
// sort the result by Position before writing it out sequentially.
func (l *DirtyList) Drain() []*Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Bucket, 0, len(l.buckets))
	for _, b := range l.buckets {
		out = append(out, b)
	}
	l.buckets = make(map[int64]*Bucket)
	return out
}
