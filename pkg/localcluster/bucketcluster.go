package localcluster

import (
	"fmt"
	"sync"

	"github.com/zhangyunhao116/skipmap"

	"autosharddb/pkg/bucket"
	"autosharddb/pkg/clock"
	"autosharddb/pkg/dberrors"
	"autosharddb/pkg/types"
)

// defaultMainBuckets is the fixed size of a BucketCluster's main bucket
// array. Growing the number of main buckets (the "extensible" half of
// linear hashing - splitting a bucket and rehashing its overflow chain
// into the new slot) is not implemented: this core only extends storage
// by chaining overflow pages, which is enough to hold an unbounded number
// of records per cluster without ever losing correctness, at the cost of
// longer chains than a real LHPE split/grow cycle would produce under
// heavy skew.
const defaultMainBuckets = 64

type slot struct {
	b   *bucket.Bucket
	idx int
}

// BucketCluster is one cluster's worth of records: a fixed array of main
// buckets, a growable pool of overflow buckets chained off them, and a
// concurrent index from RID to the slot currently holding its physical
// position.
type BucketCluster struct {
	id   types.ClusterID
	name string

	seg   DataSegment
	clock *clock.AtomicClock

	mu              sync.Mutex
	mainBuckets     []*bucket.Bucket
	overflowBuckets map[int64]*bucket.Bucket
	nextOverflowPos int64

	mainDirty     *bucket.DirtyList
	overflowDirty *bucket.DirtyList

	index *skipmap.FuncMap[types.RID, slot]
}

// NewBucketCluster allocates an empty cluster named name with id id,
// storing record bytes in seg.
func NewBucketCluster(id types.ClusterID, name string, seg DataSegment) *BucketCluster {
	c := &BucketCluster{
		id:              id,
		name:            name,
		seg:             seg,
		clock:           clock.NewAtomic(0),
		overflowBuckets: make(map[int64]*bucket.Bucket),
		mainDirty:       bucket.NewDirtyList(),
		overflowDirty:   bucket.NewDirtyList(),
		index: skipmap.NewFunc[types.RID, slot](func(a, b types.RID) bool {
			if a.ClusterID != b.ClusterID {
				return a.ClusterID < b.ClusterID
			}
			return a.ClusterPosition < b.ClusterPosition
		}),
	}
	c.mainBuckets = make([]*bucket.Bucket, defaultMainBuckets)
	for i := range c.mainBuckets {
		c.mainBuckets[i] = bucket.New(c, int64(i), false)
	}
	return c
}

// AddToMainStoreList implements bucket.StoreListRegistrar.
func (c *BucketCluster) AddToMainStoreList(b *bucket.Bucket) { c.mainDirty.Add(b) }

// AddToOverflowStoreList implements bucket.StoreListRegistrar.
func (c *BucketCluster) AddToOverflowStoreList(b *bucket.Bucket) { c.overflowDirty.Add(b) }

// Flush drains every bucket with pending writeback work and serializes it.
// The resulting pages are discarded here because this core keeps cluster
// state in memory; a disk-backed cluster would hand them to a page file at
// this point instead, the same seam pkg/store/flusher.go's Flusher writes
// through to the level manager.
func (c *BucketCluster) Flush() (mainPages, overflowPages int) {
	main := c.mainDirty.Drain()
	for _, b := range main {
		b.Serialize()
	}
	overflow := c.overflowDirty.Drain()
	for _, b := range overflow {
		b.Serialize()
	}
	return len(main), len(overflow)
}

func (c *BucketCluster) mainIndexFor(pos types.ClusterPosition) int {
	return int(pos.RoutingKey() % uint64(len(c.mainBuckets)))
}

// insertLocked finds room for one more slot in rid's chain, creating a new
// overflow bucket if every page in the chain is full, and returns it. It
// must be called with c.mu held.
func (c *BucketCluster) insertLocked(rid types.RID) *bucket.Bucket {
	b := c.mainBuckets[c.mainIndexFor(rid.ClusterPosition)]
	for b.Full() {
		next := b.OverflowBucket()
		if next == -1 {
			ob := bucket.New(c, c.nextOverflowPos, true)
			c.nextOverflowPos++
			c.overflowBuckets[ob.Position()] = ob
			b.SetOverflowBucket(ob.Position())
			return ob
		}
		b = c.overflowBuckets[next]
	}
	return b
}

// CreateRecord assigns rid's content a physical position and links it
// into this cluster's bucket chain. It fails with ErrRecordDuplicated if
// rid's cluster position is already occupied, so a caller retrying with a
// fresh position (the autosharded routing core's job) can simply call
// again.
func (c *BucketCluster) CreateRecord(dataSegmentID int32, rid types.RID, content []byte, version types.RecordVersion, recordType byte, mode Mode, cb RecordCallback) (OperationResult[types.PhysicalPosition], error) {
	if rid.ClusterID != c.id {
		return OperationResult[types.PhysicalPosition]{}, fmt.Errorf("%w: rid %s does not belong to cluster %d", dberrors.ErrInvalidArgument, rid, c.id)
	}
	if _, exists := c.index.Load(rid); exists {
		return OperationResult[types.PhysicalPosition]{}, ErrRecordDuplicated
	}
	if version == 0 {
		version = types.RecordVersion(c.clock.Next())
	}
	pp := c.seg.Append(content, recordType, version)

	c.mu.Lock()
	b := c.insertLocked(rid)
	idx, err := b.AddPhysicalPosition(pp)
	c.mu.Unlock()
	if err != nil {
		return OperationResult[types.PhysicalPosition]{}, err
	}
	c.index.Store(rid, slot{b: b, idx: idx})

	result := OperationResult[types.PhysicalPosition]{Result: pp, Distributed: false}
	if mode == ModeAsync && cb != nil {
		cb(rid, pp)
	}
	return result, nil
}

// ReadRecord returns the record currently stored at rid.
func (c *BucketCluster) ReadRecord(rid types.RID, fetchPlan string, ignoreCache bool, cb RawBufferCallback) (OperationResult[RawBuffer], error) {
	s, ok := c.index.Load(rid)
	if !ok {
		return OperationResult[RawBuffer]{}, ErrRecordNotFound
	}
	pp, err := s.b.PhysicalPosition(s.idx)
	if err != nil {
		return OperationResult[RawBuffer]{}, err
	}
	content, recordType, version, err := c.seg.Read(pp)
	if err != nil {
		return OperationResult[RawBuffer]{}, err
	}
	rb := RawBuffer{Content: content, RecordType: recordType, Version: version}
	if cb != nil {
		cb(rid, rb)
	}
	return OperationResult[RawBuffer]{Result: rb}, nil
}

// UpdateRecord overwrites rid's content if version matches the stored
// version, bumping it to a new version on success.
func (c *BucketCluster) UpdateRecord(rid types.RID, content []byte, version types.RecordVersion, recordType byte, mode Mode, cb VersionCallback) (OperationResult[types.RecordVersion], error) {
	s, ok := c.index.Load(rid)
	if !ok {
		return OperationResult[types.RecordVersion]{}, ErrRecordNotFound
	}
	pp, err := s.b.PhysicalPosition(s.idx)
	if err != nil {
		return OperationResult[types.RecordVersion]{}, err
	}
	if version != 0 && pp.RecordVersion != version {
		return OperationResult[types.RecordVersion]{}, ErrVersionConflict
	}
	newVersion := types.RecordVersion(c.clock.Next())
	newPP := c.seg.Update(pp, content, recordType, newVersion)

	c.mu.Lock()
	vacated, err := s.b.RemovePhysicalPosition(s.idx)
	if err != nil {
		c.mu.Unlock()
		return OperationResult[types.RecordVersion]{}, err
	}
	// RemovePhysicalPosition may have swapped a different RID's slot into
	// s.idx; re-point that RID's index entry before reusing the slot.
	c.fixupSwappedSlotLocked(s.b, vacated, s.idx)
	b := c.insertLocked(rid)
	idx, err := b.AddPhysicalPosition(newPP)
	c.mu.Unlock()
	if err != nil {
		return OperationResult[types.RecordVersion]{}, err
	}
	c.index.Store(rid, slot{b: b, idx: idx})

	if mode == ModeAsync && cb != nil {
		cb(rid, newVersion)
	}
	return OperationResult[types.RecordVersion]{Result: newVersion}, nil
}

// DeleteRecord removes rid if version matches the stored version.
func (c *BucketCluster) DeleteRecord(rid types.RID, version types.RecordVersion, mode Mode, cb BoolCallback) (OperationResult[bool], error) {
	s, ok := c.index.Load(rid)
	if !ok {
		return OperationResult[bool]{Result: false}, nil
	}
	pp, err := s.b.PhysicalPosition(s.idx)
	if err != nil {
		return OperationResult[bool]{}, err
	}
	if version != 0 && pp.RecordVersion != version {
		return OperationResult[bool]{}, ErrVersionConflict
	}

	c.mu.Lock()
	vacated, removeErr := s.b.RemovePhysicalPosition(s.idx)
	err = removeErr
	if err == nil {
		c.fixupSwappedSlotLocked(s.b, vacated, s.idx)
	}
	c.mu.Unlock()
	if err != nil {
		return OperationResult[bool]{}, err
	}
	c.index.Delete(rid)

	if mode == ModeAsync && cb != nil {
		cb(rid, true)
	}
	return OperationResult[bool]{Result: true}, nil
}

// fixupSwappedSlotLocked re-points the index entry for whichever RID used
// to sit at b's now-vacated slot, after RemovePhysicalPosition moved it to
// newIdx. It must be called with c.mu held and is a linear scan over the
// index, the price this core pays for not keeping a reverse
// (bucket,slot) -> RID map on top of the forward index - acceptable since
// removal is already an O(bucket chain length) operation.
//
// The scan matches on the stale (b, vacated) slot the moved entry's index
// record still points at, not on physical-position equality: once
// RemovePhysicalPosition has shrunk the bucket, vacated is out of range
// for PhysicalPosition, so reading through it to compare values would
// always fail and leave the moved record's index entry stale.
func (c *BucketCluster) fixupSwappedSlotLocked(b *bucket.Bucket, vacated, newIdx int) {
	if vacated == newIdx {
		return
	}
	var found types.RID
	var ok bool
	c.index.Range(func(rid types.RID, s slot) bool {
		if s.b == b && s.idx == vacated {
			found, ok = rid, true
			return false
		}
		return true
	})
	if ok {
		c.index.Store(found, slot{b: b, idx: newIdx})
	}
}

// Exists reports whether rid is currently stored.
func (c *BucketCluster) Exists(rid types.RID) bool {
	_, ok := c.index.Load(rid)
	return ok
}

// Count returns the number of live records in this cluster.
func (c *BucketCluster) Count() int64 {
	return int64(c.index.Len())
}
