package localcluster

import (
	"testing"

	"autosharddb/pkg/types"
)

func newTestCluster(t *testing.T) *BucketCluster {
	t.Helper()
	return NewBucketCluster(0, "test", NewMemorySegment(0))
}

func TestCreateReadRoundTrip(t *testing.T) {
	c := newTestCluster(t)
	rid := types.RID{ClusterID: 0, ClusterPosition: 42}

	created, err := c.CreateRecord(0, rid, []byte("hello"), 0, 'd', ModeSync, nil)
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if created.Result.RecordType != 'd' {
		t.Fatalf("RecordType = %v, want 'd'", created.Result.RecordType)
	}

	read, err := c.ReadRecord(rid, "", false, nil)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if string(read.Result.Content) != "hello" {
		t.Fatalf("Content = %q, want %q", read.Result.Content, "hello")
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	c := newTestCluster(t)
	rid := types.RID{ClusterID: 0, ClusterPosition: 7}

	if _, err := c.CreateRecord(0, rid, []byte("a"), 0, 'd', ModeSync, nil); err != nil {
		t.Fatalf("first CreateRecord: %v", err)
	}
	if _, err := c.CreateRecord(0, rid, []byte("b"), 0, 'd', ModeSync, nil); err != ErrRecordDuplicated {
		t.Fatalf("second CreateRecord error = %v, want ErrRecordDuplicated", err)
	}
}

func TestUpdateThenReadReflectsNewContent(t *testing.T) {
	c := newTestCluster(t)
	rid := types.RID{ClusterID: 0, ClusterPosition: 1}

	created, err := c.CreateRecord(0, rid, []byte("v1"), 0, 'd', ModeSync, nil)
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	updated, err := c.UpdateRecord(rid, []byte("v2"), created.Result.RecordVersion, 'd', ModeSync, nil)
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if updated.Result == created.Result.RecordVersion {
		t.Fatalf("UpdateRecord did not bump the version")
	}

	read, err := c.ReadRecord(rid, "", false, nil)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if string(read.Result.Content) != "v2" {
		t.Fatalf("Content = %q, want %q", read.Result.Content, "v2")
	}
}

func TestUpdateWithStaleVersionConflicts(t *testing.T) {
	c := newTestCluster(t)
	rid := types.RID{ClusterID: 0, ClusterPosition: 1}

	created, err := c.CreateRecord(0, rid, []byte("v1"), 0, 'd', ModeSync, nil)
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	staleVersion := created.Result.RecordVersion + 999

	if _, err := c.UpdateRecord(rid, []byte("v2"), staleVersion, 'd', ModeSync, nil); err != ErrVersionConflict {
		t.Fatalf("UpdateRecord with stale version error = %v, want ErrVersionConflict", err)
	}
}

func TestDeleteThenReadNotFound(t *testing.T) {
	c := newTestCluster(t)
	rid := types.RID{ClusterID: 0, ClusterPosition: 3}

	if _, err := c.CreateRecord(0, rid, []byte("x"), 0, 'd', ModeSync, nil); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if _, err := c.DeleteRecord(rid, 0, ModeSync, nil); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if _, err := c.ReadRecord(rid, "", false, nil); err != ErrRecordNotFound {
		t.Fatalf("ReadRecord after delete error = %v, want ErrRecordNotFound", err)
	}
	if c.Exists(rid) {
		t.Fatalf("Exists(rid) = true after delete")
	}
}

func TestDeleteSwapsSurvivingSlotAndKeepsItReadable(t *testing.T) {
	c := newTestCluster(t)
	// Force every record into the same main bucket by reusing the low bits
	// of the routing key, so deletes exercise the swap-last-slot-in path.
	rids := make([]types.RID, 5)
	for i := range rids {
		rids[i] = types.RID{ClusterID: 0, ClusterPosition: types.ClusterPosition(i)*types.ClusterPosition(len(c.mainBuckets)) + 1}
	}
	for _, rid := range rids {
		if _, err := c.CreateRecord(0, rid, []byte(rid.String()), 0, 'd', ModeSync, nil); err != nil {
			t.Fatalf("CreateRecord(%s): %v", rid, err)
		}
	}

	// Delete the first inserted record; every other record must still read
	// back its own content afterward.
	if _, err := c.DeleteRecord(rids[0], 0, ModeSync, nil); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	for _, rid := range rids[1:] {
		read, err := c.ReadRecord(rid, "", false, nil)
		if err != nil {
			t.Fatalf("ReadRecord(%s) after unrelated delete: %v", rid, err)
		}
		if string(read.Result.Content) != rid.String() {
			t.Fatalf("ReadRecord(%s) = %q, want %q", rid, read.Result.Content, rid.String())
		}
	}
	if c.Count() != int64(len(rids)-1) {
		t.Fatalf("Count() = %d, want %d", c.Count(), len(rids)-1)
	}
}

func TestOverflowChainAcceptsMoreThanOneBucketCapacity(t *testing.T) {
	c := newTestCluster(t)
	total := 200 // several times BucketCapacity, forced into one main bucket
	for i := 0; i < total; i++ {
		rid := types.RID{ClusterID: 0, ClusterPosition: types.ClusterPosition(i)*types.ClusterPosition(len(c.mainBuckets)) + 5}
		if _, err := c.CreateRecord(0, rid, []byte("x"), 0, 'd', ModeSync, nil); err != nil {
			t.Fatalf("CreateRecord(%d): %v", i, err)
		}
	}
	if c.Count() != int64(total) {
		t.Fatalf("Count() = %d, want %d", c.Count(), total)
	}
	if c.mainBuckets[5].OverflowBucket() == -1 {
		t.Fatalf("bucket at index 5 has no overflow chain after inserting %d entries into it", total)
	}
}
