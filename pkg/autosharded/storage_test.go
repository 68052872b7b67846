package autosharded

import (
	"context"
	"errors"
	"testing"

	"autosharddb/pkg/dberrors"
	"autosharddb/pkg/dht"
	"autosharddb/pkg/localcluster"
	"autosharddb/pkg/types"
)

// fakeLocal is a minimal LocalCluster fake counting how many times each
// operation is invoked, mirroring pkg/cluster/router_test.go's
// fakeKV/fakeRemote pattern.
type fakeLocal struct {
	records map[types.RID]types.PhysicalPosition
	creates int
	reads   int
	updates int
	deletes int
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{records: make(map[types.RID]types.PhysicalPosition)}
}

func (f *fakeLocal) CreateRecord(_ int32, rid types.RID, _ []byte, version types.RecordVersion, recordType byte, _ localcluster.Mode, _ localcluster.RecordCallback) (localcluster.OperationResult[types.PhysicalPosition], error) {
	f.creates++
	if _, exists := f.records[rid]; exists {
		return localcluster.OperationResult[types.PhysicalPosition]{}, localcluster.ErrRecordDuplicated
	}
	pp := types.PhysicalPosition{DataSegmentID: 1, DataSegmentPos: int64(len(f.records)), RecordType: recordType, RecordVersion: version}
	f.records[rid] = pp
	return localcluster.OperationResult[types.PhysicalPosition]{Result: pp}, nil
}

func (f *fakeLocal) ReadRecord(rid types.RID, _ string, _ bool, _ localcluster.RawBufferCallback) (localcluster.OperationResult[localcluster.RawBuffer], error) {
	f.reads++
	if _, ok := f.records[rid]; !ok {
		return localcluster.OperationResult[localcluster.RawBuffer]{}, localcluster.ErrRecordNotFound
	}
	return localcluster.OperationResult[localcluster.RawBuffer]{Result: localcluster.RawBuffer{Content: []byte("x")}}, nil
}

func (f *fakeLocal) UpdateRecord(rid types.RID, _ []byte, version types.RecordVersion, _ byte, _ localcluster.Mode, _ localcluster.VersionCallback) (localcluster.OperationResult[types.RecordVersion], error) {
	f.updates++
	if _, ok := f.records[rid]; !ok {
		return localcluster.OperationResult[types.RecordVersion]{}, localcluster.ErrRecordNotFound
	}
	return localcluster.OperationResult[types.RecordVersion]{Result: version + 1}, nil
}

func (f *fakeLocal) DeleteRecord(rid types.RID, _ types.RecordVersion, _ localcluster.Mode, _ localcluster.BoolCallback) (localcluster.OperationResult[bool], error) {
	f.deletes++
	if _, ok := f.records[rid]; !ok {
		return localcluster.OperationResult[bool]{Result: false}, nil
	}
	delete(f.records, rid)
	return localcluster.OperationResult[bool]{Result: true}, nil
}

func (f *fakeLocal) AddCluster(name string) (types.ClusterID, error)          { return 0, nil }
func (f *fakeLocal) DropCluster(id types.ClusterID) error                     { return nil }
func (f *fakeLocal) ClusterIDByName(name string) (types.ClusterID, bool)      { return 0, false }
func (f *fakeLocal) ClusterNameByID(id types.ClusterID) (string, bool)        { return "", false }
func (f *fakeLocal) ClusterCount() int                                       { return 1 }
func (f *fakeLocal) IsLHClustersUsed() bool                                  { return true }
func (f *fakeLocal) Close() error                                            { return nil }

// fakeNode is a dht.Node whose remote behavior is scripted by the test:
// createBehavior is consulted once per CreateRecord call and popped.
type fakeNode struct {
	id             types.NodeID
	local          bool
	ring           *dht.Ring
	createBehavior []error
	createCalls    int
	deleteCalls    int
	lastForwarded  bool
	store          *fakeLocal
}

func (n *fakeNode) NodeID() types.NodeID { return n.id }
func (n *fakeNode) IsLocal() bool        { return n.local }
func (n *fakeNode) FindSuccessor(key uint64) (dht.Node, error) {
	return n.ring.FindSuccessor(key)
}

func (n *fakeNode) CreateRecord(ctx context.Context, storageName string, rid types.RID, content []byte, version types.RecordVersion, recordType byte) (types.PhysicalPosition, error) {
	n.createCalls++
	if n.createCalls-1 < len(n.createBehavior) {
		if err := n.createBehavior[n.createCalls-1]; err != nil {
			return types.PhysicalPosition{}, err
		}
	}
	res, err := n.store.CreateRecord(0, rid, content, version, recordType, localcluster.ModeSync, nil)
	return res.Result, err
}

func (n *fakeNode) ReadRecord(ctx context.Context, storageName string, rid types.RID) (localcluster.RawBuffer, error) {
	res, err := n.store.ReadRecord(rid, "", false, nil)
	return res.Result, err
}

func (n *fakeNode) UpdateRecord(ctx context.Context, storageName string, rid types.RID, content []byte, version types.RecordVersion, recordType byte) (types.RecordVersion, error) {
	res, err := n.store.UpdateRecord(rid, content, version, recordType, localcluster.ModeSync, nil)
	return res.Result, err
}

func (n *fakeNode) DeleteRecord(ctx context.Context, storageName string, rid types.RID, version types.RecordVersion, forwarded bool) (bool, error) {
	n.deleteCalls++
	n.lastForwarded = forwarded
	res, err := n.store.DeleteRecord(rid, version, localcluster.ModeSync, nil)
	return res.Result, err
}

type fakeServers struct {
	local dht.Node
	ring  *dht.Ring
}

func (s *fakeServers) LocalNode() dht.Node                     { return s.local }
func (s *fakeServers) FindSuccessor(key uint64) (dht.Node, error) { return s.ring.FindSuccessor(key) }

func nodeID(b byte) types.NodeID {
	var id types.NodeID
	id[0] = b
	return id
}

// positionOwnedBy returns a non-negative cluster position that ring routes
// to want. The ring places each peer at CRC64-hashed virtual positions, so
// the owner of a position cannot be read off the peer's NodeID; the helper
// probes the ring instead.
func positionOwnedBy(t *testing.T, ring *dht.Ring, want dht.Node) types.ClusterPosition {
	t.Helper()
	for k := uint64(0); k < 1<<63; k += 1 << 52 {
		n, err := ring.FindSuccessor(k)
		if err != nil {
			t.Fatalf("FindSuccessor(%d): %v", k, err)
		}
		if n.NodeID() == want.NodeID() {
			return types.ClusterPosition(k)
		}
	}
	t.Fatalf("no non-negative position routes to node %v", want.NodeID())
	return 0
}

// TestCreateRecordLocalFastPathUndistributed is scenario S1: a 1-node
// ring, undistributed cluster, local wrapped storage sees exactly one
// create and the result is not reported as distributed.
func TestCreateRecordLocalFastPathUndistributed(t *testing.T) {
	local := newFakeLocal()
	ring := dht.NewRing()
	ln := &fakeNode{id: nodeID(1), local: true, ring: ring, store: local}
	ring.AddNode(ln)
	servers := &fakeServers{local: ln, ring: ring}

	s := New(local, servers, "storage", []types.ClusterID{5}, nil)
	rid := types.RID{ClusterID: 5, ClusterPosition: types.NewClusterPosition}
	_, res, err := s.CreateRecord(context.Background(), rid, []byte{0xAA}, 0, 'd', localcluster.ModeSync, nil)
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if res.Distributed {
		t.Fatal("expected a local-only result, got Distributed=true")
	}
	if local.creates != 1 {
		t.Fatalf("expected exactly 1 local create, got %d", local.creates)
	}
}

// TestCreateRecordRemote is scenario S2: a 2-node ring, a position the
// ring routes to node B, B's CreateRecord RPC called exactly once.
func TestCreateRecordRemote(t *testing.T) {
	ring := dht.NewRing()
	localStore := newFakeLocal()
	remoteStore := newFakeLocal()

	a := &fakeNode{id: nodeID(0), local: true, ring: ring, store: localStore}
	b := &fakeNode{id: nodeID(2), local: false, ring: ring, store: remoteStore}
	ring.AddNode(a)
	ring.AddNode(b)
	servers := &fakeServers{local: a, ring: ring}

	s := New(localStore, servers, "storage", nil, nil)

	// rid already carries a concrete position, so CreateRecord routes it
	// once instead of drawing from the position generator.
	rid := types.RID{ClusterID: 7, ClusterPosition: positionOwnedBy(t, ring, b)}
	returnedRID, res, err := s.CreateRecord(context.Background(), rid, []byte{1}, 0, 'd', localcluster.ModeSync, nil)
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if localStore.creates != 0 {
		t.Fatalf("local store should not have been touched, got %d creates", localStore.creates)
	}
	if b.createCalls != 1 {
		t.Fatalf("expected exactly 1 remote create RPC, got %d", b.createCalls)
	}
	if !res.Distributed {
		t.Fatal("expected Distributed=true for a remote create")
	}
	if returnedRID.ClusterPosition != rid.ClusterPosition {
		t.Fatalf("returned RID position = %d, want %d", returnedRID.ClusterPosition, rid.ClusterPosition)
	}
}

// TestCreateRecordDuplicateRetry is scenario S3: the remote node b is the
// only ring member (the local node a is not on the ring), so every draw
// routes to b regardless of value, which scripts a
// duplicate/duplicate/accept sequence.
func TestCreateRecordDuplicateRetry(t *testing.T) {
	ring := dht.NewRing()
	localStore := newFakeLocal()
	remoteStore := newFakeLocal()
	a := &fakeNode{id: nodeID(0), local: true, ring: ring, store: localStore}
	b := &fakeNode{
		id: nodeID(2), local: false, ring: ring, store: remoteStore,
		createBehavior: []error{localcluster.ErrRecordDuplicated, localcluster.ErrRecordDuplicated, nil},
	}
	ring.AddNode(b)
	servers := &fakeServers{local: a, ring: ring}

	s := New(localStore, servers, "storage", nil, nil)
	rid := types.RID{ClusterID: 7, ClusterPosition: types.NewClusterPosition}
	_, res, err := s.CreateRecord(context.Background(), rid, []byte{1}, 0, 'd', localcluster.ModeSync, nil)
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if b.createCalls != 3 {
		t.Fatalf("expected exactly 3 remote RPCs, got %d", b.createCalls)
	}
	if res.Distributed != true {
		t.Fatal("expected Distributed=true")
	}
}

// TestCreateRecordExhaustion is scenario S4: b is the only ring member, so
// every draw routes to it; every attempt rejected, exactly 11 RPCs issued,
// RecordDuplicated surfaced.
func TestCreateRecordExhaustion(t *testing.T) {
	ring := dht.NewRing()
	localStore := newFakeLocal()
	remoteStore := newFakeLocal()
	a := &fakeNode{id: nodeID(0), local: true, ring: ring, store: localStore}
	behavior := make([]error, 20)
	for i := range behavior {
		behavior[i] = localcluster.ErrRecordDuplicated
	}
	b := &fakeNode{id: nodeID(2), local: false, ring: ring, store: remoteStore, createBehavior: behavior}
	ring.AddNode(b)
	servers := &fakeServers{local: a, ring: ring}

	s := New(localStore, servers, "storage", nil, nil)
	rid := types.RID{ClusterID: 7, ClusterPosition: types.NewClusterPosition}
	_, _, err := s.CreateRecord(context.Background(), rid, []byte{1}, 0, 'd', localcluster.ModeSync, nil)
	if !errors.Is(err, dberrors.ErrRecordDuplicated) {
		t.Fatalf("expected ErrRecordDuplicated, got %v", err)
	}
	if b.createCalls != maxCreateAttempts {
		t.Fatalf("expected exactly %d RPCs, got %d", maxCreateAttempts, b.createCalls)
	}
}

// TestDeleteForwardedNeverReroutes checks the forwarded-delete loop guard:
// a forwarded delete always executes against wrapped even when the ring
// would route it elsewhere, so two peers can never bounce one delete back
// and forth.
func TestDeleteForwardedNeverReroutes(t *testing.T) {
	ring := dht.NewRing()
	localStore := newFakeLocal()
	remoteStore := newFakeLocal()
	a := &fakeNode{id: nodeID(0), local: true, ring: ring, store: localStore}
	b := &fakeNode{id: nodeID(2), local: false, ring: ring, store: remoteStore}
	ring.AddNode(a)
	ring.AddNode(b)
	servers := &fakeServers{local: a, ring: ring}

	s := New(localStore, servers, "storage", nil, nil)
	rid := types.RID{ClusterID: 3, ClusterPosition: positionOwnedBy(t, ring, b)}
	_, err := s.DeleteRecord(context.Background(), rid, 0, localcluster.ModeSync, true, nil)
	if err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if b.deleteCalls != 0 {
		t.Fatalf("forwarded delete must not re-route, but remote saw %d calls", b.deleteCalls)
	}
	if localStore.deletes != 1 {
		t.Fatalf("forwarded delete must execute against wrapped exactly once, got %d", localStore.deletes)
	}
}

// TestDeleteRoutesForwardedFlagOnward checks the non-forwarded path passes
// forwarded=true to the remote RPC, so the far side won't loop back.
func TestDeleteRoutesForwardedFlagOnward(t *testing.T) {
	ring := dht.NewRing()
	localStore := newFakeLocal()
	remoteStore := newFakeLocal()
	a := &fakeNode{id: nodeID(0), local: true, ring: ring, store: localStore}
	b := &fakeNode{id: nodeID(2), local: false, ring: ring, store: remoteStore}
	ring.AddNode(a)
	ring.AddNode(b)
	servers := &fakeServers{local: a, ring: ring}

	s := New(localStore, servers, "storage", nil, nil)
	rid := types.RID{ClusterID: 3, ClusterPosition: positionOwnedBy(t, ring, b)}
	if _, err := s.DeleteRecord(context.Background(), rid, 0, localcluster.ModeSync, false, nil); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if b.deleteCalls != 1 {
		t.Fatalf("expected 1 remote delete call, got %d", b.deleteCalls)
	}
	if !b.lastForwarded {
		t.Fatal("expected the remote call to carry forwarded=true")
	}
}

// TestTransactionsRefused is property 7: commit/rollback always fail.
func TestTransactionsRefused(t *testing.T) {
	local := newFakeLocal()
	ring := dht.NewRing()
	ln := &fakeNode{id: nodeID(1), local: true, ring: ring, store: local}
	ring.AddNode(ln)
	s := New(local, &fakeServers{local: ln, ring: ring}, "storage", nil, nil)

	if err := s.Commit(context.Background()); !errors.Is(err, dberrors.ErrDistributedUnavailable) {
		t.Fatalf("Commit: got %v, want ErrDistributedUnavailable", err)
	}
	if err := s.Rollback(context.Background()); !errors.Is(err, dberrors.ErrDistributedUnavailable) {
		t.Fatalf("Rollback: got %v, want ErrDistributedUnavailable", err)
	}
}

// TestStorageIDStability is property 8.
func TestStorageIDStability(t *testing.T) {
	local := newFakeLocal()
	ring := dht.NewRing()
	id := nodeID(42)
	ln := &fakeNode{id: id, local: true, ring: ring, store: local}
	ring.AddNode(ln)
	s := New(local, &fakeServers{local: ln, ring: ring}, "storage", nil, nil)

	for i := 0; i < 3; i++ {
		if got := s.StorageID(); got != id {
			t.Fatalf("StorageID() = %v, want %v", got, id)
		}
	}
}

func TestTypeStringPreservesMisspelling(t *testing.T) {
	local := newFakeLocal()
	ring := dht.NewRing()
	ln := &fakeNode{id: nodeID(1), local: true, ring: ring, store: local}
	ring.AddNode(ln)
	s := New(local, &fakeServers{local: ln, ring: ring}, "storage", nil, nil)
	if s.Type() != "autoshareded" {
		t.Fatalf("Type() = %q, want %q", s.Type(), "autoshareded")
	}
}
