package rpc

import (
	"context"
	"net/http/httptest"
	"testing"

	"autosharddb/pkg/dberrors"
	"autosharddb/pkg/dht"
	"autosharddb/pkg/localcluster"
	"autosharddb/pkg/types"
)

// fakeHandler is an in-memory Handler used to test the wire format without
// a real autosharded.Storage, mirroring the fakeKV pattern from
// pkg/cluster/router_test.go.
type fakeHandler struct {
	records map[types.RID]localcluster.RawBuffer
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{records: make(map[types.RID]localcluster.RawBuffer)}
}

func (h *fakeHandler) CreateRecord(ctx context.Context, rid types.RID, content []byte, version types.RecordVersion, recordType byte) (types.PhysicalPosition, error) {
	if _, exists := h.records[rid]; exists {
		return types.PhysicalPosition{}, localcluster.ErrRecordDuplicated
	}
	h.records[rid] = localcluster.RawBuffer{Content: content, RecordType: recordType, Version: version + 1}
	return types.PhysicalPosition{RecordType: recordType, RecordVersion: version + 1}, nil
}

func (h *fakeHandler) ReadRecord(ctx context.Context, rid types.RID) (localcluster.RawBuffer, error) {
	rb, ok := h.records[rid]
	if !ok {
		return localcluster.RawBuffer{}, localcluster.ErrRecordNotFound
	}
	return rb, nil
}

func (h *fakeHandler) UpdateRecord(ctx context.Context, rid types.RID, content []byte, version types.RecordVersion, recordType byte) (types.RecordVersion, error) {
	rb, ok := h.records[rid]
	if !ok {
		return 0, localcluster.ErrRecordNotFound
	}
	rb.Content = content
	rb.Version++
	h.records[rid] = rb
	return rb.Version, nil
}

func (h *fakeHandler) DeleteRecord(ctx context.Context, rid types.RID, version types.RecordVersion, forwarded bool) (bool, error) {
	if _, ok := h.records[rid]; !ok {
		return false, nil
	}
	delete(h.records, rid)
	return true, nil
}

func newTestServerAndClient(t *testing.T) (*fakeHandler, *RemoteNode, func()) {
	t.Helper()
	handler := newFakeHandler()
	server := NewServer(handler, "")
	httpServer := httptest.NewServer(server.httpHandler())
	client := NewRemoteNode(types.NodeID{1}, httpServer.URL, dht.NewRing())
	return handler, client, httpServer.Close
}

func TestRemoteCreateReadRoundTrip(t *testing.T) {
	_, client, closeFn := newTestServerAndClient(t)
	defer closeFn()

	rid := types.RID{ClusterID: 1, ClusterPosition: 99}
	pp, err := client.CreateRecord(context.Background(), "db", rid, []byte("payload"), 0, 'd')
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if pp.RecordVersion == 0 {
		t.Fatalf("RecordVersion = 0, want nonzero")
	}

	rb, err := client.ReadRecord(context.Background(), "db", rid)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if string(rb.Content) != "payload" {
		t.Fatalf("Content = %q, want %q", rb.Content, "payload")
	}
}

func TestRemoteCreateDuplicateReturnsConflict(t *testing.T) {
	_, client, closeFn := newTestServerAndClient(t)
	defer closeFn()

	rid := types.RID{ClusterID: 1, ClusterPosition: 1}
	if _, err := client.CreateRecord(context.Background(), "db", rid, []byte("a"), 0, 'd'); err != nil {
		t.Fatalf("first CreateRecord: %v", err)
	}
	if _, err := client.CreateRecord(context.Background(), "db", rid, []byte("b"), 0, 'd'); err != localcluster.ErrRecordDuplicated {
		t.Fatalf("second CreateRecord error = %v, want ErrRecordDuplicated", err)
	}
}

func TestRemoteDeleteThenReadNotFound(t *testing.T) {
	_, client, closeFn := newTestServerAndClient(t)
	defer closeFn()

	rid := types.RID{ClusterID: 1, ClusterPosition: 5}
	if _, err := client.CreateRecord(context.Background(), "db", rid, []byte("a"), 0, 'd'); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	deleted, err := client.DeleteRecord(context.Background(), "db", rid, 0, true)
	if err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if !deleted {
		t.Fatalf("DeleteRecord returned deleted=false")
	}
	if _, err := client.ReadRecord(context.Background(), "db", rid); err != dberrors.ErrNotFound {
		t.Fatalf("ReadRecord after delete error = %v, want dberrors.ErrNotFound", err)
	}
}
