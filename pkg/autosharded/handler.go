package autosharded

import (
	"context"

	"autosharddb/pkg/localcluster"
	"autosharddb/pkg/types"
)

// Handler adapts a Storage to the reduced, mode/callback-free signature
// pkg/dht/rpc.Server mounts as its local-execution surface: the peer on
// the receiving end of an RPC never has a caller-supplied mode or
// callback to honor - a callback is invoked only on local-served
// operations, never on remote-served ones.
type Handler struct {
	storage *Storage
}

// NewHandler wraps storage for mounting behind pkg/dht/rpc.Server.
func NewHandler(storage *Storage) *Handler {
	return &Handler{storage: storage}
}

func (h *Handler) CreateRecord(ctx context.Context, rid types.RID, content []byte, version types.RecordVersion, recordType byte) (types.PhysicalPosition, error) {
	_, res, err := h.storage.CreateRecord(ctx, rid, content, version, recordType, localcluster.ModeSync, nil)
	return res.Result, err
}

func (h *Handler) ReadRecord(ctx context.Context, rid types.RID) (localcluster.RawBuffer, error) {
	res, err := h.storage.ReadRecord(ctx, rid, "", false, nil)
	return res.Result, err
}

func (h *Handler) UpdateRecord(ctx context.Context, rid types.RID, content []byte, version types.RecordVersion, recordType byte) (types.RecordVersion, error) {
	res, err := h.storage.UpdateRecord(ctx, rid, content, version, recordType, localcluster.ModeSync, nil)
	return res.Result, err
}

// DeleteRecord passes forwarded straight from the wire request through to
// Storage.DeleteRecord: the sender already decided this peer is the
// terminal execution of the delete, so this handler must not re-route.
func (h *Handler) DeleteRecord(ctx context.Context, rid types.RID, version types.RecordVersion, forwarded bool) (bool, error) {
	res, err := h.storage.DeleteRecord(ctx, rid, version, localcluster.ModeSync, forwarded, nil)
	return res.Result, err
}
