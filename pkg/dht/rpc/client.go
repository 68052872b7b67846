package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"autosharddb/pkg/dberrors"
	"autosharddb/pkg/dht"
	"autosharddb/pkg/localcluster"
	"autosharddb/pkg/types"
)

// RemoteNode is a dht.Node reached over HTTP. It is the direct
// generalization of pkg/rpc/http_remote.go's HTTPRemote: a base URL, a
// shared *http.Client, and one method per record operation, each taking a
// context.Context whose deadline governs the whole round trip.
type RemoteNode struct {
	id      types.NodeID
	baseURL string
	client  *http.Client
	ring    *dht.Ring
}

// NewRemoteNode returns a Node proxying to the peer with the given
// NodeID, reachable at baseURL. ring is used to resolve FindSuccessor
// locally against this process's last-known membership view instead of
// round-tripping to the peer.
func NewRemoteNode(id types.NodeID, baseURL string, ring *dht.Ring) *RemoteNode {
	return &RemoteNode{id: id, baseURL: baseURL, client: http.DefaultClient, ring: ring}
}

func (n *RemoteNode) NodeID() types.NodeID { return n.id }
func (n *RemoteNode) IsLocal() bool        { return false }

func (n *RemoteNode) FindSuccessor(key uint64) (dht.Node, error) {
	return n.ring.FindSuccessor(key)
}

func (n *RemoteNode) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", dberrors.ErrRemoteRPC, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", dberrors.ErrRemoteRPC, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", dberrors.ErrRemoteRPC, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return dberrors.ErrNotFound
	}
	if resp.StatusCode == http.StatusConflict {
		return localcluster.ErrRecordDuplicated
	}
	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		b, _ := io.ReadAll(resp.Body)
		if jsonErr := json.Unmarshal(b, &errResp); jsonErr == nil && errResp.Error != "" {
			return fmt.Errorf("%w: %s", dberrors.ErrRemoteRPC, errResp.Error)
		}
		return fmt.Errorf("%w: status %d: %s", dberrors.ErrRemoteRPC, resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", dberrors.ErrRemoteRPC, err)
	}
	return nil
}

func (n *RemoteNode) CreateRecord(ctx context.Context, storageName string, rid types.RID, content []byte, version types.RecordVersion, recordType byte) (types.PhysicalPosition, error) {
	var resp createResponse
	req := createRequest{StorageName: storageName, RID: toWire(rid), Content: content, Version: uint32(version), RecordType: recordType}
	if err := n.post(ctx, "/dht/create", req, &resp); err != nil {
		return types.PhysicalPosition{}, err
	}
	return types.PhysicalPosition{
		DataSegmentID:  resp.DataSegmentID,
		DataSegmentPos: resp.DataSegmentPos,
		RecordType:     resp.RecordType,
		RecordVersion:  types.RecordVersion(resp.RecordVersion),
	}, nil
}

func (n *RemoteNode) ReadRecord(ctx context.Context, storageName string, rid types.RID) (localcluster.RawBuffer, error) {
	var resp readResponse
	req := readRequest{StorageName: storageName, RID: toWire(rid)}
	if err := n.post(ctx, "/dht/read", req, &resp); err != nil {
		return localcluster.RawBuffer{}, err
	}
	return localcluster.RawBuffer{Content: resp.Content, RecordType: resp.RecordType, Version: types.RecordVersion(resp.Version)}, nil
}

func (n *RemoteNode) UpdateRecord(ctx context.Context, storageName string, rid types.RID, content []byte, version types.RecordVersion, recordType byte) (types.RecordVersion, error) {
	var resp updateResponse
	req := updateRequest{StorageName: storageName, RID: toWire(rid), Content: content, Version: uint32(version), RecordType: recordType}
	if err := n.post(ctx, "/dht/update", req, &resp); err != nil {
		return 0, err
	}
	return types.RecordVersion(resp.Version), nil
}

func (n *RemoteNode) DeleteRecord(ctx context.Context, storageName string, rid types.RID, version types.RecordVersion, forwarded bool) (bool, error) {
	var resp deleteResponse
	req := deleteRequest{StorageName: storageName, RID: toWire(rid), Version: uint32(version), Forwarded: forwarded}
	if err := n.post(ctx, "/dht/delete", req, &resp); err != nil {
		return false, err
	}
	return resp.Deleted, nil
}
