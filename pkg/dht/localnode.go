package dht

import (
	"context"
	"fmt"
	"log/slog"

	"autosharddb/pkg/dberrors"
	"autosharddb/pkg/localcluster"
	"autosharddb/pkg/types"
)

// LocalNode wraps this process's own storage so it can sit on the ring
// next to RemoteNode peers. Grounded on pkg/cluster/router.go's local
// branch: "if the key belongs to this node, serve it directly" - the same
// shape, generalized from a single KV store to the LocalCluster record
// contract.
type LocalNode struct {
	id          types.NodeID
	storageName string
	cluster     localcluster.LocalCluster
	ring        *Ring
}

// NewLocalNode returns a Node representing this process, serving storage
// named storageName out of cluster and resolving FindSuccessor against
// ring.
func NewLocalNode(id types.NodeID, storageName string, cluster localcluster.LocalCluster, ring *Ring) *LocalNode {
	return &LocalNode{id: id, storageName: storageName, cluster: cluster, ring: ring}
}

func (n *LocalNode) NodeID() types.NodeID { return n.id }
func (n *LocalNode) IsLocal() bool        { return true }

func (n *LocalNode) FindSuccessor(key uint64) (Node, error) {
	return n.ring.FindSuccessor(key)
}

func (n *LocalNode) checkStorage(storageName string) error {
	if storageName != n.storageName {
		return fmt.Errorf("%w: storage %q not served by this node (serves %q)", dberrors.ErrInvalidArgument, storageName, n.storageName)
	}
	return nil
}

func (n *LocalNode) CreateRecord(ctx context.Context, storageName string, rid types.RID, content []byte, version types.RecordVersion, recordType byte) (types.PhysicalPosition, error) {
	if err := n.checkStorage(storageName); err != nil {
		return types.PhysicalPosition{}, err
	}
	slog.Debug("dht: local create", "rid", rid.String(), "node_id", n.id.String())
	result, err := n.cluster.CreateRecord(0, rid, content, version, recordType, localcluster.ModeSync, nil)
	if err != nil {
		return types.PhysicalPosition{}, err
	}
	return result.Result, nil
}

func (n *LocalNode) ReadRecord(ctx context.Context, storageName string, rid types.RID) (localcluster.RawBuffer, error) {
	if err := n.checkStorage(storageName); err != nil {
		return localcluster.RawBuffer{}, err
	}
	result, err := n.cluster.ReadRecord(rid, "", false, nil)
	if err != nil {
		return localcluster.RawBuffer{}, err
	}
	return result.Result, nil
}

func (n *LocalNode) UpdateRecord(ctx context.Context, storageName string, rid types.RID, content []byte, version types.RecordVersion, recordType byte) (types.RecordVersion, error) {
	if err := n.checkStorage(storageName); err != nil {
		return 0, err
	}
	result, err := n.cluster.UpdateRecord(rid, content, version, recordType, localcluster.ModeSync, nil)
	if err != nil {
		return 0, err
	}
	return result.Result, nil
}

func (n *LocalNode) DeleteRecord(ctx context.Context, storageName string, rid types.RID, version types.RecordVersion, forwarded bool) (bool, error) {
	if err := n.checkStorage(storageName); err != nil {
		return false, err
	}
	slog.Debug("dht: local delete", "rid", rid.String(), "forwarded", forwarded)
	result, err := n.cluster.DeleteRecord(rid, version, localcluster.ModeSync, nil)
	if err != nil {
		return false, err
	}
	return result.Result, nil
}
