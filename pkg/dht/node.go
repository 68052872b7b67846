// Package dht implements the peer abstraction the autosharded routing core
// routes through: a Node, local or remote, living on a consistent-hashing
// Ring keyed by a 64-bit routing key derived from a record's cluster
// position.
package dht

import (
	"context"

	"autosharddb/pkg/localcluster"
	"autosharddb/pkg/types"
)

// Node is one peer on the ring, reachable either as the process's own
// local storage or over RPC.
type Node interface {
	NodeID() types.NodeID
	IsLocal() bool
	FindSuccessor(key uint64) (Node, error)

	CreateRecord(ctx context.Context, storageName string, rid types.RID, content []byte, version types.RecordVersion, recordType byte) (types.PhysicalPosition, error)
	ReadRecord(ctx context.Context, storageName string, rid types.RID) (localcluster.RawBuffer, error)
	UpdateRecord(ctx context.Context, storageName string, rid types.RID, content []byte, version types.RecordVersion, recordType byte) (types.RecordVersion, error)

	// DeleteRecord carries an explicit forwarded flag instead of relying
	// on a thread-local: forwarded is true when the caller has already
	// made the routing decision and this call is the terminal execution
	// on the owning peer, so the receiving end must not route again.
	DeleteRecord(ctx context.Context, storageName string, rid types.RID, version types.RecordVersion, forwarded bool) (bool, error)
}
