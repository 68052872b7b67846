// Package types holds the identifiers shared across the ring, the local
// cluster, and the autosharded routing core.
package types

import (
	"encoding/hex"
	"fmt"
)

// NodeID is a 160-bit identifier living on the circular DHT keyspace.
type NodeID [20]byte

func (n NodeID) String() string {
	return hex.EncodeToString(n[:])
}

// Term and LogIndex are used by the reference raft-backed leader manager.
type Term uint64
type LogIndex uint64

// ClusterID identifies a logical collection of records sharing a numeric id.
type ClusterID int16

// ClusterPosition is the intra-cluster record index. It doubles as the DHT
// routing key: FindSuccessor(clusterPosition) yields the owning peer.
type ClusterPosition int64

// NewClusterPosition is the sentinel value used before a create assigns a
// real position.
const NewClusterPosition ClusterPosition = -1

// IsNew reports whether a position has not yet been assigned.
func (p ClusterPosition) IsNew() bool {
	return p == NewClusterPosition
}

// RoutingKey interprets the cluster position as an unsigned 64-bit ring key:
// "clusterPosition interpreted as unsigned 64-bit for successor comparison".
func (p ClusterPosition) RoutingKey() uint64 {
	return uint64(p)
}

// RID is a record identifier: (clusterId, clusterPosition).
type RID struct {
	ClusterID       ClusterID
	ClusterPosition ClusterPosition
}

// IsNew reports whether the RID has not been assigned a cluster position yet.
func (r RID) IsNew() bool {
	return r.ClusterPosition.IsNew()
}

func (r RID) String() string {
	return fmt.Sprintf("#%d:%d", r.ClusterID, r.ClusterPosition)
}

// RecordVersion is an opaque, monotonically increasing version stamp. The
// concrete encoding belongs to the version-serializer collaborator (out of
// scope for this core); here it is carried as a fixed-size counter.
type RecordVersion uint32

// RecordVersionSize is the number of bytes RecordVersion occupies on disk,
// folding into bucket.ValueSize the way OVersionFactory.getVersionSize()
// does in the source this core is ported from.
const RecordVersionSize = 4

// PhysicalPosition is the on-disk locator for a record, stored in a bucket
// value slot.
type PhysicalPosition struct {
	DataSegmentID  int32
	DataSegmentPos int64
	RecordType     byte
	RecordVersion  RecordVersion
}
