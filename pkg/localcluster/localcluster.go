// Package localcluster implements the opaque local-storage contract a
// node's autosharded routing core delegates to once a key is known to be
// owned locally: a linear-hashing extensible cluster (LHPE) keyed by
// RID, backed by chained bucket.Bucket pages.
package localcluster

import (
	"errors"

	"autosharddb/pkg/types"
)

// Mode mirrors the iMode argument OrientDB's storage interface threads
// through every mutating call. BucketCluster completes every call
// synchronously whatever the mode; ModeAsync only makes a mutating call
// also report its result through the callback.
type Mode int

const (
	ModeSync  Mode = 0
	ModeAsync Mode = 1
)

var (
	ErrClusterNotFound  = errors.New("autosharddb: cluster not found")
	ErrClusterExists    = errors.New("autosharddb: cluster already exists")
	ErrRecordNotFound   = errors.New("autosharddb: record not found")
	ErrRecordDuplicated = errors.New("autosharddb: record already exists at that position")
	ErrVersionConflict  = errors.New("autosharddb: record version conflict")
)

// RawBuffer is a record's content plus the metadata needed to interpret
// it, returned by ReadRecord.
type RawBuffer struct {
	Content    []byte
	RecordType byte
	Version    types.RecordVersion
}

// OperationResult wraps a storage operation's result together with
// whether it was carried out through distributed routing rather than
// served straight from the local wrapped storage.
type OperationResult[T any] struct {
	Result      T
	Distributed bool
}

// RecordCallback, RawBufferCallback, VersionCallback and BoolCallback
// receive an operation's result: the mutating calls invoke theirs when a
// caller passes ModeAsync, ReadRecord whenever one is given. The operation
// still completes before returning and returns the same result; nothing
// runs in the background.
type (
	RecordCallback     func(rid types.RID, result types.PhysicalPosition)
	RawBufferCallback  func(rid types.RID, result RawBuffer)
	VersionCallback    func(rid types.RID, result types.RecordVersion)
	BoolCallback       func(rid types.RID, result bool)
)

// LocalCluster is the contract the autosharded routing core, and the DHT's
// local node wrapper, hold an implementation of. It never knows about
// ring position or peer identity: every RID it receives already carries
// the cluster position the caller wants to use.
type LocalCluster interface {
	CreateRecord(dataSegmentID int32, rid types.RID, content []byte, version types.RecordVersion, recordType byte, mode Mode, cb RecordCallback) (OperationResult[types.PhysicalPosition], error)
	ReadRecord(rid types.RID, fetchPlan string, ignoreCache bool, cb RawBufferCallback) (OperationResult[RawBuffer], error)
	UpdateRecord(rid types.RID, content []byte, version types.RecordVersion, recordType byte, mode Mode, cb VersionCallback) (OperationResult[types.RecordVersion], error)
	DeleteRecord(rid types.RID, version types.RecordVersion, mode Mode, cb BoolCallback) (OperationResult[bool], error)

	AddCluster(name string) (types.ClusterID, error)
	DropCluster(id types.ClusterID) error
	ClusterIDByName(name string) (types.ClusterID, bool)
	ClusterNameByID(id types.ClusterID) (string, bool)
	ClusterCount() int
	IsLHClustersUsed() bool

	Close() error
}
