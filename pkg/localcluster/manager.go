package localcluster

import (
	"fmt"
	"sync"

	"autosharddb/pkg/types"
)

// ClusterManager is the concrete LocalCluster this core ships: a registry
// of named BucketCluster instances, dispatching every record operation to
// the cluster named by the RID's ClusterID. Grounded on pkg/store.Store's
// lifecycle shape (construct, own background state, expose a narrow
// surface) generalized from a single LSM store to a set of independently
// addressable clusters.
type ClusterManager struct {
	mu       sync.RWMutex
	byID     map[types.ClusterID]*BucketCluster
	byName   map[string]types.ClusterID
	nextID   types.ClusterID
	segments func(id int32) DataSegment
}

// NewClusterManager returns an empty manager. newSegment is used to build
// the DataSegment each newly added cluster stores its record bytes in;
// pass a factory that returns NewMemorySegment for a purely in-memory
// deployment.
func NewClusterManager(newSegment func(id int32) DataSegment) *ClusterManager {
	if newSegment == nil {
		newSegment = NewMemorySegment
	}
	return &ClusterManager{
		byID:     make(map[types.ClusterID]*BucketCluster),
		byName:   make(map[string]types.ClusterID),
		segments: newSegment,
	}
}

func (m *ClusterManager) clusterFor(id types.ClusterID) (*BucketCluster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: cluster id %d", ErrClusterNotFound, id)
	}
	return c, nil
}

func (m *ClusterManager) CreateRecord(dataSegmentID int32, rid types.RID, content []byte, version types.RecordVersion, recordType byte, mode Mode, cb RecordCallback) (OperationResult[types.PhysicalPosition], error) {
	c, err := m.clusterFor(rid.ClusterID)
	if err != nil {
		return OperationResult[types.PhysicalPosition]{}, err
	}
	return c.CreateRecord(dataSegmentID, rid, content, version, recordType, mode, cb)
}

func (m *ClusterManager) ReadRecord(rid types.RID, fetchPlan string, ignoreCache bool, cb RawBufferCallback) (OperationResult[RawBuffer], error) {
	c, err := m.clusterFor(rid.ClusterID)
	if err != nil {
		return OperationResult[RawBuffer]{}, err
	}
	return c.ReadRecord(rid, fetchPlan, ignoreCache, cb)
}

func (m *ClusterManager) UpdateRecord(rid types.RID, content []byte, version types.RecordVersion, recordType byte, mode Mode, cb VersionCallback) (OperationResult[types.RecordVersion], error) {
	c, err := m.clusterFor(rid.ClusterID)
	if err != nil {
		return OperationResult[types.RecordVersion]{}, err
	}
	return c.UpdateRecord(rid, content, version, recordType, mode, cb)
}

func (m *ClusterManager) DeleteRecord(rid types.RID, version types.RecordVersion, mode Mode, cb BoolCallback) (OperationResult[bool], error) {
	c, err := m.clusterFor(rid.ClusterID)
	if err != nil {
		return OperationResult[bool]{}, err
	}
	return c.DeleteRecord(rid, version, mode, cb)
}

// AddCluster registers a new empty cluster named name and returns its id.
func (m *ClusterManager) AddCluster(name string) (types.ClusterID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byName[name]; exists {
		return 0, fmt.Errorf("%w: %q", ErrClusterExists, name)
	}
	id := m.nextID
	m.nextID++
	m.byID[id] = NewBucketCluster(id, name, m.segments(int32(id)))
	m.byName[name] = id
	return id, nil
}

// DropCluster removes a cluster and every record in it.
func (m *ClusterManager) DropCluster(id types.ClusterID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%w: cluster id %d", ErrClusterNotFound, id)
	}
	delete(m.byID, id)
	delete(m.byName, c.name)
	return nil
}

// ClusterIDByName resolves a cluster name to its id.
func (m *ClusterManager) ClusterIDByName(name string) (types.ClusterID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[name]
	return id, ok
}

// ClusterNameByID resolves a cluster id to its name.
func (m *ClusterManager) ClusterNameByID(id types.ClusterID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	if !ok {
		return "", false
	}
	return c.name, true
}

// ClusterCount returns the number of clusters currently registered.
func (m *ClusterManager) ClusterCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// IsLHClustersUsed always reports true: this core has no other cluster
// storage strategy to fall back to.
func (m *ClusterManager) IsLHClustersUsed() bool { return true }

// Flush drains every registered cluster's pending bucket writeback work.
func (m *ClusterManager) Flush() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.byID {
		c.Flush()
	}
}

// Close releases the manager's clusters. Records are kept only in memory
// by this core so there is nothing to flush to a durable medium; a
// disk-backed deployment would fsync each cluster's pending pages here.
func (m *ClusterManager) Close() error {
	m.Flush()
	return nil
}
