package localcluster

import (
	"sync"

	"autosharddb/pkg/dberrors"
	"autosharddb/pkg/types"
)

// DataSegment stores a record's raw bytes and hands back the
// types.PhysicalPosition a bucket slot points at. The physical data
// segment itself is an external collaborator in the system this core is
// part of; this in-memory implementation exists so BucketCluster has a
// real place to put record bytes in tests and the demo binary.
type DataSegment interface {
	Append(content []byte, recordType byte, version types.RecordVersion) types.PhysicalPosition
	Read(pos types.PhysicalPosition) ([]byte, byte, types.RecordVersion, error)
	Update(pos types.PhysicalPosition, content []byte, recordType byte, version types.RecordVersion) types.PhysicalPosition
}

type memorySegment struct {
	id types.ClusterID // reused as a stable DataSegmentID for this segment

	mu      sync.RWMutex
	records map[int64][]byte
	types_  map[int64]byte
	vers    map[int64]types.RecordVersion
	next    int64
}

// NewMemorySegment returns a DataSegment that keeps every record in
// memory, addressed by an incrementing DataSegmentPos.
func NewMemorySegment(id int32) DataSegment {
	return &memorySegment{
		id:      types.ClusterID(id),
		records: make(map[int64][]byte),
		types_:  make(map[int64]byte),
		vers:    make(map[int64]types.RecordVersion),
	}
}

func (s *memorySegment) Append(content []byte, recordType byte, version types.RecordVersion) types.PhysicalPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := s.next
	s.next++
	s.records[pos] = append([]byte(nil), content...)
	s.types_[pos] = recordType
	s.vers[pos] = version
	return types.PhysicalPosition{
		DataSegmentID:  int32(s.id),
		DataSegmentPos: pos,
		RecordType:     recordType,
		RecordVersion:  version,
	}
}

func (s *memorySegment) Read(pos types.PhysicalPosition) ([]byte, byte, types.RecordVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.records[pos.DataSegmentPos]
	if !ok {
		return nil, 0, 0, dberrors.ErrNotFound
	}
	return append([]byte(nil), content...), s.types_[pos.DataSegmentPos], s.vers[pos.DataSegmentPos], nil
}

func (s *memorySegment) Update(pos types.PhysicalPosition, content []byte, recordType byte, version types.RecordVersion) types.PhysicalPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[pos.DataSegmentPos] = append([]byte(nil), content...)
	s.types_[pos.DataSegmentPos] = recordType
	s.vers[pos.DataSegmentPos] = version
	return types.PhysicalPosition{
		DataSegmentID:  pos.DataSegmentID,
		DataSegmentPos: pos.DataSegmentPos,
		RecordType:     recordType,
		RecordVersion:  version,
	}
}
