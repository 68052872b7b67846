// Package bucket implements the fixed-size, overflow-chained record
// container that backs a linear-hashing extensible cluster: a flat array of
// (key slot, physical-position slot) pairs plus a size byte and an overflow
// pointer, the same layout as OClusterLocalLHPEBucket in the source this
// core is ported from.
//
// Unlike that source, a Bucket keeps decoded PhysicalPosition values as the
// authoritative in-memory state once loaded; Load wraps a raw page and
// PhysicalPosition decodes each slot from it on first access, Serialize flushes only the slots a mutator actually touched
// back into the page. There is no native-acceleration fast path that writes
// straight through a shared buffer, because that scheme requires the buffer
// and the decoded fields to be reconciled on every serialize - see
// DESIGN.md for why this core drops it in favor of one source of truth.
package bucket

import (
	"fmt"

	"autosharddb/pkg/binconv"
	"autosharddb/pkg/dberrors"
	"autosharddb/pkg/types"
)

const (
	// BucketCapacity is the maximum number of entries a single bucket page
	// holds before a caller must chain to an overflow bucket.
	BucketCapacity = 64

	// KeySize is the reserved width of a key slot. Key bytes are not
	// populated by this core: the source this is ported from leaves
	// getKey/setKey on OClusterLocalLHPEBucket commented out too, since key
	// identity for a physical position lives in the owning local cluster's
	// index rather than in the bucket page itself. The bytes are reserved so
	// the on-disk layout has room for a future key-carrying format.
	KeySize = 192

	valueSizeFixed = 13 // dataSegmentId(4) + dataSegmentPos(8) + recordType(1)
)

// ValueSize is the width of one physical-position slot: the fixed fields
// plus the record-version width, mirroring
// VALUE_SIZE = 13 + OVersionFactory.instance().getVersionSize().
var ValueSize = valueSizeFixed + types.RecordVersionSize

const (
	sizeFieldSize     = 1
	overflowFieldSize = 8
)

// FirstValuePos is the byte offset of slot 0's value field: past the size
// byte and the full key area.
func FirstValuePos() int {
	return sizeFieldSize + BucketCapacity*KeySize
}

// OverflowPos is the byte offset of the overflow-bucket pointer: past the
// size byte, the key area, and the value area.
func OverflowPos() int {
	return FirstValuePos() + BucketCapacity*ValueSize
}

// SizeInBytes is the total on-disk footprint of one bucket page.
func SizeInBytes() int {
	return OverflowPos() + overflowFieldSize
}

// noOverflow is the decoded value of OverflowBucket when a bucket has no
// chained overflow page. On disk this is stored as 0, one past noOverflow,
// so that a freshly zeroed page already decodes to "no overflow" - the same
// off-by-one the source this is ported from uses.
const noOverflow int64 = -1

// StoreListRegistrar receives dirty-bucket notifications so the owning
// local cluster can batch writebacks instead of flushing page-by-page.
// Bucket dispatches to the main or the overflow list based on which kind of
// page it is, mirroring addToStoreList's branch in the source this is
// ported from.
type StoreListRegistrar interface {
	AddToMainStoreList(b *Bucket)
	AddToOverflowStoreList(b *Bucket)
}

// Bucket is one page of a linear-hashing extensible cluster: up to
// BucketCapacity physical positions plus a pointer to an overflow page.
type Bucket struct {
	conv binconv.Converter

	registrar        StoreListRegistrar
	position         int64
	isOverflowBucket bool

	size      uint8
	sizeDirty bool

	positions      [BucketCapacity]types.PhysicalPosition
	positionLoaded [BucketCapacity]bool
	positionDirty  [BucketCapacity]bool

	overflowBucket int64
	overflowLoaded bool
	overflowDirty  bool

	buffer []byte
}

// New allocates a fresh, empty bucket page at position, ready to be
// appended to.
func New(registrar StoreListRegistrar, position int64, isOverflowBucket bool) *Bucket {
	b := &Bucket{
		registrar:        registrar,
		position:         position,
		isOverflowBucket: isOverflowBucket,
	}
	return b
}

// Load reconstructs a bucket from a previously serialized page. buf must be
// exactly SizeInBytes() long; values are decoded lazily on first access.
func Load(registrar StoreListRegistrar, position int64, isOverflowBucket bool, buf []byte) (*Bucket, error) {
	if len(buf) != SizeInBytes() {
		return nil, fmt.Errorf("%w: bucket page is %d bytes, want %d", dberrors.ErrInvalidArgument, len(buf), SizeInBytes())
	}
	b := New(registrar, position, isOverflowBucket)
	b.buffer = buf
	b.size = b.conv.GetByte(buf, 0)
	return b, nil
}

// Position is this bucket's slot index within its owning cluster's page
// file (main or overflow, per IsOverflowBucket).
func (b *Bucket) Position() int64 { return b.position }

// IsOverflowBucket reports whether this page lives in the overflow chain
// rather than the main bucket array.
func (b *Bucket) IsOverflowBucket() bool { return b.isOverflowBucket }

// Size is the number of live entries currently in this page.
func (b *Bucket) Size() int { return int(b.size) }

// Full reports whether the page has no room for another entry.
func (b *Bucket) Full() bool { return int(b.size) == BucketCapacity }

// OverflowBucket returns the position of this bucket's overflow page, or
// noOverflow if it has none.
func (b *Bucket) OverflowBucket() int64 {
	if b.overflowLoaded {
		return b.overflowBucket
	}
	if b.buffer == nil {
		b.overflowBucket = noOverflow
	} else {
		b.overflowBucket = b.conv.GetInt64(b.buffer, OverflowPos()) - 1
	}
	b.overflowLoaded = true
	return b.overflowBucket
}

// SetOverflowBucket points this bucket at a new (or cleared, via
// noOverflow) overflow page and registers it for writeback.
func (b *Bucket) SetOverflowBucket(pos int64) {
	b.overflowBucket = pos
	b.overflowLoaded = true
	b.overflowDirty = true
	b.addToStoreList()
}

// AddPhysicalPosition appends pp as a new entry, returning the index it was
// stored at. It fails with dberrors.ErrInvalidArgument if the page is full;
// callers are expected to have already chained to (or created) an overflow
// bucket before calling this.
func (b *Bucket) AddPhysicalPosition(pp types.PhysicalPosition) (int, error) {
	if b.Full() {
		return 0, fmt.Errorf("%w: bucket at position %d is full", dberrors.ErrInvalidArgument, b.position)
	}
	idx := int(b.size)
	b.positions[idx] = pp
	b.positionLoaded[idx] = true
	b.positionDirty[idx] = true
	b.size++
	b.sizeDirty = true
	b.addToStoreList()
	return idx, nil
}

// PhysicalPosition decodes (or returns the cached copy of) the entry at
// index, which must be in [0, Size()).
func (b *Bucket) PhysicalPosition(index int) (types.PhysicalPosition, error) {
	if index < 0 || index >= int(b.size) {
		return types.PhysicalPosition{}, fmt.Errorf("%w: index %d out of range [0,%d)", dberrors.ErrInvalidArgument, index, b.size)
	}
	if b.positionLoaded[index] {
		return b.positions[index], nil
	}
	pp := b.decodePosition(index)
	b.positions[index] = pp
	b.positionLoaded[index] = true
	return pp, nil
}

func (b *Bucket) decodePosition(index int) types.PhysicalPosition {
	if b.buffer == nil {
		return types.PhysicalPosition{}
	}
	off := FirstValuePos() + index*ValueSize
	return types.PhysicalPosition{
		DataSegmentID:  b.conv.GetInt32(b.buffer, off),
		DataSegmentPos: b.conv.GetInt64(b.buffer, off+4),
		RecordType:     b.conv.GetByte(b.buffer, off+12),
		RecordVersion:  types.RecordVersion(b.conv.GetUint32(b.buffer, off+13)),
	}
}

// RemovePhysicalPosition removes the entry at index by swapping the last
// live slot into its place and shrinking the size by one, marking both
// slots dirty. The source this is ported from leaves this operation as a
// no-op; that is the one behavior this core changes rather than carries
// over, since a removal that never shrinks the page leaks a slot forever.
//
// It returns the slot index that was vacated by the shrink (the bucket's
// old last live index). When index != the vacated index, whatever entry
// used to live at the vacated index is now at index instead; callers that
// keep a reverse index from entry identity to (bucket, slot) must repoint
// that entry from the vacated index to index.
func (b *Bucket) RemovePhysicalPosition(index int) (int, error) {
	if index < 0 || index >= int(b.size) {
		return 0, fmt.Errorf("%w: index %d out of range [0,%d)", dberrors.ErrInvalidArgument, index, b.size)
	}
	last := int(b.size) - 1
	if index != last {
		moved, err := b.PhysicalPosition(last)
		if err != nil {
			return 0, err
		}
		b.positions[index] = moved
		b.positionLoaded[index] = true
		b.positionDirty[index] = true
	}
	b.positionDirty[last] = true
	b.positionLoaded[last] = false
	b.positions[last] = types.PhysicalPosition{}
	b.size--
	b.sizeDirty = true
	b.addToStoreList()
	return last, nil
}

// Dirty reports whether any slot, the overflow pointer, or the size byte
// has changed since the last Serialize.
func (b *Bucket) Dirty() bool {
	if b.sizeDirty || b.overflowDirty {
		return true
	}
	for i := 0; i < int(b.size)+1 && i < BucketCapacity; i++ {
		if b.positionDirty[i] {
			return true
		}
	}
	return false
}

// Serialize flushes every dirty slot, the size byte (if changed), and the
// overflow pointer (if changed) into the backing page and returns it.
// Calling Serialize again with no intervening mutation writes nothing and
// returns the same bytes: every dirty flag this method touches is cleared
// before it returns.
func (b *Bucket) Serialize() []byte {
	if b.buffer == nil {
		b.buffer = make([]byte, SizeInBytes())
	}
	if b.sizeDirty {
		b.conv.PutByte(b.buffer, 0, b.size)
		b.sizeDirty = false
	}
	for i := 0; i < BucketCapacity; i++ {
		if !b.positionDirty[i] {
			continue
		}
		off := FirstValuePos() + i*ValueSize
		pp := b.positions[i]
		b.conv.PutInt32(b.buffer, off, pp.DataSegmentID)
		b.conv.PutInt64(b.buffer, off+4, pp.DataSegmentPos)
		b.conv.PutByte(b.buffer, off+12, pp.RecordType)
		b.conv.PutUint32(b.buffer, off+13, uint32(pp.RecordVersion))
		b.positionDirty[i] = false
	}
	if b.overflowDirty {
		b.conv.PutInt64(b.buffer, OverflowPos(), b.overflowBucket+1)
		b.overflowDirty = false
	}
	return b.buffer
}

func (b *Bucket) addToStoreList() {
	if b.registrar == nil {
		return
	}
	if b.isOverflowBucket {
		b.registrar.AddToOverflowStoreList(b)
	} else {
		b.registrar.AddToMainStoreList(b)
	}
}
