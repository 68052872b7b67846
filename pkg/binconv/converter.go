// Package binconv provides endian-explicit accessors over a byte buffer.
// Every read and write goes through the fixed little-endian order; there is
// no separate path for hosts whose native layout matches it, which
// NativeAccelerationUsed only reports.
package binconv

import "encoding/binary"

// order is the byte order this converter persists to disk. It is fixed at
// little-endian so on-disk buckets are portable across hosts regardless of
// native endianness; NativeAccelerationUsed reports whether the current
// host can skip the byte-swap path.
var order = binary.LittleEndian

// Converter reads and writes fixed-width integers at explicit offsets.
// Offsets are the caller's contract; out-of-range access panics the same
// way a raw slice index would.
type Converter struct{}

// NativeAccelerationUsed reports true when the host's native byte order
// already matches the on-disk order, so callers can write straight through
// the buffer without keeping a shadow copy to reconcile on serialize.
func (Converter) NativeAccelerationUsed() bool {
	return nativeAccelerationUsed
}

// GetInt32 decodes a little-endian int32 at offset.
func (Converter) GetInt32(buf []byte, offset int) int32 {
	return int32(order.Uint32(buf[offset : offset+4]))
}

// PutInt32 encodes v as a little-endian int32 at offset.
func (Converter) PutInt32(buf []byte, offset int, v int32) {
	order.PutUint32(buf[offset:offset+4], uint32(v))
}

// GetInt64 decodes a little-endian int64 at offset.
func (Converter) GetInt64(buf []byte, offset int) int64 {
	return int64(order.Uint64(buf[offset : offset+8]))
}

// PutInt64 encodes v as a little-endian int64 at offset.
func (Converter) PutInt64(buf []byte, offset int, v int64) {
	order.PutUint64(buf[offset:offset+8], uint64(v))
}

// GetUint32 decodes a little-endian uint32 at offset.
func (Converter) GetUint32(buf []byte, offset int) uint32 {
	return order.Uint32(buf[offset : offset+4])
}

// PutUint32 encodes v as a little-endian uint32 at offset.
func (Converter) PutUint32(buf []byte, offset int, v uint32) {
	order.PutUint32(buf[offset:offset+4], v)
}

// GetByte reads a single byte at offset.
func (Converter) GetByte(buf []byte, offset int) byte {
	return buf[offset]
}

// PutByte writes a single byte at offset.
func (Converter) PutByte(buf []byte, offset int, v byte) {
	buf[offset] = v
}
