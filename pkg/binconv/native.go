package binconv

import "encoding/binary"

// nativeAccelerationUsed is computed once at init: true when the host's
// native byte order happens to agree with the converter's on-disk order,
// the condition OClusterLocalLHPEBucket in the source this core is ported
// from calls "native acceleration".
var nativeAccelerationUsed = detectNativeAcceleration()

func detectNativeAcceleration() bool {
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 0x0102)
	return order.Uint16(probe[:]) == 0x0102
}
