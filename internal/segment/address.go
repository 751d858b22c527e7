// Package segment implements the address space backing a tl2.Region: a
// growable array of segments of tl2.Word, each sized at allocation, addressed by an
// opaque tl2.Address that packs a segment id into its high 16 bits and a
// word offset into its low 48, mirroring the virtual-address scheme of the
// reference implementation this package ports (original tm.cpp's
// indexOf/offsetOf/virtualAddress macros).
package segment

import "github.com/matteosz/stm-tl2/internal/tl2"

const (
	segmentShift = 48
	segmentMask  = (uint64(1) << 16) - 1
	offsetMask   = (uint64(1) << segmentShift) - 1
)

// firstSegmentID is the id of the region's non-freeable first segment,
// returned by tm_start in the boundary adapter.
const firstSegmentID uint32 = 0

func encodeAddress(id uint32, wordIndex uint32) tl2.Address {
	return tl2.Address(uint64(id)<<segmentShift | uint64(wordIndex))
}

func decodeAddress(addr tl2.Address) (id uint32, wordIndex uint32) {
	v := uint64(addr)
	return uint32((v >> segmentShift) & segmentMask), uint32(v & offsetMask)
}
