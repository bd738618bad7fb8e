package ring

import (
	"fmt"
	"math/bits"
)

// maxBufBytes is the largest span addressable by a 32-bit position counter
// in one wraparound (spec: "buffers larger than the platform's 32-bit
// position counter can address in one span" is out of scope).
const maxBufBytes = 1 << 31

// geometry rounds blockSize and blockCount up to powers of two and derives
// the shift/mask pair used for mask-based wraparound and shift-based block
// addressing.
//
// blockShift = ceil(log2(blockSize)); blockSize = 1 << blockShift.
// blockCount is rounded up to the next power of two independently.
// overflowMask = blockSize*blockCount - 1.
func geometry(blockSize, blockCount uint32) (blockShift uint8, size, count, overflowMask uint32, err error) {
	if blockSize == 0 || blockCount == 0 {
		return 0, 0, 0, 0, fmt.Errorf("ring: geometry: blockSize and blockCount must be >= 1")
	}

	shift := uint8(bits.Len32(blockSize - 1))
	size = uint32(1) << shift
	count = nextPow2(blockCount)

	total := uint64(size) * uint64(count)
	if total > maxBufBytes {
		return 0, 0, 0, 0, fmt.Errorf("ring: geometry: total size %d exceeds %d byte limit: %w", total, maxBufBytes, ErrTooLarge)
	}

	return shift, size, count, uint32(total) - 1, nil
}

// nextPow2 rounds x up to the nearest power of two, saturating at 1<<31.
func nextPow2(x uint32) uint32 {
	if x == 0 {
		return 1
	}
	if x&(x-1) == 0 {
		return x
	}
	shift := bits.Len32(x)
	if shift >= 32 {
		return 1 << 31
	}
	return 1 << shift
}
