package ring

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// headerSize is the width of the length header an inline ring reserves at
// the front of every block when used with the splice path.
const headerSize = 8

// spliceYield is the short sleep used between SPLICE_F_NONBLOCK retries,
// standing in for the C original's usleep(100) / sched_yield.
const spliceYield = 100 * time.Microsecond

// ErrNotSpliceable is returned by the splice family when a ring has no
// usable file descriptor to splice against: a heap-backed inline ring
// (see NewInline) was never given one.
var ErrNotSpliceable = errors.New("ring: not backed by a file descriptor")

// SpliceSz returns the payload length represented by block i of
// reservation pos: the length header for an inline ring, data_len for a
// pointer ring.
func (r *Ring) SpliceSz(pos uint32, i uint32) uint32 {
	if r.IsPointer() {
		return r.trackingAt(pos, i).dataLen
	}
	blk := r.Access(pos, i)
	return uint32(binary.LittleEndian.Uint64(blk[:headerSize]))
}

// SpliceFromPipe pulls at most size bytes from fdPipeRead into the ring
// block at (pos, i), via the kernel splice() primitive: no payload bytes
// cross into this process's address space.
//
// On an inline ring, the first headerSize bytes of the block are reserved
// for a length header recording how many bytes actually transferred; size
// is clamped to blockSize-headerSize. On a pointer ring, size is clamped
// to the tracking record's block length, and the transferred count is
// recorded in the tracking record's data_len field instead.
//
// A splice that would block retries after a short sleep; any other error
// collapses to a zero-length transfer, matching the C original's "a
// splice error degrades to 0, never -1" contract.
func (r *Ring) SpliceFromPipe(fdPipeRead int, pos uint32, i uint32, size uint32) (uint32, error) {
	if r.IsPointer() {
		t := r.trackingAt(pos, i)
		if size > t.blkLen {
			size = t.blkLen
		}
		off := int64(t.blkOffset)
		n, err := spliceRetry(fdPipeRead, nil, r.ct.store.fd(), &off, int(size))
		if err != nil {
			n = 0
		}
		t.dataLen = uint32(n)
		return t.dataLen, nil
	}

	if r.ct.mmapFile == nil {
		return 0, ErrNotSpliceable
	}
	if size > r.ct.blockSize-headerSize {
		size = r.ct.blockSize - headerSize
	}
	blockOff := r.Offset(pos, i)
	off := int64(blockOff) + headerSize
	n, err := spliceRetry(fdPipeRead, nil, r.ct.mmapFile.fd(), &off, int(size))
	if err != nil {
		n = 0
	}
	binary.LittleEndian.PutUint64(r.ct.buf[blockOff:blockOff+headerSize], uint64(n))
	return uint32(n), nil
}

// SpliceToPipe reads the transfer length recorded by a prior
// SpliceFromPipe at (pos, i) and splices that many bytes from the ring (or
// its backing store) into fdPipeWrite, which must be a pipe. As with
// SpliceFromPipe, any error collapses to a zero-length transfer.
func (r *Ring) SpliceToPipe(pos uint32, i uint32, fdPipeWrite int) (uint32, error) {
	if r.IsPointer() {
		t := r.trackingAt(pos, i)
		if t.dataLen == 0 {
			return 0, nil
		}
		off := int64(t.blkOffset)
		n, err := spliceRetry(r.ct.store.fd(), &off, fdPipeWrite, nil, int(t.dataLen))
		if err != nil {
			n = 0
		}
		return uint32(n), nil
	}

	if r.ct.mmapFile == nil {
		return 0, ErrNotSpliceable
	}
	blockOff := r.Offset(pos, i)
	length := binary.LittleEndian.Uint64(r.ct.buf[blockOff : blockOff+headerSize])
	if length == 0 {
		return 0, nil
	}
	off := int64(blockOff) + headerSize
	n, err := spliceRetry(r.ct.mmapFile.fd(), &off, fdPipeWrite, nil, int(length))
	if err != nil {
		n = 0
	}
	return uint32(n), nil
}

// spliceRetry wraps unix.Splice with SPLICE_F_NONBLOCK, retrying on
// EAGAIN/EWOULDBLOCK after a short sleep and giving up on any other error.
func spliceRetry(rfd int, roff *int64, wfd int, woff *int64, size int) (int64, error) {
	for {
		n, err := unix.Splice(rfd, roff, wfd, woff, size, unix.SPLICE_F_NONBLOCK)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			time.Sleep(spliceYield)
			continue
		}
		return 0, fmt.Errorf("ring: splice: %w", err)
	}
}
