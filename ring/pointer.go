package ring

import (
	"fmt"
	"os"
)

// blockTracking is the per-block accounting record a pointer ring's blocks
// hold in place of payload. All tracking records belonging to one pointer
// ring share the same backing store; blkOffset is unique per record and
// addresses a disjoint blkLen-sized slice of it.
//
// The C original stores the backing-store fd, base iovec and file path
// path redundantly inside every block (self-describing blocks, one fewer
// indirection on the splice fast path, at the cost of memory). This Go
// port keeps that redundancy in spirit but factors the shared fields
// (fd/path/length) into the single *backingStore the ring already owns,
// since Go has no raw-pointer-into-shared-memory escape hatch to exploit
// the C version's trick safely; only the per-block fields that are
// genuinely unique (blkID, blkOffset, dataLen) live in blockTracking.
type blockTracking struct {
	blkID     uint64
	blkOffset uint64
	blkLen    uint32
	dataLen   uint32
}

// backingStore is the separately mapped file a pointer ring's blocks
// reference, sized blockSize*blockCount of payload.
type backingStore struct {
	mapped *mappedFile
	path   string
	length uint64
}

func (s *backingStore) fd() int      { return s.mapped.fd() }
func (s *backingStore) close() error { return s.mapped.close(true) }

// NewPointer creates a pointer ring ("p-ring"): an inline ring of tracking
// records, each referencing a unique blockSize-sized slice of a file
// mapped under backingDir. blockSize and blockCount are rounded up to
// powers of two exactly as NewInline does; the backing store is sized
// blockSize*blockCount (the payload block size, not the tracking-record
// size).
//
// Construction performs one initial pass writing a tracking record into
// every block, then immediately drains both sides so every block starts
// in the "unused" state, ready for the caller's own reservations to cycle
// through (mirrors cbuf_create_p).
func NewPointer(blockSize, blockCount uint32, backingDir string) (*Ring, error) {
	if backingDir == "" {
		return nil, fmt.Errorf("ring: NewPointer: %w: backingDir is empty", ErrInvalidArg)
	}

	// The tracking-record ring's own blocks need only be large enough to
	// be individually reservable/releasable; their content lives in
	// r.tracking, not r.ct.buf, so any small power-of-two block size works.
	r, err := NewInline(1, blockCount)
	if err != nil {
		return nil, err
	}
	r.ct.flags |= flagPointer
	count := r.BlockCount()

	_, realBlockSize, _, _, err := geometry(blockSize, 1)
	if err != nil {
		return nil, err
	}

	length := uint64(realBlockSize) * uint64(count)
	store, err := newBackingStore(backingDir, length)
	if err != nil {
		return nil, err
	}
	r.ct.store = store
	r.tracking = make([]blockTracking, count)

	pos, err := r.ReserveTx(count)
	if err != nil {
		store.close()
		return nil, fmt.Errorf("ring: NewPointer: initial reserve: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		idx := r.Offset(pos, i) >> r.ct.blockShift
		r.tracking[idx] = blockTracking{
			blkID:     uint64(i),
			blkOffset: uint64(i) * uint64(realBlockSize),
			blkLen:    realBlockSize,
		}
	}
	r.ReleaseTx(count)

	// Drain the same span on the consumer side so every slot reverts to
	// unused.
	if _, err := r.ReserveRx(count); err != nil {
		store.close()
		return nil, fmt.Errorf("ring: NewPointer: initial drain: %w", err)
	}
	r.ReleaseRx(count)

	return r, nil
}

func newBackingStore(dir string, length uint64) (*backingStore, error) {
	f, err := os.CreateTemp(dir, "cbuf-store-*")
	if err != nil {
		return nil, fmt.Errorf("ring: newBackingStore: create temp file: %w", err)
	}
	path := f.Name()
	f.Close()

	mapped, err := mapFile(path, length)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return &backingStore{mapped: mapped, path: path, length: length}, nil
}

// trackingAt returns the tracking record for the i-th block of a
// reservation beginning at pos. Valid only for pointer rings.
func (r *Ring) trackingAt(pos, i uint32) *blockTracking {
	idx := r.Offset(pos, i) >> r.ct.blockShift
	return &r.tracking[idx]
}
