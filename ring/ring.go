// Package ring implements a multi-producer/multi-consumer circular buffer
// that brokers fixed-size blocks between a producer ("tx") side and a
// consumer ("rx") side without allocating or copying payload bytes on the
// hot path.
//
// Two storage regimes are supported: an inline ring, whose blocks hold
// payload directly, and a pointer ring, whose blocks hold tracking records
// referencing a separately mapped backing-store file (see pointer.go).
// Both share the same reservation/release state machine, implemented here.
package ring

import (
	"fmt"
	"os"
	"sync/atomic"
)

const cacheLine = 64

// flag bits, mirroring CBUF_P from the source layout.
const (
	flagPointer uint8 = 0x01
)

// constLine holds fields that never change after construction. It is kept
// on its own cache line so producer/consumer contention never invalidates
// it.
type constLine struct {
	buf          []byte
	mmapFile     *mappedFile   // non-nil when the ring's own buf is file-backed (enables splice)
	store        *backingStore // non-nil only for pointer rings
	blockShift   uint8
	flags        uint8
	blockSize    uint32
	overflowMask uint32

	_ [cacheLine]byte // isolate from neighboring lines
}

// txLine holds the producer-side counters. szUnused is signed because an
// atomic subtraction that loses a race can briefly push it negative before
// being corrected.
type txLine struct {
	pos         uint32
	szUnused    int64
	reserved    uint32
	uncommitted uint32

	_ [cacheLine]byte
}

// rxLine is the consumer-side mirror of txLine.
type rxLine struct {
	pos         uint32
	szReady     int64
	reserved    uint32
	uncommitted uint32

	_ [cacheLine]byte
}

// Ring is one producer/consumer circular buffer. All fields are accessed
// through atomics or through the narrow set of methods below; there is no
// exported mutable state.
type Ring struct {
	ct       constLine
	tx       txLine
	rx       rxLine
	tracking []blockTracking // populated only for pointer rings; see pointer.go
}

// blockSize returns the power-of-two block size in bytes.
func (r *Ring) blockSize() uint32 { return r.ct.blockSize }

// total returns the total buffer size in bytes.
func (r *Ring) total() uint32 { return r.ct.overflowMask + 1 }

// BlockSize returns the block size, in bytes, the ring was actually created
// with (after rounding up to a power of two).
func (r *Ring) BlockSize() uint32 { return r.ct.blockSize }

// BlockCount returns the number of blocks in the ring.
func (r *Ring) BlockCount() uint32 { return r.total() >> r.ct.blockShift }

// TotalBytes returns the total number of bytes spanned by the ring.
func (r *Ring) TotalBytes() uint32 { return r.total() }

// BackingStoreLen reports the backing store's total payload length for a
// pointer ring, and 0 for an inline ring (mirrors cbuf_sz_p).
func (r *Ring) BackingStoreLen() uint64 {
	if r.ct.flags&flagPointer == 0 || r.ct.store == nil {
		return 0
	}
	return r.ct.store.length
}

// IsPointer reports whether this ring is a pointer ring (CBUF_P).
func (r *Ring) IsPointer() bool { return r.ct.flags&flagPointer != 0 }

// NewInline creates a ring whose blocks hold payload directly. blockSize
// and blockCount are rounded up to powers of two. The storage is a plain
// heap allocation; there is no file backing it.
func NewInline(blockSize, blockCount uint32) (*Ring, error) {
	return newRing(blockSize, blockCount, nil)
}

// NewMalloc is an alias of NewInline, named to mirror cbuf_create's
// non-file-backed construction path.
func NewMalloc(blockSize, blockCount uint32) (*Ring, error) {
	return NewInline(blockSize, blockCount)
}

// NewInlineMapped creates an inline ring whose own backing buffer is a
// memory-mapped temp file created in mapDir, rather than a plain heap
// allocation. This is required for SpliceFromPipe/SpliceToPipe on an
// inline ring: the kernel splice() primitive needs a real file descriptor
// on at least one side, and a heap slice has none.
func NewInlineMapped(blockSize, blockCount uint32, mapDir string) (*Ring, error) {
	shift, size, count, mask, err := geometry(blockSize, blockCount)
	if err != nil {
		return nil, err
	}
	total := uint64(size) * uint64(count)

	f, err := os.CreateTemp(mapDir, "cbuf-inline-*")
	if err != nil {
		return nil, fmt.Errorf("ring: NewInlineMapped: create temp file: %w", err)
	}
	path := f.Name()
	f.Close()

	mapped, err := mapFile(path, total)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	r := &Ring{
		ct: constLine{
			buf:          mapped.data,
			mmapFile:     mapped,
			blockShift:   shift,
			blockSize:    size,
			overflowMask: mask,
		},
	}
	r.tx.szUnused = int64(total)
	return r, nil
}

func newRing(blockSize, blockCount uint32, buf []byte) (*Ring, error) {
	shift, size, count, mask, err := geometry(blockSize, blockCount)
	if err != nil {
		return nil, err
	}
	total := uint64(size) * uint64(count)

	if buf == nil {
		buf = make([]byte, total)
	} else if uint64(len(buf)) != total {
		return nil, fmt.Errorf("ring: newRing: backing slice length %d != total %d", len(buf), total)
	}

	r := &Ring{
		ct: constLine{
			buf:          buf,
			blockShift:   shift,
			blockSize:    size,
			overflowMask: mask,
		},
	}
	// Everything starts unused (available to the producer side).
	r.tx.szUnused = int64(total)
	r.rx.szReady = 0
	return r, nil
}

// Free releases a ring's resources. For an inline ring backed by plain heap
// memory this is a no-op beyond dropping references; for an inline ring
// created with NewInlineMapped it unmaps and removes its own temp file;
// for a pointer ring it unmaps and removes the backing-store file.
func (r *Ring) Free() error {
	if r.ct.store != nil {
		if err := r.ct.store.close(); err != nil {
			return err
		}
	}
	if r.ct.mmapFile != nil {
		return r.ct.mmapFile.close(true)
	}
	return nil
}

// Zero resets all accounting to "fully unused" so the ring can be reused.
// It is construction-time-only: the outstanding-reservation check below is
// not synchronized against a concurrent reserver, so callers must guarantee
// no other goroutine holds a reservation or is attempting one.
func (r *Ring) Zero() error {
	if atomic.LoadUint32(&r.tx.reserved) != 0 || atomic.LoadUint32(&r.tx.uncommitted) != 0 ||
		atomic.LoadUint32(&r.rx.reserved) != 0 || atomic.LoadUint32(&r.rx.uncommitted) != 0 {
		return ErrBusy
	}
	atomic.StoreUint32(&r.tx.pos, 0)
	atomic.StoreUint32(&r.rx.pos, 0)
	atomic.StoreInt64(&r.tx.szUnused, int64(r.total()))
	atomic.StoreInt64(&r.rx.szReady, 0)
	return nil
}

// Offset returns the byte address within the ring's backing buffer of the
// i-th block of a reservation beginning at pos. Every access to a
// reservation's blocks must go through Offset (or Access): a reservation
// may straddle the end of the buffer, and Offset hides the masking
// necessary to wrap from the end back to the beginning.
func (r *Ring) Offset(pos uint32, i uint32) uint32 {
	start := pos + (i << r.ct.blockShift)
	return start & r.ct.overflowMask
}

// Access returns a slice viewing the i-th block of a reservation beginning
// at pos. The returned slice is exactly one block long and is always
// contiguous: pointer-ring callers must not write through it (a pointer
// ring's own blocks are 1 byte wide and carry no payload; its tracking
// records live outside buf, see NewPointer); inline-ring callers are free
// to read/write payload directly.
func (r *Ring) Access(pos uint32, i uint32) []byte {
	off := r.Offset(pos, i)
	return r.ct.buf[off : off+r.ct.blockSize]
}

// log2Exact reports whether x is already an exact power of two, used by
// callers of Reserve to validate n.
func log2Exact(x uint32) bool {
	return x != 0 && x&(x-1) == 0
}
