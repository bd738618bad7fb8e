package ring

import "sync/atomic"

// ReserveTx reserves n contiguous blocks on the producer side. n must be a
// power of two >= 1; a single-block reservation is ReserveTx(1). On
// success it returns the byte position token to be used with Offset or
// Access; the token is not masked and may represent a reservation that
// wraps the end of the buffer.
func (r *Ring) ReserveTx(n uint32) (uint32, error) {
	return r.reserve(n, &r.tx.szUnused, &r.tx.reserved, &r.tx.pos)
}

// ReserveRx is the consumer-side mirror of ReserveTx.
func (r *Ring) ReserveRx(n uint32) (uint32, error) {
	return r.reserve(n, &r.rx.szReady, &r.rx.reserved, &r.rx.pos)
}

// ReserveTxCap clamps *n to the number of blocks actually available on the
// producer side before reserving. *n is updated in place to the amount
// actually granted (even on failure, so the caller can see what was
// attempted).
func (r *Ring) ReserveTxCap(n *uint32) (uint32, error) {
	return r.reserveCap(n, &r.tx.szUnused, &r.tx.reserved, &r.tx.pos)
}

// ReserveRxCap is the consumer-side mirror of ReserveTxCap.
func (r *Ring) ReserveRxCap(n *uint32) (uint32, error) {
	return r.reserveCap(n, &r.rx.szReady, &r.rx.reserved, &r.rx.pos)
}

func (r *Ring) reserveCap(n *uint32, avail *int64, reserved, pos *uint32) (uint32, error) {
	possible := uint32(atomic.LoadInt64(avail) >> r.ct.blockShift)
	if *n > possible {
		*n = possible
	}
	if *n == 0 {
		return 0, ErrNoSpace
	}
	return r.reserve(*n, avail, reserved, pos)
}

// reserve implements the lock-free reservation algorithm shared by both
// sides (spec: reservation algorithm, steps 1-4).
func (r *Ring) reserve(n uint32, avail *int64, reserved, pos *uint32) (uint32, error) {
	if n == 0 {
		return 0, ErrNoSpace
	}
	if !log2Exact(n) {
		return 0, ErrInvalidArg
	}

	need := int64(n) << r.ct.blockShift

	// Step 1+2: attempt an atomic decrement; undo on a losing race.
	if atomic.AddInt64(avail, -need) < 0 {
		atomic.AddInt64(avail, need)
		return 0, ErrNoSpace
	}

	// Step 3: this side now holds `need` bytes reserved.
	atomic.AddUint32(reserved, uint32(need))

	// Step 4: claim the position; the pre-add value is the reservation's
	// start. pos is never masked here - callers mask through Offset.
	newPos := atomic.AddUint32(pos, uint32(need))
	return newPos - uint32(need), nil
}

// RcvHeld returns the current consumer-side logical position
// (snd_pos + sz_unused) & overflow_mask, and writes the number of blocks
// currently held (reserved + uncommitted) by the consumer side into
// outN. It is not safe to call concurrently with other consumer-side
// operations; it exists for single-consumer introspection only.
func (r *Ring) RcvHeld(outN *uint32) uint32 {
	sndPos := atomic.LoadUint32(&r.tx.pos)
	szUnused := atomic.LoadInt64(&r.tx.szUnused)
	held := atomic.LoadUint32(&r.rx.reserved) + atomic.LoadUint32(&r.rx.uncommitted)
	*outN = held >> r.ct.blockShift
	return uint32(uint64(sndPos)+uint64(szUnused)) & r.ct.overflowMask
}
