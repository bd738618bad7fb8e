package ring

import "sync/atomic"

// ReleaseTx releases n blocks previously obtained from ReserveTx (or
// ReserveTxCap). Released bytes first become "uncommitted"; once every
// in-flight producer-side reservation has released (reserved count drops
// to zero), the whole accumulated uncommitted span migrates atomically to
// the consumer side's ready pool. n == 0 is a no-op.
func (r *Ring) ReleaseTx(n uint32) {
	r.release(n, &r.tx.reserved, &r.tx.uncommitted, &r.rx.szReady)
}

// ReleaseRx is the consumer-side mirror of ReleaseTx.
func (r *Ring) ReleaseRx(n uint32) {
	r.release(n, &r.rx.reserved, &r.rx.uncommitted, &r.tx.szUnused)
}

// ReleaseTxScary releases n blocks directly to the consumer side's ready
// pool, bypassing the uncommitted staging step entirely.
//
// This is correct ONLY when the caller can guarantee it is the sole
// reserver on the producer side: with more than one concurrent reserver,
// it can make a later reservation's bytes visible to the consumer before
// an earlier reservation's bytes are, breaking contiguity of the ready
// range. The ring does not and cannot enforce this; it is a hard caller
// contract, not a runtime check.
func (r *Ring) ReleaseTxScary(n uint32) {
	r.releaseScary(n, &r.tx.reserved, &r.rx.szReady)
}

// ReleaseRxScary is the consumer-side mirror of ReleaseTxScary, with the
// same single-reserver precondition.
func (r *Ring) ReleaseRxScary(n uint32) {
	r.releaseScary(n, &r.rx.reserved, &r.tx.szUnused)
}

// release implements the shared release algorithm (spec: release
// algorithm, steps 1-3). A concurrent release that re-raises `reserved`
// between steps 2 and 3 is expected to drain the accumulated uncommitted
// amount itself when it next reaches zero; the invariant this maintains
// is eventual, not instantaneous.
func (r *Ring) release(n uint32, reserved, uncommitted *uint32, availOpp *int64) {
	if n == 0 {
		return
	}
	amount := uint32(uint64(n) << r.ct.blockShift)

	atomic.AddUint32(uncommitted, amount)
	rNew := atomic.AddUint32(reserved, negUint32(amount))
	if rNew == 0 {
		migrated := atomic.SwapUint32(uncommitted, 0)
		atomic.AddInt64(availOpp, int64(migrated))
	}
}

func (r *Ring) releaseScary(n uint32, reserved *uint32, availOpp *int64) {
	if n == 0 {
		return
	}
	amount := uint32(uint64(n) << r.ct.blockShift)
	atomic.AddUint32(reserved, negUint32(amount))
	atomic.AddInt64(availOpp, int64(amount))
}

// negUint32 returns the two's-complement negation of x, used to subtract
// via atomic.AddUint32 (which has no Sub counterpart).
func negUint32(x uint32) uint32 {
	return ^(x - 1)
}
