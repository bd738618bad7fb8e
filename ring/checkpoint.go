package ring

import "sync/atomic"

// Checkpoint is a producer-side token that answers "has the consumer
// drained at least up to the position the producer stood at when the
// checkpoint was taken?", even in the face of other producers interleaving
// afterwards and of counter wraparound.
//
// It uses the (actual_rcv, diff) formulation: c0 is the "actual consumer"
// position at snapshot time, and diff is how far the consumer needed to
// advance to catch up to the "actual producer" position at that same
// moment. This is the formulation the design favors over the single
// unrolled-uint64 alternative, because it needs no rollover bookkeeping at
// snapshot time.
//
// A Checkpoint is a plain value: callers own it on their own stack (there
// is no thread-local storage involved, unlike the C original).
type Checkpoint struct {
	c0   uint32
	diff uint64
}

// actualConsumer is the furthest byte the consumer side has fully drained:
// snd_pos + sz_unused, in the position counter's own (wrapping uint32)
// modular arithmetic. The position counters here are not reduced modulo the
// ring size, so snd_pos + sz_unused runs exactly one ring's worth of bytes
// ahead of the consumer's drained position; that offset is subtracted so
// the result is comparable with actualProducer.
func (r *Ring) actualConsumer() uint32 {
	sndPos := atomic.LoadUint32(&r.tx.pos)
	szUnused := atomic.LoadInt64(&r.tx.szUnused)
	return sndPos + uint32(szUnused) - r.total()
}

// actualProducer is the furthest byte the producer side has fully
// committed (reserved, released, and migrated): rcv_pos + sz_ready.
func (r *Ring) actualProducer() uint32 {
	rcvPos := atomic.LoadUint32(&r.rx.pos)
	szReady := atomic.LoadInt64(&r.rx.szReady)
	return rcvPos + uint32(szReady)
}

// Snapshot captures a Checkpoint. Callers must have released everything
// they intend to track before calling Snapshot; only one checkpoint per
// caller is meaningful at a time (the value itself has no shared state, so
// "one per thread" is simply "hold on to your own Checkpoint value").
func (r *Ring) Snapshot() Checkpoint {
	c0 := r.actualConsumer()
	producer := r.actualProducer()
	// Unsigned subtraction in uint32 space yields the correct forward
	// distance under wraparound, then widens to uint64 for storage.
	diff := uint64(producer - c0)
	return Checkpoint{c0: c0, diff: diff}
}

// Verify reports whether the consumer has drained at least as far as this
// Checkpoint's snapshot position. It is lock-free, idempotent, and cannot
// fail; if the consumer never drains (e.g. a stuck consumer goroutine) it
// will simply keep returning false forever; callers wanting a timeout must
// supervise that themselves.
func (c Checkpoint) Verify(r *Ring) bool {
	c1 := r.actualConsumer()
	return uint64(c1-c.c0) >= c.diff
}
