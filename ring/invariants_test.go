package ring

import "sync/atomic"

// checkInvariants asserts the six-counter conservation law and the
// multiple-of-block-size property that must hold at every quiescent
// observation (testable property 1 and 2 of spec.md §8).
func checkInvariants(r *Ring) []string {
	var problems []string

	szUnused := atomic.LoadInt64(&r.tx.szUnused)
	szReady := atomic.LoadInt64(&r.rx.szReady)
	sndReserved := atomic.LoadUint32(&r.tx.reserved)
	sndUncommit := atomic.LoadUint32(&r.tx.uncommitted)
	rcvReserved := atomic.LoadUint32(&r.rx.reserved)
	rcvUncommit := atomic.LoadUint32(&r.rx.uncommitted)

	sum := szUnused + szReady + int64(sndReserved) + int64(sndUncommit) + int64(rcvReserved) + int64(rcvUncommit)
	if sum != int64(r.total()) {
		problems = append(problems, "counter sum does not equal total bytes")
	}

	bs := int64(r.ct.blockSize)
	for name, v := range map[string]int64{
		"sz_unused":     szUnused,
		"sz_ready":      szReady,
		"snd_reserved":  int64(sndReserved),
		"snd_uncommit":  int64(sndUncommit),
		"rcv_reserved":  int64(rcvReserved),
		"rcv_uncommit":  int64(rcvUncommit),
	} {
		if v%bs != 0 {
			problems = append(problems, name+" is not a multiple of block size")
		}
	}

	if szUnused < 0 || szUnused > int64(r.total()) {
		problems = append(problems, "sz_unused out of range")
	}
	if szReady < 0 || szReady > int64(r.total()) {
		problems = append(problems, "sz_ready out of range")
	}

	return problems
}
