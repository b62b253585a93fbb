package pipeline

import "sync"

// stripeCount must be a power of two.
const stripeCount = 1024

// stripedLocks serializes edit/delete dispatch per (pair_id, source_msg_id)
// without a lock object per mapping.
type stripedLocks struct {
	locks [stripeCount]sync.Mutex
}

func (s *stripedLocks) stripe(pairID int64, sourceMsgID int) *sync.Mutex {
	h := uint64(pairID)*0x9e3779b97f4a7c15 ^ uint64(uint(sourceMsgID))
	return &s.locks[h&(stripeCount-1)]
}
