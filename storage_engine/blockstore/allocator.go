package blockstore

import (
	"fmt"
	"sync/atomic"
)

/*
Block id allocator.

A process-local counter initialized to 0 on Open. Next returns the
current value and post-increments, using a compare-and-swap loop so it
stays correct when multiple evictions allocate concurrently.

The counter is deliberately not persisted: a fresh store open always
starts allocation over at 0, and it is the eviction manager's
responsibility to keep ids disjoint the way it always has, not this
allocator's job to resume from the highest id it has ever seen.
*/

// maxBlockID is the highest representable 16-bit id; the allocator is
// exhausted once it would hand out one more than this.
const maxBlockID = 1<<16 - 1

// Allocator hands out block ids for a single store instance.
type Allocator struct {
	next atomic.Uint32
}

// NewAllocator returns an allocator starting at 0.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// ErrAllocatorExhausted is returned once every id in [0, 65535] has been
// handed out. Exhausting the id space is a fatal condition the caller
// must avoid by sizing the store or rotating.
var ErrAllocatorExhausted = fmt.Errorf("blockstore: id space exhausted (all %d ids allocated)", maxBlockID+1)

// Next returns the next unused id, starting at 0 and incrementing by 1 on
// every call, never reused, never decremented.
func (a *Allocator) Next() (uint16, error) {
	for {
		cur := a.next.Load()
		if cur > maxBlockID {
			return 0, ErrAllocatorExhausted
		}
		if a.next.CompareAndSwap(cur, cur+1) {
			return uint16(cur), nil
		}
	}
}
