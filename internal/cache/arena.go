package cache

import (
	"sync"

	"github.com/miekg/dns"
)

// nilIndex marks an absent intrusive link (no prev/next/bucket-chain
// neighbor), mirroring a NULL pointer in the original C arena design.
const nilIndex int32 = -1

// entry is one arena slot. It is owned by exactly one segment's hash
// chain and LRU list while in use, or sits on the arena's free stack
// while idle — never both, never neither.
type entry struct {
	inUse  bool
	fp     fingerprint
	answer *dns.Msg
	expiry int64 // unix seconds
	access int64 // unix seconds

	// LRU doubly-linked list, within the owning segment.
	lruPrev int32
	lruNext int32

	// singly-linked hash bucket chain, within the owning segment.
	hashNext int32
}

// arena is a single pre-allocated vector of entry slots plus a free
// index stack, protected by one mutex.
type arena struct {
	mu        sync.Mutex
	slots     []entry
	freeStack []int32
}

func newArena(capacity int) *arena {
	a := &arena{
		slots:     make([]entry, capacity),
		freeStack: make([]int32, capacity),
	}
	for i := 0; i < capacity; i++ {
		a.freeStack[i] = int32(i)
	}
	return a
}

// alloc pops a free slot index, or returns (0, false) if the arena is
// exhausted.
func (a *arena) alloc() (int32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.freeStack)
	if n == 0 {
		return 0, false
	}
	idx := a.freeStack[n-1]
	a.freeStack = a.freeStack[:n-1]
	return idx, true
}

// free pushes a slot index back onto the free stack and clears its
// entry so no stale answer is retained.
func (a *arena) free(idx int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slots[idx] = entry{}
	a.freeStack = append(a.freeStack, idx)
}

func (a *arena) get(idx int32) *entry {
	return &a.slots[idx]
}

func (a *arena) capacity() int {
	return len(a.slots)
}
