package mux

import (
	"sync"

	"github.com/nimbusrobotics/piglet/codec"
	"github.com/nimbusrobotics/piglet/roboterr"
)

// idAllocator hands out the 8-bit request IDs used to correlate
// replies for one destination. It scans forward from a cursor that
// survives across allocations, wrapping at the top of the range, and
// fails only when the full 256-ID space is in use.
type idAllocator struct {
	mu     sync.Mutex
	cursor uint8
	active map[uint8]struct{}
}

func newIDAllocator() *idAllocator {
	return &idAllocator{active: make(map[uint8]struct{})}
}

// allocate returns the next unused ID and marks it in use.
func (a *idAllocator) allocate(destination codec.ObjectAddress) (uint8, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.cursor
	for {
		v := a.cursor
		a.cursor++

		if _, inUse := a.active[v]; !inUse {
			a.active[v] = struct{}{}
			return v, nil
		}

		if a.cursor == start {
			return 0, roboterr.Saturated{Destination: destination}
		}
	}
}

// release returns id to the pool. A later allocate call may return it
// again immediately.
func (a *idAllocator) release(id uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active, id)
}
