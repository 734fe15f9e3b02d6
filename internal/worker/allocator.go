package worker

import "sync/atomic"

// Allocator hands out session-scoped identifiers starting at 1.
type Allocator struct {
	last atomic.Int64
}

func NewAllocator() *Allocator {
	return &Allocator{}
}

// Next returns the next identifier. Values are strictly increasing.
func (a *Allocator) Next() int64 {
	return a.last.Add(1)
}

// Current reports the last identifier handed out, or 0 before the first call.
func (a *Allocator) Current() int64 {
	return a.last.Load()
}
