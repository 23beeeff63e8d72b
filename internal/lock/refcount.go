package locking

// RefCount counts the holders of a shared resource, such as a spool file read
// by several handles. It starts with the creator's reference; whoever drops
// the last one releases the resource.

import (
	"fmt"
	"sync/atomic"
)

type RefCount struct {
	count atomic.Int32
}

func NewRefCount() *RefCount {
	r := &RefCount{}
	r.count.Store(1)
	return r
}

// TryInc adds a holder. It fails once the count has reached zero, so a
// released resource is never picked up again.
func (r *RefCount) TryInc() bool {
	for {
		n := r.count.Load()
		if n <= 0 {
			return false
		}
		if r.count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Dec drops a holder and reports whether it was the last one.
func (r *RefCount) Dec() bool {
	newCount := r.count.Add(-1)
	if newCount < 0 {
		panic("refcount dropped below zero")
	}
	return newCount == 0
}

func (r *RefCount) Get() int32 {
	return r.count.Load()
}

func (r *RefCount) String() string {
	return fmt.Sprintf("RefCount: %d", r.Get())
}
