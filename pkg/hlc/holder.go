package hlc

import "sync/atomic"

// Holder is a goroutine-safe reference to a process's current clock. Clock
// values themselves are immutable; Holder is where one of them is swapped
// for its successor.
//
// Every transition is a compare-and-swap loop, so concurrent callers never
// lose an update. Values returned by Tick and Observe across all callers are
// distinct and strictly increasing in commit order.
type Holder struct {
	cur atomic.Pointer[Clock]
}

// NewHolder returns a holder starting at initial.
func NewHolder(initial Clock) *Holder {
	h := &Holder{}
	h.cur.Store(&initial)
	return h
}

// Load returns the current clock.
func (h *Holder) Load() Clock { return *h.cur.Load() }

// Tick records a local event.
func (h *Holder) Tick() Clock {
	return h.Update(Clock.Tick)
}

// Observe records the receipt of a remote stamp.
func (h *Holder) Observe(remote Stamp) Clock {
	return h.Update(func(c Clock) Clock { return c.Observe(remote) })
}

// Join catches the held clock up to s without counting an event, for when
// the same node's clock was advanced elsewhere.
func (h *Holder) Join(s Stamp) Clock {
	return h.Update(func(c Clock) Clock { return c.Join(s) })
}

// Merge records the receipt of a remote clock.
func (h *Holder) Merge(remote Clock) Clock {
	return h.Observe(remote.Stamp())
}

// Update swaps the held clock for next(current) and returns the new value.
// next may run more than once and must not have side effects.
func (h *Holder) Update(next func(Clock) Clock) Clock {
	for {
		old := h.cur.Load()
		n := next(*old)
		if h.cur.CompareAndSwap(old, &n) {
			return n
		}
	}
}
