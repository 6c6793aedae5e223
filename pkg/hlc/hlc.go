// Package hlc implements a hybrid logical clock.
//
// From Kulkarni, Demirbas et al. (2014), a hybrid logical clock pairs the
// largest wall-clock reading seen so far with a counter that orders events
// sharing that reading:
//
//	tick (local event): advance to max(physical now, own timestamp); bump the
//	     counter if the timestamp did not move, otherwise reset it to 0.
//	merge (remote event): take the larger timestamp; the counter becomes one
//	     past the counter(s) that carried it.
//
// Unlike a Lamport clock the timestamp stays within clock skew of real time,
// so a single value can both order events causally and say roughly when
// they happened.
//
// Clock values are immutable. Every transition returns a new Clock and the
// receiver is left as it was, so values may be shared between goroutines
// freely. A process that needs one mutable "current" clock should hold it in
// a Holder.
package hlc

import (
	"fmt"
	"math"

	"github.com/daviddao/hlcmail/pkg/merge"
	"github.com/daviddao/hlcmail/pkg/order"
	"github.com/daviddao/hlcmail/pkg/physical"
)

// Clock is a hybrid logical clock value. The zero value is the start of time
// bound to the system clock.
type Clock struct {
	phys    physical.Clock
	ts      physical.Timestamp
	counter uint32
}

var (
	_ order.PartiallyComparable[Clock] = Clock{}
	_ merge.Mergeable[Clock]           = Clock{}
)

// StartOfTime returns a clock at physical.Epoch with counter 0, reading fresh
// time from src on Tick. It is the minimum of every clock built from it.
func StartOfTime(src physical.Source) Clock {
	p := physical.Wrap(src)
	return Clock{phys: p, ts: p.Timestamp()}
}

// Rebind reconstructs a clock from a stamp received or persisted elsewhere,
// bound to the local source src.
func Rebind(s Stamp, src physical.Source) Clock {
	return Clock{phys: physical.Wrap(src), ts: s.Timestamp, counter: s.Counter}
}

// StartOfTime returns a fresh start-of-time clock on c's source.
func (c Clock) StartOfTime() Clock {
	p := c.phys.StartOfTime()
	return Clock{phys: p, ts: p.Timestamp()}
}

// Tick advances the clock for a local event. The result is strictly greater
// than c.
func (c Clock) Tick() Clock {
	ticked := c.phys.Tick()
	next := ticked.Timestamp()
	if next <= c.ts {
		ts, counter := bump(c.ts, c.counter)
		return Clock{phys: ticked, ts: ts, counter: counter}
	}
	return Clock{phys: ticked, ts: next}
}

// Merge folds in a clock observed from another process. Merging is itself a
// causal event, so the result is strictly greater than both c and remote,
// even when the two are equal. c's physical source is kept.
func (c Clock) Merge(remote Clock) Clock {
	return c.Observe(remote.Stamp())
}

// Observe is Merge for a stamp that arrived without a clock, typically off
// the wire.
func (c Clock) Observe(remote Stamp) Clock {
	var ts physical.Timestamp
	var counter uint32
	switch {
	case c.ts == remote.Timestamp:
		ts, counter = bump(c.ts, max(c.counter, remote.Counter))
	case remote.Timestamp > c.ts:
		ts, counter = bump(remote.Timestamp, remote.Counter)
	default:
		ts, counter = bump(c.ts, c.counter)
	}
	return Clock{phys: c.phys, ts: ts, counter: counter}
}

// Join returns the later of c and s, keeping c's source. Unlike Observe it
// is not an event: joining a stamp c has already reached returns c.
func (c Clock) Join(s Stamp) Clock {
	if s.Compare(c.Stamp()) != order.GreaterThan {
		return c
	}
	return Clock{phys: c.phys, ts: s.Timestamp, counter: s.Counter}
}

// bump returns the successor of (ts, counter). A saturated counter rolls the
// timestamp forward one millisecond instead of wrapping.
func bump(ts physical.Timestamp, counter uint32) (physical.Timestamp, uint32) {
	if counter == math.MaxUint32 {
		return ts + 1, 0
	}
	return ts, counter + 1
}

// Compare orders clocks by timestamp, then counter. It never returns
// order.Incomparable.
func (c Clock) Compare(other Clock) order.PartialOrdering {
	return c.Stamp().Compare(other.Stamp())
}

// Equal reports whether c and other hold the same logical value. The bound
// physical source is not part of the value.
func (c Clock) Equal(other Clock) bool {
	return c.ts == other.ts && c.counter == other.counter
}

// Timestamp returns the latest timestamp the clock has committed to.
func (c Clock) Timestamp() physical.Timestamp { return c.ts }

// Counter returns the logical counter within Timestamp.
func (c Clock) Counter() uint32 { return c.counter }

// Physical returns the owned physical clock.
func (c Clock) Physical() physical.Clock { return c.phys }

// Stamp returns the clock's logical value without its source.
func (c Clock) Stamp() Stamp {
	return Stamp{Timestamp: c.ts, Counter: c.counter}
}

func (c Clock) String() string {
	return fmt.Sprintf("%s (%s)", c.Stamp(), c.ts)
}

// TotalOrderLess orders events from different nodes deterministically:
// by stamp, then by node ID when stamps tie.
func TotalOrderLess(a Stamp, nodeA string, b Stamp, nodeB string) bool {
	switch a.Compare(b) {
	case order.LessThan:
		return true
	case order.GreaterThan:
		return false
	default:
		return nodeA < nodeB
	}
}
