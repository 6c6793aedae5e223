// Package physical wraps a wall-clock time source as an immutable clock value
// of millisecond precision.
//
// A Clock never regresses: Tick keeps the larger of the fresh reading and the
// previous one, so a source stepping backwards (an NTP correction, a manual
// reset) is absorbed rather than propagated.
package physical

import (
	"strconv"
	"time"

	"github.com/daviddao/hlcmail/pkg/order"
)

// Timestamp is a wall-clock instant in milliseconds since the Unix epoch.
type Timestamp int64

// Epoch is the start of time for every clock in this module.
const Epoch Timestamp = 0

// FromTime truncates t to millisecond precision.
func FromTime(t time.Time) Timestamp { return Timestamp(t.UnixMilli()) }

// Time returns the instant as a UTC time.Time.
func (t Timestamp) Time() time.Time { return time.UnixMilli(int64(t)).UTC() }

// Millis returns the raw millisecond count.
func (t Timestamp) Millis() int64 { return int64(t) }

func (t Timestamp) String() string {
	return t.Time().Format("2006-01-02T15:04:05.000Z07:00")
}

// Compare orders timestamps numerically. It never returns Incomparable.
func (t Timestamp) Compare(other Timestamp) order.PartialOrdering {
	switch {
	case t < other:
		return order.LessThan
	case t > other:
		return order.GreaterThan
	default:
		return order.Equal
	}
}

// Clock is an immutable reading of a Source. The zero value reads the system
// clock and sits at Epoch.
type Clock struct {
	source Source
	ts     Timestamp
}

// Wrap binds a Clock to src at Epoch. A nil src means System().
func Wrap(src Source) Clock {
	if src == nil {
		src = System()
	}
	return Clock{source: src, ts: Epoch}
}

// Tick reads the source and returns a clock holding the later of that reading
// and c's own timestamp.
func (c Clock) Tick() Clock {
	src := c.Source()
	now := FromTime(src.Now())
	if now < c.ts {
		now = c.ts
	}
	return Clock{source: src, ts: now}
}

// StartOfTime returns a clock at Epoch bound to the same source.
func (c Clock) StartOfTime() Clock {
	return Clock{source: c.Source(), ts: Epoch}
}

// Timestamp returns the held reading without touching the source.
func (c Clock) Timestamp() Timestamp { return c.ts }

// Source returns the bound source.
func (c Clock) Source() Source {
	if c.source == nil {
		return System()
	}
	return c.source
}

// Compare orders clocks by their held timestamps.
func (c Clock) Compare(other Clock) order.PartialOrdering {
	return c.ts.Compare(other.ts)
}

func (c Clock) String() string {
	return "physical(" + strconv.FormatInt(int64(c.ts), 10) + ")"
}
