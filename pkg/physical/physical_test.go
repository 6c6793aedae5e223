package physical

import (
	"sync"
	"testing"
	"time"

	"github.com/daviddao/hlcmail/pkg/order"
)

func TestWrapStartsAtEpoch(t *testing.T) {
	c := Wrap(NewManualSource(500))
	if c.Timestamp() != Epoch {
		t.Fatalf("Wrap: got %d, want epoch", c.Timestamp())
	}
}

func TestTickReadsSource(t *testing.T) {
	src := NewManualSource(100)
	c := Wrap(src).Tick()
	if c.Timestamp() != 100 {
		t.Fatalf("Tick: got %d, want 100", c.Timestamp())
	}
	src.Advance(25 * time.Millisecond)
	if c = c.Tick(); c.Timestamp() != 125 {
		t.Fatalf("Tick after advance: got %d, want 125", c.Timestamp())
	}
}

func TestTickNeverRegresses(t *testing.T) {
	src := NewManualSource(1000)
	c := Wrap(src).Tick()
	src.Set(400)
	next := c.Tick()
	if next.Timestamp() != 1000 {
		t.Fatalf("Tick after source went backwards: got %d, want 1000", next.Timestamp())
	}
	if next.Compare(c) != order.Equal {
		t.Fatalf("Compare after backwards step: got %v, want equal", next.Compare(c))
	}
}

func TestTickLeavesReceiverUntouched(t *testing.T) {
	src := NewManualSource(10)
	c := Wrap(src)
	_ = c.Tick()
	if c.Timestamp() != Epoch {
		t.Fatalf("receiver changed to %d", c.Timestamp())
	}
}

func TestStartOfTimeIgnoresHistory(t *testing.T) {
	src := NewManualSource(9999)
	c := Wrap(src).Tick().Tick()
	s := c.StartOfTime()
	if s.Timestamp() != Epoch {
		t.Fatalf("StartOfTime: got %d, want epoch", s.Timestamp())
	}
	if s.Source() != Source(src) {
		t.Fatal("StartOfTime should keep the source")
	}
}

func TestZeroClockUsesSystemTime(t *testing.T) {
	var c Clock
	before := FromTime(time.Now())
	got := c.Tick().Timestamp()
	if got < before {
		t.Fatalf("zero clock tick %d is before %d", got, before)
	}
	if Wrap(nil).Source() == nil {
		t.Fatal("Wrap(nil) should fall back to the system source")
	}
}

func TestSourceFunc(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 987654321, time.UTC)
	c := Wrap(SourceFunc(func() time.Time { return fixed })).Tick()
	if c.Timestamp().Time() != fixed.Truncate(time.Millisecond) {
		t.Fatalf("got %v, want %v", c.Timestamp().Time(), fixed.Truncate(time.Millisecond))
	}
}

func TestTimestampString(t *testing.T) {
	if got := Timestamp(1500).String(); got != "1970-01-01T00:00:01.500Z" {
		t.Fatalf("String() = %q", got)
	}
}

func TestTimestampCompare(t *testing.T) {
	if Timestamp(1).Compare(2) != order.LessThan ||
		Timestamp(2).Compare(1) != order.GreaterThan ||
		Timestamp(2).Compare(2) != order.Equal {
		t.Fatal("Timestamp.Compare disagrees with integer order")
	}
}

func TestManualSourceConcurrentAdvance(t *testing.T) {
	src := NewManualSource(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				src.Advance(time.Millisecond)
			}
		}()
	}
	wg.Wait()
	if src.Millis() != 1000 {
		t.Fatalf("Millis() = %d, want 1000", src.Millis())
	}
}
