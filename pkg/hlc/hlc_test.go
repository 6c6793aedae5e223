package hlc

import (
	"math"
	"math/rand"
	"testing"

	"github.com/daviddao/hlcmail/pkg/merge"
	"github.com/daviddao/hlcmail/pkg/order"
	"github.com/daviddao/hlcmail/pkg/physical"
)

func at(src physical.Source, ts int64, counter uint32) Clock {
	return Rebind(Stamp{Timestamp: physical.Timestamp(ts), Counter: counter}, src)
}

func sameClock(a, b Clock) bool { return a.Equal(b) }

func TestStartOfTime(t *testing.T) {
	c := StartOfTime(physical.NewManualSource(42))
	if c.Timestamp() != physical.Epoch || c.Counter() != 0 {
		t.Fatalf("StartOfTime: got %s, want epoch/0", c.Stamp())
	}
	var zero Clock
	if !zero.Equal(c) {
		t.Fatalf("zero Clock %s should equal StartOfTime %s", zero.Stamp(), c.Stamp())
	}
}

// Scenario: clock at 100.0, physical reads 100.
func TestTickSameMillisecondIncrementsCounter(t *testing.T) {
	src := physical.NewManualSource(100)
	c := at(src, 100, 0).Tick()
	if c.Timestamp() != 100 || c.Counter() != 1 {
		t.Fatalf("Tick: got %s, want 100.1", c.Stamp())
	}
}

// Scenario: clock at 100.5, physical reads 150.
func TestTickNewMillisecondResetsCounter(t *testing.T) {
	src := physical.NewManualSource(150)
	c := at(src, 100, 5).Tick()
	if c.Timestamp() != 150 || c.Counter() != 0 {
		t.Fatalf("Tick: got %s, want 150.0", c.Stamp())
	}
}

func TestTickWithSourceBehindKeepsTimestamp(t *testing.T) {
	src := physical.NewManualSource(80)
	c := at(src, 100, 2).Tick()
	if c.Timestamp() != 100 || c.Counter() != 3 {
		t.Fatalf("Tick with lagging source: got %s, want 100.3", c.Stamp())
	}
}

func TestTickMonotonicallyIncreases(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	src := physical.NewManualSource(1000)
	c := StartOfTime(src)
	for i := 0; i < 2000; i++ {
		// Jitter the source forwards, backwards or not at all.
		src.Set(src.Millis() + int64(rng.Intn(7)-3))
		next := c.Tick()
		if next.Compare(c) != order.GreaterThan {
			t.Fatalf("step %d: Tick %s not greater than %s", i, next.Stamp(), c.Stamp())
		}
		if next.Timestamp() > c.Timestamp() && next.Counter() != 0 {
			t.Fatalf("step %d: timestamp advanced but counter is %d", i, next.Counter())
		}
		if next.Timestamp() == c.Timestamp() && next.Counter() != c.Counter()+1 {
			t.Fatalf("step %d: counter went %d -> %d on a tie", i, c.Counter(), next.Counter())
		}
		c = next
	}
}

func TestTickLeavesReceiverUntouched(t *testing.T) {
	src := physical.NewManualSource(100)
	c := at(src, 100, 0)
	_ = c.Tick()
	if c.Stamp() != (Stamp{Timestamp: 100}) {
		t.Fatalf("receiver mutated to %s", c.Stamp())
	}
}

func TestTickCounterSaturationRollsTimestamp(t *testing.T) {
	src := physical.NewManualSource(100)
	c := at(src, 100, math.MaxUint32)
	next := c.Tick()
	if next.Timestamp() != 101 || next.Counter() != 0 {
		t.Fatalf("Tick at saturated counter: got %s, want 101.0", next.Stamp())
	}
	if next.Compare(c) != order.GreaterThan {
		t.Fatal("saturated tick should still move forward")
	}
}

func TestMerge(t *testing.T) {
	src := physical.NewManualSource(0)
	tests := []struct {
		name        string
		local       Clock
		remote      Clock
		wantTS      int64
		wantCounter uint32
	}{
		{"equal timestamps take max counter", at(src, 100, 3), at(src, 100, 7), 100, 8},
		{"remote ahead", at(src, 100, 3), at(src, 120, 1), 120, 2},
		{"local ahead", at(src, 120, 4), at(src, 100, 9), 120, 5},
		{"identical inputs still advance", at(src, 100, 3), at(src, 100, 3), 100, 4},
		{"both at start of time", StartOfTime(src), StartOfTime(src), 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.local.Merge(tt.remote)
			if int64(got.Timestamp()) != tt.wantTS || got.Counter() != tt.wantCounter {
				t.Fatalf("Merge: got %s, want %d.%d", got.Stamp(), tt.wantTS, tt.wantCounter)
			}
		})
	}
}

func TestMergeKeepsOwnSource(t *testing.T) {
	local := physical.NewManualSource(500)
	remote := physical.NewManualSource(9000)
	merged := at(local, 100, 0).Merge(at(remote, 200, 0))
	if merged.Physical().Source() != physical.Source(local) {
		t.Fatal("Merge replaced the local time source")
	}
	// The next tick reads the local source (500), which is ahead of 200.
	if next := merged.Tick(); next.Timestamp() != 500 || next.Counter() != 0 {
		t.Fatalf("Tick after merge: got %s, want 500.0", next.Stamp())
	}
}

func randomClocks(n int) []Clock {
	rng := rand.New(rand.NewSource(7))
	src := physical.NewManualSource(0)
	out := make([]Clock, n)
	for i := range out {
		// Few distinct timestamps so ties are common.
		out[i] = at(src, int64(100+10*rng.Intn(4)), uint32(rng.Intn(5)))
	}
	return out
}

func TestMergeIsCommutative(t *testing.T) {
	cs := randomClocks(12)
	for _, a := range cs {
		for _, b := range cs {
			if !merge.Commutative(a, b, sameClock) {
				t.Fatalf("Merge(%s, %s) != Merge(%s, %s)", a.Stamp(), b.Stamp(), b.Stamp(), a.Stamp())
			}
		}
	}
}

func TestMergeStrictlyDominatesInputs(t *testing.T) {
	cs := randomClocks(12)
	for _, a := range cs {
		for _, b := range cs {
			m := a.Merge(b)
			if m.Compare(a) != order.GreaterThan || m.Compare(b) != order.GreaterThan {
				t.Fatalf("Merge(%s, %s) = %s does not dominate both", a.Stamp(), b.Stamp(), m.Stamp())
			}
		}
	}
}

func TestMergeIsNotIdempotent(t *testing.T) {
	c := at(physical.NewManualSource(0), 100, 3)
	if merge.Idempotent(c, sameClock) {
		t.Fatal("causal merge of a clock with itself must advance it")
	}
}

func TestMergeTimestampIsAssociative(t *testing.T) {
	cs := randomClocks(8)
	for _, a := range cs {
		for _, b := range cs {
			for _, c := range cs {
				left := a.Merge(b).Merge(c).Timestamp()
				right := a.Merge(b.Merge(c)).Timestamp()
				if left != right {
					t.Fatalf("timestamp of merges differs: %d vs %d", left, right)
				}
			}
		}
	}
}

// Every merge adds one to the winning counter, so how deep the winner sits
// in the merge tree shows up in the result.
func TestMergeCounterIsNotAssociative(t *testing.T) {
	src := physical.NewManualSource(0)
	a, b, c := at(src, 120, 1), at(src, 100, 3), at(src, 120, 5)
	left := a.Merge(b).Merge(c)
	right := a.Merge(b.Merge(c))
	if left.Stamp() != (Stamp{Timestamp: 120, Counter: 6}) {
		t.Fatalf("(a∘b)∘c = %s, want 120.6", left.Stamp())
	}
	if right.Stamp() != (Stamp{Timestamp: 120, Counter: 7}) {
		t.Fatalf("a∘(b∘c) = %s, want 120.7", right.Stamp())
	}
}

func TestCompareIsTotal(t *testing.T) {
	cs := randomClocks(16)
	for _, a := range cs {
		if a.Compare(a) != order.Equal {
			t.Fatalf("%s not equal to itself", a.Stamp())
		}
		for _, b := range cs {
			ab, ba := a.Compare(b), b.Compare(a)
			if ab == order.Incomparable {
				t.Fatalf("Compare(%s, %s) returned Incomparable", a.Stamp(), b.Stamp())
			}
			if ab != ba.Reverse() {
				t.Fatalf("Compare not anti-symmetric for %s, %s", a.Stamp(), b.Stamp())
			}
		}
	}
}

func TestCompareOrdersTimestampBeforeCounter(t *testing.T) {
	src := physical.NewManualSource(0)
	if at(src, 100, 99).Compare(at(src, 101, 0)) != order.LessThan {
		t.Fatal("higher counter must not outrank a later timestamp")
	}
	if at(src, 100, 2).Compare(at(src, 100, 1)) != order.GreaterThan {
		t.Fatal("equal timestamps should order by counter")
	}
}

func TestStartOfTimeIsMinimum(t *testing.T) {
	src := physical.NewManualSource(50)
	start := StartOfTime(src)
	c := start
	other := at(src, 70, 2)
	for i := 0; i < 100; i++ {
		if i%3 == 0 {
			c = c.Merge(other)
		} else {
			c = c.Tick()
		}
		src.Set(src.Millis() + 1)
		if c.Compare(start) == order.LessThan {
			t.Fatalf("reachable clock %s below start of time", c.Stamp())
		}
		if c.StartOfTime().Compare(start) != order.Equal {
			t.Fatalf("StartOfTime from %s is not the epoch", c.Stamp())
		}
	}
}

func TestMinMaxOverClocks(t *testing.T) {
	src := physical.NewManualSource(0)
	a, b := at(src, 100, 1), at(src, 100, 2)
	if mn, ok := order.Min(a, b); !ok || !mn.Equal(a) {
		t.Fatalf("Min = %s, %v", mn.Stamp(), ok)
	}
	if mx, ok := order.Max(a, b); !ok || !mx.Equal(b) {
		t.Fatalf("Max = %s, %v", mx.Stamp(), ok)
	}
}

func TestTotalOrderLess(t *testing.T) {
	lo := Stamp{Timestamp: 100, Counter: 1}
	hi := Stamp{Timestamp: 100, Counter: 2}
	if !TotalOrderLess(lo, "zed", hi, "amy") {
		t.Fatal("stamp order should win over node order")
	}
	if !TotalOrderLess(lo, "alice", lo, "bob") {
		t.Fatal("tie should break on node ID")
	}
	if TotalOrderLess(lo, "alice", lo, "alice") {
		t.Fatal("TotalOrderLess must be strict")
	}
}

func TestClockString(t *testing.T) {
	c := at(physical.NewManualSource(0), 1500, 2)
	if got := c.String(); got != "1500.2 (1970-01-01T00:00:01.500Z)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestJoinIsNotAnEvent(t *testing.T) {
	local := physical.NewManualSource(0)
	c := at(local, 100, 3)
	if got := c.Join(c.Stamp()); !got.Equal(c) {
		t.Fatalf("Join with own stamp = %s, want %s", got.Stamp(), c.Stamp())
	}
	got := c.Join(Stamp{Timestamp: 120, Counter: 1})
	if got.Stamp() != (Stamp{Timestamp: 120, Counter: 1}) {
		t.Fatalf("Join ahead = %s, want 120.1", got.Stamp())
	}
	if got.Physical().Source() != physical.Source(local) {
		t.Fatal("Join replaced the local time source")
	}
}
