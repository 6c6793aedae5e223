package scenario

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/order"
	"github.com/daviddao/hlcmail/pkg/physical"
)

// StepResult records what one step did.
type StepResult struct {
	Index  int    `json:"index" yaml:"index"`
	Desc   string `json:"desc" yaml:"desc"`
	Result string `json:"result" yaml:"result"`
}

// NodeState is a node's physical reading and clock at some point.
type NodeState struct {
	ID       string    `json:"id" yaml:"id"`
	Physical int64     `json:"physical" yaml:"physical"`
	Stamp    hlc.Stamp `json:"stamp" yaml:"stamp"`
}

// Trace is the record of a run. On failure it holds every step up to and
// including the one that failed.
type Trace struct {
	Name    string       `json:"name" yaml:"name"`
	Initial []NodeState  `json:"initial" yaml:"initial"`
	Steps   []StepResult `json:"steps" yaml:"steps"`
	Final   []NodeState  `json:"final" yaml:"final"`
}

// String renders the trace one line per step, in a stable layout.
func (t *Trace) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s\n", t.Name)
	for _, n := range t.Initial {
		fmt.Fprintf(&b, "  start %s physical=%d clock=%s\n", n.ID, n.Physical, n.Stamp)
	}
	for _, s := range t.Steps {
		fmt.Fprintf(&b, "  %d. %s => %s\n", s.Index, s.Desc, s.Result)
	}
	for _, n := range t.Final {
		fmt.Fprintf(&b, "  final %s physical=%d clock=%s\n", n.ID, n.Physical, n.Stamp)
	}
	return b.String()
}

type runner struct {
	ids     []string
	sources map[string]*physical.ManualSource
	clocks  map[string]hlc.Clock
}

func (r *runner) states() []NodeState {
	out := make([]NodeState, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, NodeState{ID: id, Physical: r.sources[id].Millis(), Stamp: r.clocks[id].Stamp()})
	}
	return out
}

// Run executes s. The trace is returned even when a step fails, with the
// error wrapping ErrExpectation.
func Run(s *Scenario) (*Trace, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	r := &runner{
		sources: make(map[string]*physical.ManualSource, len(s.Nodes)),
		clocks:  make(map[string]hlc.Clock, len(s.Nodes)),
	}
	for _, n := range s.Nodes {
		src := physical.NewManualSource(n.Physical)
		var start hlc.Stamp
		if n.Start != "" {
			start, _ = hlc.ParseStamp(n.Start)
		}
		r.ids = append(r.ids, n.ID)
		r.sources[n.ID] = src
		r.clocks[n.ID] = hlc.Rebind(start, src)
	}

	trace := &Trace{Name: s.Name, Initial: r.states()}
	for i, st := range s.Steps {
		res, err := r.step(st)
		trace.Steps = append(trace.Steps, StepResult{Index: i + 1, Desc: describe(st), Result: res})
		if err != nil {
			trace.Final = r.states()
			return trace, fmt.Errorf("step %d (%s): %w", i+1, describe(st), err)
		}
	}
	trace.Final = r.states()
	return trace, nil
}

func (r *runner) step(st Step) (string, error) {
	switch st.Op {
	case OpTick:
		c := r.clocks[st.Node].Tick()
		r.clocks[st.Node] = c
		return c.Stamp().String(), expectStamp(st.Expect, c.Stamp())
	case OpMerge:
		c := r.clocks[st.Node].Merge(r.clocks[st.From])
		r.clocks[st.Node] = c
		return c.Stamp().String(), expectStamp(st.Expect, c.Stamp())
	case OpSetPhysical:
		r.sources[st.Node].Set(*st.Physical)
		return "physical " + strconv.FormatInt(*st.Physical, 10), nil
	case OpCompare:
		got := r.clocks[st.Node].Compare(r.clocks[st.From])
		if st.Expect != "" {
			var want order.PartialOrdering
			_ = want.UnmarshalText([]byte(st.Expect))
			if got != want {
				return got.String(), fmt.Errorf("%w: got %s, want %s", ErrExpectation, got, want)
			}
		}
		return got.String(), nil
	}
	return "", fmt.Errorf("%w: unknown op %q", ErrInvalidScenario, st.Op)
}

func expectStamp(expect string, got hlc.Stamp) error {
	if expect == "" {
		return nil
	}
	want, _ := hlc.ParseStamp(expect)
	if got != want {
		return fmt.Errorf("%w: got %s, want %s", ErrExpectation, got, want)
	}
	return nil
}

func describe(st Step) string {
	switch st.Op {
	case OpMerge:
		return "merge " + st.Node + " <- " + st.From
	case OpCompare:
		return "compare " + st.Node + " " + st.From
	case OpSetPhysical:
		return "set_physical " + st.Node
	default:
		return st.Op + " " + st.Node
	}
}
