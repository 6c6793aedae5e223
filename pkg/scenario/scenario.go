// Package scenario replays scripted clock histories.
//
// A scenario file declares a few named nodes, each with its own manual time
// source, and a list of steps that tick, merge, move physical time or
// compare clocks. Steps may carry an expected result; Run stops at the
// first step whose result differs.
//
//	name: remote_ahead
//	description: merging a clock that is ahead adopts its timestamp
//	nodes:
//	  - id: a
//	    physical: 100
//	    start: "100.3"
//	  - id: b
//	    physical: 100
//	    start: "120.1"
//	steps:
//	  - op: merge
//	    node: a
//	    from: b
//	    expect: "120.2"
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/order"
)

var (
	// ErrInvalidScenario is returned for files that parse but cannot run.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrExpectation is returned when a step's result differs from its
	// expectation.
	ErrExpectation = errors.New("expectation failed")
)

// Step operations.
const (
	OpTick        = "tick"
	OpMerge       = "merge"
	OpSetPhysical = "set_physical"
	OpCompare     = "compare"
)

// Scenario is a parsed scenario file.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Nodes       []Node `yaml:"nodes"`
	Steps       []Step `yaml:"steps"`
}

// Node declares a participant. Physical is the initial reading of its time
// source in milliseconds; Start is its initial stamp ("<ms>.<counter>"),
// the start of time when empty.
type Node struct {
	ID       string `yaml:"id"`
	Physical int64  `yaml:"physical"`
	Start    string `yaml:"start,omitempty"`
}

// Step is one operation.
//
//	tick:         Node ticks.                         Expect: stamp.
//	merge:        Node merges From's current clock.   Expect: stamp.
//	set_physical: Node's source now reads Physical.   Expect: unused.
//	compare:      Node's clock compared with From's.  Expect: ordering name.
type Step struct {
	Op       string `yaml:"op"`
	Node     string `yaml:"node"`
	From     string `yaml:"from,omitempty"`
	Physical *int64 `yaml:"physical,omitempty"`
	Expect   string `yaml:"expect,omitempty"`
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a scenario, rejecting unknown fields, and validates it.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every step refers to declared nodes and carries the
// fields its operation needs.
func (s *Scenario) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidScenario, fmt.Sprintf(format, args...))
	}
	if s.Name == "" {
		return invalid("name is required")
	}
	if len(s.Nodes) == 0 {
		return invalid("at least one node is required")
	}
	if len(s.Steps) == 0 {
		return invalid("at least one step is required")
	}
	known := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.ID == "" {
			return invalid("node without id")
		}
		if known[n.ID] {
			return invalid("duplicate node %q", n.ID)
		}
		known[n.ID] = true
		if n.Start != "" {
			if _, err := hlc.ParseStamp(n.Start); err != nil {
				return invalid("node %q: start: %v", n.ID, err)
			}
		}
	}
	for i, st := range s.Steps {
		at := i + 1
		if !known[st.Node] {
			return invalid("step %d: unknown node %q", at, st.Node)
		}
		switch st.Op {
		case OpTick:
		case OpMerge, OpCompare:
			if !known[st.From] {
				return invalid("step %d: %s needs a known from node, got %q", at, st.Op, st.From)
			}
		case OpSetPhysical:
			if st.Physical == nil {
				return invalid("step %d: set_physical needs physical", at)
			}
			if st.Expect != "" {
				return invalid("step %d: set_physical takes no expectation", at)
			}
		default:
			return invalid("step %d: unknown op %q", at, st.Op)
		}
		if st.Expect == "" {
			continue
		}
		if st.Op == OpCompare {
			var o order.PartialOrdering
			if err := o.UnmarshalText([]byte(st.Expect)); err != nil {
				return invalid("step %d: expect: %v", at, err)
			}
		} else if _, err := hlc.ParseStamp(st.Expect); err != nil {
			return invalid("step %d: expect: %v", at, err)
		}
	}
	return nil
}
