package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/hlcmail/pkg/hlc"
)

func TestScenarioFiles(t *testing.T) {
	files, err := filepath.Glob("testdata/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := Load(path)
			require.NoError(t, err)
			trace, err := Run(s)
			require.NoError(t, err)
			g.Assert(t, s.Name, []byte(trace.String()))
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`
name: typo
nodes:
  - id: a
steps:
  - op: tick
    node: a
    expected: "1.0"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected")
}

func TestValidate(t *testing.T) {
	base := func() Scenario {
		return Scenario{
			Name:  "s",
			Nodes: []Node{{ID: "a"}, {ID: "b"}},
			Steps: []Step{{Op: OpTick, Node: "a"}},
		}
	}
	phys := int64(5)
	tests := map[string]func(s *Scenario){
		"missing name":          func(s *Scenario) { s.Name = "" },
		"no nodes":              func(s *Scenario) { s.Nodes = nil },
		"no steps":              func(s *Scenario) { s.Steps = nil },
		"duplicate node":        func(s *Scenario) { s.Nodes = append(s.Nodes, Node{ID: "a"}) },
		"bad start":             func(s *Scenario) { s.Nodes[0].Start = "soon" },
		"unknown op":            func(s *Scenario) { s.Steps[0].Op = "rewind" },
		"unknown node":          func(s *Scenario) { s.Steps[0].Node = "z" },
		"merge without from":    func(s *Scenario) { s.Steps[0] = Step{Op: OpMerge, Node: "a"} },
		"compare unknown from":  func(s *Scenario) { s.Steps[0] = Step{Op: OpCompare, Node: "a", From: "z"} },
		"set_physical no value": func(s *Scenario) { s.Steps[0] = Step{Op: OpSetPhysical, Node: "a"} },
		"set_physical expect":   func(s *Scenario) { s.Steps[0] = Step{Op: OpSetPhysical, Node: "a", Physical: &phys, Expect: "1.0"} },
		"bad stamp expectation": func(s *Scenario) { s.Steps[0].Expect = "x.y" },
		"bad ordering":          func(s *Scenario) { s.Steps[0] = Step{Op: OpCompare, Node: "a", From: "b", Expect: "sideways"} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			s := base()
			mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidScenario)
		})
	}

	s := base()
	assert.NoError(t, s.Validate())
}

func TestRunReportsFailingStep(t *testing.T) {
	s, err := Parse([]byte(`
name: wrong
nodes:
  - id: a
    physical: 100
    start: "100.0"
  - id: b
    physical: 100
steps:
  - op: tick
    node: a
    expect: "100.1"
  - op: tick
    node: a
    expect: "100.9"
  - op: tick
    node: a
`))
	require.NoError(t, err)

	trace, err := Run(s)
	require.ErrorIs(t, err, ErrExpectation)
	assert.Contains(t, err.Error(), "step 2 (tick a)")
	assert.Contains(t, err.Error(), "got 100.2, want 100.9")
	require.NotNil(t, trace)
	assert.Len(t, trace.Steps, 2)
	assert.Equal(t, hlc.Stamp{Timestamp: 100, Counter: 2}, trace.Final[0].Stamp)
}

func TestRunCompareMismatch(t *testing.T) {
	s, err := Parse([]byte(`
name: cmp
nodes:
  - id: a
  - id: b
steps:
  - op: compare
    node: a
    from: b
    expect: less_than
`))
	require.NoError(t, err)
	_, err = Run(s)
	require.ErrorIs(t, err, ErrExpectation)
	assert.Contains(t, err.Error(), "got equal, want less_than")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
