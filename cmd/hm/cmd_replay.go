package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/daviddao/hlcmail/pkg/scenario"
)

type replayResult struct {
	Passed bool            `json:"passed" yaml:"passed"`
	Error  string          `json:"error,omitempty" yaml:"error,omitempty"`
	Trace  *scenario.Trace `json:"trace,omitempty" yaml:"trace,omitempty"`
}

func newReplayCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Replay a scripted clock scenario and check its expectations",
		Long: `Replay runs a scenario file against in-memory clocks with manual time
sources. No database is touched. It exits 1 when a step's result differs
from its expectation and 2 when the file cannot be loaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := scenario.Load(args[0])
			if err != nil {
				return commandError("load scenario", err)
			}
			a.log.Debug("scenario loaded", "name", s.Name, "nodes", len(s.Nodes), "steps", len(s.Steps))

			trace, runErr := scenario.Run(s)
			if runErr != nil && !errors.Is(runErr, scenario.ErrExpectation) {
				return commandError("replay", runErr)
			}
			res := replayResult{Passed: runErr == nil, Trace: trace}
			if runErr != nil {
				res.Error = runErr.Error()
			}
			if err := a.emit(res, func(w io.Writer) {
				fmt.Fprint(w, trace.String())
				if res.Passed {
					fmt.Fprintln(w, "PASS")
				} else {
					fmt.Fprintf(w, "FAIL: %s\n", res.Error)
				}
			}); err != nil {
				return err
			}
			if runErr != nil {
				return failure("scenario "+s.Name, runErr)
			}
			return nil
		},
	}
}
