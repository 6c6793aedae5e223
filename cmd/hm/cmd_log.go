package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/model"
)

type logResult struct {
	Events []model.Event `json:"events" yaml:"events"`
	Count  int           `json:"count" yaml:"count"`
	Total  int64         `json:"total" yaml:"total"`
	MaxID  int64         `json:"max_id" yaml:"max_id"`
}

func newLogCommand(a *app) *cobra.Command {
	var (
		since   string
		sinceID int64
		limit   int
		kind    string
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the event log in causal order",
		Long: `Log lists events ordered by stamp, ties broken by node ID. With
--since-id it lists events in append order instead, for tailing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore()
			if err != nil {
				return err
			}

			var events []model.Event
			if cmd.Flags().Changed("since-id") {
				events, err = s.ListEventsSinceID(ctx, sinceID, limit)
			} else {
				var from hlc.Stamp
				if since != "" {
					if from, err = hlc.ParseStamp(since); err != nil {
						return commandError("--since", err)
					}
				}
				events, err = s.ListEvents(ctx, from, limit)
			}
			if err != nil {
				return commandError("log", err)
			}

			if kind != "" {
				filtered := events[:0]
				for _, e := range events {
					if string(e.Kind) == kind {
						filtered = append(filtered, e)
					}
				}
				events = filtered
			}
			if events == nil {
				events = []model.Event{}
			}

			res := logResult{Events: events, Count: len(events), Total: s.CountEvents(ctx), MaxID: s.MaxEventID(ctx)}
			return a.emit(res, func(w io.Writer) {
				if len(events) == 0 {
					fmt.Fprintln(w, "no events")
					return
				}
				for _, e := range events {
					printEvent(w, e)
				}
				fmt.Fprintf(w, "(%d of %d events)\n", res.Count, res.Total)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&since, "since", "", "events at or after this stamp (<ms>.<counter>)")
	f.Int64Var(&sinceID, "since-id", 0, "events with row ID above this, in append order")
	f.IntVar(&limit, "limit", 50, "max events to return")
	f.StringVar(&kind, "kind", "", "filter by event kind (msg|tick)")
	return cmd
}

func printEvent(w io.Writer, e model.Event) {
	switch e.Kind {
	case model.EventMsg:
		fmt.Fprintf(w, "[%s] %s -> %s: %s\n", e.Stamp, e.NodeID, e.Target, e.Body)
	case model.EventTick:
		if e.Body != "" {
			fmt.Fprintf(w, "[%s] %s tick: %s\n", e.Stamp, e.NodeID, e.Body)
			return
		}
		fmt.Fprintf(w, "[%s] %s tick\n", e.Stamp, e.NodeID)
	default:
		fmt.Fprintf(w, "[%s] %s %s %s %s\n", e.Stamp, e.NodeID, e.Kind, e.Target, e.Body)
	}
}
