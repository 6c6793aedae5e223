package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/model"
)

type tickResult struct {
	Node    string    `json:"node" yaml:"node"`
	EventID int64     `json:"event_id" yaml:"event_id"`
	Stamp   hlc.Stamp `json:"stamp" yaml:"stamp"`
}

func newTickCommand(a *app) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Record a local event and advance the node's clock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			node, err := a.resolveNode()
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			c, err := a.advance(ctx, s, node, hlc.Clock.Tick)
			if err != nil {
				return err
			}
			id, err := s.InsertEvent(ctx, &model.Event{NodeID: node, Stamp: c.Stamp(), Kind: model.EventTick, Body: note})
			if err != nil {
				return commandError("record tick", err)
			}
			a.log.Debug("tick", "node", node, "stamp", c.Stamp())

			res := tickResult{Node: node, EventID: id, Stamp: c.Stamp()}
			return a.emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", node, c)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "text stored with the tick event")
	return cmd
}
