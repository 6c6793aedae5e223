package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/daviddao/hlcmail/pkg/frontier"
	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/model"
)

type syncResult struct {
	Node     string                   `json:"node" yaml:"node"`
	Stamp    hlc.Stamp                `json:"stamp" yaml:"stamp"`
	At       hlc.Stamp                `json:"at" yaml:"at"`
	Messages []model.Event            `json:"messages" yaml:"messages"`
	Status   frontier.StabilityStatus `json:"stability" yaml:"stability"`
}

func newSyncCommand(a *app) *cobra.Command {
	var (
		at            string
		requireStable bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Heartbeat, receive and check stability in one step",
		Long: `Sync ticks the node's clock, receives pending messages, then reports
whether an event at --at (default: the node's stamp before this sync) is
stable: every other active node's clock has reached it.`,
		Args: cobra.NoArgs,
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
			c, err := a.loadClock(ctx, s, node)
			if err != nil {
				return err
			}
			check := c.Stamp()
			if at != "" {
				if check, err = hlc.ParseStamp(at); err != nil {
					return commandError("--at", err)
				}
			}

			var ticked hlc.Clock
			c, msgs, err := a.receive(ctx, s, node, func(c hlc.Clock) hlc.Clock {
				ticked = c.Tick()
				return ticked
			}, 100)
			if err != nil {
				return err
			}
			if _, err := s.InsertEvent(ctx, &model.Event{NodeID: node, Stamp: ticked.Stamp(), Kind: model.EventTick}); err != nil {
				return commandError("sync", err)
			}

			active, err := s.GetActiveStamps(ctx, a.cfg.ActiveWindow)
			if err != nil {
				return commandError("active nodes", err)
			}
			res := syncResult{
				Node:     node,
				Stamp:    c.Stamp(),
				At:       check,
				Messages: msgs,
				Status:   frontier.ComputeStability(node, check, active),
			}
			if res.Messages == nil {
				res.Messages = []model.Event{}
			}
			if err := a.emit(res, func(w io.Writer) { printSync(w, res) }); err != nil {
				return err
			}
			if requireStable && !res.Status.Stable {
				return failure(fmt.Sprintf("%s is not stable", check), nil)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "stamp to check for stability (<ms>.<counter>)")
	cmd.Flags().BoolVar(&requireStable, "require-stable", false, "exit 1 if the stamp is not stable")
	return cmd
}

func printSync(w io.Writer, res syncResult) {
	fmt.Fprintf(w, "%s clock=%s\n", res.Node, res.Stamp)
	for _, e := range res.Messages {
		fmt.Fprintf(w, "  [%s] %s: %s\n", e.Stamp, e.NodeID, e.Body)
	}
	if res.Status.Watermark != nil {
		fmt.Fprintf(w, "watermark: %s @ %s\n", res.Status.Watermark.NodeID, res.Status.Watermark.Stamp)
	}
	if res.Status.Stable {
		fmt.Fprintf(w, "%s: STABLE\n", res.At)
		return
	}
	fmt.Fprintf(w, "%s: NOT STABLE, waiting on:\n", res.At)
	for _, p := range res.Status.BlockedBy {
		fmt.Fprintf(w, "  %s @ %s\n", p.NodeID, p.Stamp)
	}
}
