package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/daviddao/hlcmail/pkg/frontier"
	"github.com/daviddao/hlcmail/pkg/model"
)

type nodeInfo struct {
	model.Node `yaml:",inline"`
	Presence   string `json:"presence" yaml:"presence"`
}

type statusResult struct {
	Nodes     []nodeInfo                `json:"nodes" yaml:"nodes"`
	Watermark *model.NodeStamp          `json:"watermark,omitempty" yaml:"watermark,omitempty"`
	Mine      *frontier.StabilityStatus `json:"my_status,omitempty" yaml:"my_status,omitempty"`
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show nodes, their clocks and the stability watermark",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore()
			if err != nil {
				return err
			}
			nodes, err := s.ListNodes(ctx)
			if err != nil {
				return commandError("status", err)
			}
			active, err := s.GetActiveStamps(ctx, a.cfg.ActiveWindow)
			if err != nil {
				return commandError("status", err)
			}

			now := a.src.Now()
			res := statusResult{Nodes: make([]nodeInfo, len(nodes))}
			for i, n := range nodes {
				res.Nodes[i] = nodeInfo{Node: n, Presence: presence(now.Sub(n.LastSeen), a.cfg.ActiveWindow)}
			}
			if w, ok := frontier.ComputeWatermark(active); ok {
				res.Watermark = &w
			}
			// Status works without a node; with one it adds the node's own view.
			me := a.cfg.Node
			for _, n := range nodes {
				if n.ID == me {
					st := frontier.ComputeStability(me, n.Stamp, active)
					res.Mine = &st
				}
			}

			return a.emit(res, func(w io.Writer) {
				fmt.Fprintln(w, "nodes:")
				for _, n := range res.Nodes {
					marker := ""
					if n.ID == me {
						marker = " <-- you"
					}
					fmt.Fprintf(w, "  %s %-20s clock=%-18s last_seen=%s%s\n",
						presenceIndicator(n.Presence), n.ID, n.Stamp, n.LastSeen.Format("15:04:05"), marker)
				}
				if res.Watermark != nil {
					fmt.Fprintf(w, "watermark: %s @ %s\n", res.Watermark.NodeID, res.Watermark.Stamp)
				} else {
					fmt.Fprintln(w, "watermark: none (no active nodes)")
				}
				if res.Mine != nil {
					verdict := "STABLE"
					if !res.Mine.Stable {
						verdict = fmt.Sprintf("NOT STABLE (%d behind)", len(res.Mine.BlockedBy))
					}
					fmt.Fprintf(w, "you (%s): %s\n", me, verdict)
				}
			})
		},
	}
}

// presence classifies how long ago a node was seen: online within two
// minutes, idle within the active window, offline after.
func presence(since, window time.Duration) string {
	switch {
	case since < 2*time.Minute:
		return "online"
	case since < window:
		return "idle"
	default:
		return "offline"
	}
}

func presenceIndicator(p string) string {
	switch p {
	case "online":
		return "[+]"
	case "idle":
		return "[~]"
	default:
		return "[-]"
	}
}
