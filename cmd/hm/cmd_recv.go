package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/model"
)

type recvResult struct {
	Node     string        `json:"node" yaml:"node"`
	Stamp    hlc.Stamp     `json:"stamp" yaml:"stamp"`
	Messages []model.Event `json:"messages" yaml:"messages"`
}

func newRecvCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Receive pending messages and merge their stamps",
		Long: `Recv consumes every message addressed to the node since its last recv,
merging each sender's stamp into the node's clock in log order.`,
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
			c, msgs, err := a.receive(ctx, s, node, nil, limit)
			if err != nil {
				return err
			}

			res := recvResult{Node: node, Stamp: c.Stamp(), Messages: msgs}
			if res.Messages == nil {
				res.Messages = []model.Event{}
			}
			return a.emit(res, func(w io.Writer) {
				if len(msgs) == 0 {
					fmt.Fprintln(w, "no new messages")
					return
				}
				for _, e := range msgs {
					fmt.Fprintf(w, "[%s] %s -> %s: %s\n", e.Stamp, e.NodeID, e.Target, e.Body)
				}
				fmt.Fprintf(w, "clock now %s\n", c.Stamp())
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "max messages to receive")
	return cmd
}
