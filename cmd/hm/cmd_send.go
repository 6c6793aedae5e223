package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/model"
)

type sentMessage struct {
	EventID int64  `json:"event_id" yaml:"event_id"`
	MsgID   string `json:"msg_id" yaml:"msg_id"`
	To      string `json:"to" yaml:"to"`
}

type sendResult struct {
	From     string        `json:"from" yaml:"from"`
	Stamp    hlc.Stamp     `json:"stamp" yaml:"stamp"`
	Messages []sentMessage `json:"messages" yaml:"messages"`
}

func newSendCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <to[,to...]> <message...>",
		Short: "Send a message stamped with the node's clock",
		Long: `Send ticks the sender's clock once and writes one message per recipient,
all carrying the same stamp. Recipients pick it up with "hm recv".`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			node, err := a.resolveNode()
			if err != nil {
				return err
			}
			var targets []string
			for _, t := range strings.Split(args[0], ",") {
				if t = strings.TrimSpace(t); t != "" {
					targets = append(targets, t)
				}
			}
			if len(targets) == 0 {
				return commandError("send: no recipient", nil)
			}
			body := strings.Join(args[1:], " ")

			s, err := a.openStore()
			if err != nil {
				return err
			}
			c, err := a.advance(ctx, s, node, hlc.Clock.Tick)
			if err != nil {
				return err
			}

			res := sendResult{From: node, Stamp: c.Stamp()}
			for _, to := range targets {
				msgID, err := uuid.NewV7()
				if err != nil {
					return commandError("send", err)
				}
				e := &model.Event{
					MsgID:  msgID.String(),
					NodeID: node,
					Stamp:  c.Stamp(),
					Kind:   model.EventMsg,
					Target: to,
					Body:   body,
				}
				id, err := s.InsertEvent(ctx, e)
				if err != nil {
					return commandError("send", err)
				}
				a.log.Debug("message sent", "from", node, "to", to, "msg_id", e.MsgID, "stamp", e.Stamp)
				res.Messages = append(res.Messages, sentMessage{EventID: id, MsgID: e.MsgID, To: to})
			}

			if err := a.emit(res, func(w io.Writer) {
				for _, m := range res.Messages {
					fmt.Fprintf(w, "sent to %s @ %s (id=%d)\n", m.To, res.Stamp, m.EventID)
				}
			}); err != nil {
				return err
			}
			a.printInbox(a.peekInbox(ctx, s, node))
			return nil
		},
	}
}
