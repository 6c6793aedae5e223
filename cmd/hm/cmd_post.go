package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/daviddao/hlcmail/pkg/api"
	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/model"
	"github.com/daviddao/hlcmail/pkg/wire"
)

const postTimeout = 10 * time.Second

type postResult struct {
	From    string    `json:"from" yaml:"from"`
	To      string    `json:"to" yaml:"to"`
	MsgID   string    `json:"msg_id" yaml:"msg_id"`
	EventID int64     `json:"event_id" yaml:"event_id"`
	Stamp   hlc.Stamp `json:"stamp" yaml:"stamp"`
	Remote  hlc.Stamp `json:"remote" yaml:"remote"`
}

func newPostCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "post <to> <message...>",
		Short: "Deliver a message to a node served by \"hm serve\"",
		Long: `Post ticks the sender's clock and delivers the message straight to the
recipient's clock server as a binary envelope. The server observes the
envelope immediately; no "hm recv" is needed on the other side. The
message is also recorded in the local log.`,
		Example: `  hm post bob "deploy finished" --addr 10.0.0.7:7474`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			node, err := a.resolveNode()
			if err != nil {
				return err
			}
			to := strings.TrimSpace(args[0])
			if to == "" {
				return commandError("post: no recipient", nil)
			}
			body := strings.Join(args[1:], " ")
			if addr == "" {
				addr = a.cfg.Addr
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			c, err := a.advance(ctx, s, node, hlc.Clock.Tick)
			if err != nil {
				return err
			}
			env, err := wire.NewEnvelope(node, to, c.Stamp(), []byte(body))
			if err != nil {
				return commandError("post", err)
			}
			remote, err := a.deliver(ctx, addr, env)
			if err != nil {
				return err
			}

			e := &model.Event{
				MsgID:  env.ID.String(),
				NodeID: node,
				Stamp:  env.Stamp,
				Kind:   model.EventMsg,
				Target: to,
				Body:   body,
			}
			id, err := s.InsertEvent(ctx, e)
			if err != nil {
				return commandError("record post", err)
			}
			a.log.Debug("message posted", "from", node, "to", to, "msg_id", e.MsgID, "stamp", e.Stamp, "remote", remote)

			res := postResult{From: node, To: to, MsgID: e.MsgID, EventID: id, Stamp: e.Stamp, Remote: remote}
			return a.emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "posted to %s @ %s, %s now at %s (id=%d)\n", to, res.Stamp, to, res.Remote, id)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "recipient's clock server (overrides HLCMAIL_ADDR)")
	return cmd
}

// deliver posts env to the clock server at addr and returns the stamp the
// recipient reached by observing it.
func (a *app) deliver(ctx context.Context, addr string, env *wire.Envelope) (hlc.Stamp, error) {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(base, "/")+"/v1/clock/observe", bytes.NewReader(env.Marshal()))
	if err != nil {
		return hlc.Stamp{}, commandError("post", err)
	}
	req.Header.Set("Content-Type", wire.ContentType)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return hlc.Stamp{}, commandError("post", err)
	}
	defer resp.Body.Close()

	var res api.Response
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return hlc.Stamp{}, commandError(fmt.Sprintf("post: %s returned %s", addr, resp.Status), err)
	}
	if resp.StatusCode != http.StatusOK {
		return hlc.Stamp{}, commandError(fmt.Sprintf("post: %s returned %s: %s", addr, resp.Status, res.Error), nil)
	}
	if res.Stamp == nil {
		return hlc.Stamp{}, commandError(fmt.Sprintf("post: %s returned no stamp", addr), nil)
	}
	if res.MsgID != env.ID.String() {
		return hlc.Stamp{}, commandError(fmt.Sprintf("post: %s acknowledged %q, sent %q", addr, res.MsgID, env.ID), nil)
	}
	return *res.Stamp, nil
}
