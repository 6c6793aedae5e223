package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daviddao/hlcmail/pkg/api"
	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/store"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the node's clock over HTTP",
		Long: `Serve exposes the node's clock to processes that cannot open the shared
database. Every tick and observe is applied to the node's row in the
database, so CLI commands running alongside the server and HTTP clients
advance one clock and never see the same stamp twice.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := a.resolveNode()
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			srv, err := a.clockServer(cmd.Context(), s, node)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				return commandError("serve", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HLCMAIL_ADDR)")
	return cmd
}

// clockServer returns a server for node backed by its stored clock. The
// in-memory holder only caches the last stamp the server saw.
func (a *app) clockServer(ctx context.Context, s store.StoreInterface, node string) (*api.Server, error) {
	c, err := a.loadClock(ctx, s, node)
	if err != nil {
		return nil, err
	}
	return api.New(node, hlc.NewHolder(c),
		api.WithLogger(a.log),
		api.WithLoad(func(ctx context.Context) (hlc.Stamp, error) {
			n, err := s.GetNode(ctx, node)
			if err != nil {
				return hlc.Stamp{}, err
			}
			return n.Stamp, nil
		}),
		api.WithTransition(func(ctx context.Context, next func(hlc.Clock) hlc.Clock) (hlc.Clock, error) {
			return s.TransitionClock(ctx, node, a.src, next)
		}),
	), nil
}
