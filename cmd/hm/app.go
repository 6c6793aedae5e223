package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/daviddao/hlcmail/pkg/config"
	"github.com/daviddao/hlcmail/pkg/hlc"
	"github.com/daviddao/hlcmail/pkg/model"
	"github.com/daviddao/hlcmail/pkg/physical"
	"github.com/daviddao/hlcmail/pkg/store"
)

// Output formats accepted by --format.
var validFormats = []string{"text", "json", "yaml"}

// options holds the global flags.
type options struct {
	format  string
	verbose bool
	node    string
	db      string
}

// app holds shared state for all subcommands.
type app struct {
	opts   options
	cfg    config.Config
	log    *slog.Logger
	out    io.Writer
	errOut io.Writer

	// src is the local time source every loaded clock is bound to.
	src physical.Source
	// store is opened on first use; tests set it up front.
	store store.StoreInterface
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		out:    stdout,
		errOut: stderr,
		src:    physical.System(),
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// configure loads the environment and applies flag overrides.
func (a *app) configure() error {
	if !validFormat(a.opts.format) {
		return commandError(fmt.Sprintf("invalid format %q: must be one of %v", a.opts.format, validFormats), nil)
	}
	cfg, err := config.Load()
	if err != nil {
		return commandError("configuration", err)
	}
	if a.opts.db != "" {
		cfg.DB = a.opts.db
	}
	if a.opts.node != "" {
		cfg.Node = a.opts.node
	}
	if a.opts.verbose {
		cfg.LogLevel = "debug"
	}
	a.cfg = cfg
	a.log = cfg.Logger(a.errOut)
	return nil
}

// Close releases the database connection, if one was opened.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

// openStore opens the configured database on first call, creating its
// directory if needed.
func (a *app) openStore() (store.StoreInterface, error) {
	if a.store != nil {
		return a.store, nil
	}
	if dir := filepath.Dir(a.cfg.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, commandError("create database directory", err)
		}
	}
	s, err := store.New(a.cfg.DB)
	if err != nil {
		return nil, commandError(fmt.Sprintf("open database %q", a.cfg.DB), err)
	}
	a.log.Debug("database opened", "path", a.cfg.DB)
	a.store = s
	return s, nil
}

// resolveNode returns the node from --node or HLCMAIL_NODE.
func (a *app) resolveNode() (string, error) {
	if a.cfg.Node != "" {
		return a.cfg.Node, nil
	}
	return "", commandError("no node ID: pass --node or set HLCMAIL_NODE", nil)
}

// loadClock returns the node's persisted clock bound to the local source.
// An unknown node is registered at the start of time.
func (a *app) loadClock(ctx context.Context, s store.StoreInterface, node string) (hlc.Clock, error) {
	c, err := s.LoadClock(ctx, node, a.src)
	if errors.Is(err, store.ErrNotFound) {
		a.log.Debug("registering unknown node", "node", node)
		if _, err := s.RegisterNode(ctx, node); err != nil {
			return hlc.Clock{}, commandError("register node", err)
		}
		return hlc.StartOfTime(a.src), nil
	}
	if err != nil {
		return hlc.Clock{}, commandError("load clock", err)
	}
	a.log.Debug("clock loaded", "node", node, "stamp", c.Stamp())
	return c, nil
}

// advance applies next to the node's stored clock in one compare-and-swap
// and returns the result. Concurrent processes on the same node each get a
// distinct stamp. An unknown node is registered at the start of time.
func (a *app) advance(ctx context.Context, s store.StoreInterface, node string, next func(hlc.Clock) hlc.Clock) (hlc.Clock, error) {
	c, err := s.TransitionClock(ctx, node, a.src, next)
	if errors.Is(err, store.ErrNotFound) {
		a.log.Debug("registering unknown node", "node", node)
		if _, err := s.RegisterNode(ctx, node); err != nil {
			return hlc.Clock{}, commandError("register node", err)
		}
		c, err = s.TransitionClock(ctx, node, a.src, next)
	}
	if err != nil {
		return hlc.Clock{}, commandError("advance clock", err)
	}
	return c, nil
}

// receive merges every pending message for node into its stored clock and
// advances the node's cursor past them. A non-nil before runs first, inside
// the same transition.
func (a *app) receive(ctx context.Context, s store.StoreInterface, node string, before func(hlc.Clock) hlc.Clock, limit int) (hlc.Clock, []model.Event, error) {
	msgs, err := s.ListEventsForNode(ctx, node, s.GetCursor(ctx, node), limit)
	if err != nil {
		return hlc.Clock{}, nil, commandError("receive", err)
	}
	if before == nil && len(msgs) == 0 {
		c, err := a.loadClock(ctx, s, node)
		return c, nil, err
	}
	c, err := a.advance(ctx, s, node, func(c hlc.Clock) hlc.Clock {
		if before != nil {
			c = before(c)
		}
		for _, e := range msgs {
			c = c.Observe(e.Stamp)
		}
		return c
	})
	if err != nil {
		return hlc.Clock{}, nil, err
	}
	if len(msgs) == 0 {
		return c, nil, nil
	}
	for _, e := range msgs {
		a.log.Debug("message merged", "node", node, "from", e.NodeID, "remote", e.Stamp)
	}
	if err := s.SetCursor(ctx, node, msgs[len(msgs)-1].ID); err != nil {
		return c, nil, commandError("advance cursor", err)
	}
	a.log.Debug("clock advanced", "node", node, "stamp", c.Stamp())
	return c, msgs, nil
}

// peekInbox returns pending messages without consuming them.
func (a *app) peekInbox(ctx context.Context, s store.StoreInterface, node string) []model.Event {
	msgs, err := s.ListEventsForNode(ctx, node, s.GetCursor(ctx, node), 100)
	if err != nil {
		return nil
	}
	return msgs
}

// printInbox lists messages on stderr so they stay out of stdout.
func (a *app) printInbox(msgs []model.Event) {
	if len(msgs) == 0 {
		return
	}
	fmt.Fprintf(a.errOut, "\n=== %d pending message(s) ===\n", len(msgs))
	for _, e := range msgs {
		fmt.Fprintf(a.errOut, "  [%s] %s: %s\n", e.Stamp, e.NodeID, truncate(e.Body, 120))
	}
	fmt.Fprintf(a.errOut, "============================\n\n")
}

// emit writes v as JSON or YAML, or calls text for the text format.
func (a *app) emit(v any, text func(w io.Writer)) error {
	switch a.opts.format {
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(a.out)
		return nil
	}
}

func validFormat(f string) bool {
	for _, v := range validFormats {
		if v == f {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hm",
		Short: "hlcmail - causal messaging ordered by hybrid logical clocks",
		Long: `hlcmail coordinates processes on one host through a shared SQLite event log.

Every node keeps a hybrid logical clock: local events tick it, received
messages merge the sender's stamp into it. Stamps read as "<ms>.<counter>"
and order the whole log causally while staying close to wall-clock time.

Environment:
  HLCMAIL_DB             database path (default .hlcmail/hlcmail.db)
  HLCMAIL_NODE           default node ID
  HLCMAIL_ADDR           listen address for "hm serve" (default 127.0.0.1:7474)
  HLCMAIL_LOG_LEVEL      debug, info, warn or error (default info)
  HLCMAIL_ACTIVE_WINDOW  how recently a node must be seen to count as active (default 10m)

Exit codes:
  0  success
  1  check failed (scenario expectation, unstable event with --require-stable)
  2  command error`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configure()
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.opts.format, "format", "text", "output format (text|json|yaml)")
	f.BoolVarP(&a.opts.verbose, "verbose", "v", false, "debug logging on stderr")
	f.StringVar(&a.opts.node, "node", "", "node ID (overrides HLCMAIL_NODE)")
	f.StringVar(&a.opts.db, "db", "", "database path (overrides HLCMAIL_DB)")

	cmd.AddCommand(
		newRegisterCommand(a),
		newTickCommand(a),
		newSendCommand(a),
		newRecvCommand(a),
		newSyncCommand(a),
		newLogCommand(a),
		newStatusCommand(a),
		newCompareCommand(a),
		newMergeCommand(a),
		newReplayCommand(a),
		newServeCommand(a),
		newPostCommand(a),
		newEnvCommand(a),
	)
	return cmd
}
