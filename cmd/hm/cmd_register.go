package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/daviddao/hlcmail/pkg/config"
	"github.com/daviddao/hlcmail/pkg/model"
)

func newRegisterCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register <node>",
		Short: "Register a node, or refresh its last-seen time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			n, err := s.RegisterNode(cmd.Context(), args[0])
			if err != nil {
				return commandError("register", err)
			}
			a.log.Info("node registered", "node", n.ID, "stamp", n.Stamp)
			if a.cfg.Node != n.ID {
				fmt.Fprintf(a.errOut, "hint: export %s_NODE=%s\n", config.Prefix, n.ID)
			}
			return a.emit(n, func(w io.Writer) { printNode(w, n) })
		},
	}
}

func printNode(w io.Writer, n *model.Node) {
	fmt.Fprintf(w, "node %s clock=%s registered=%s\n", n.ID, n.Stamp, n.Registered.Format("2006-01-02 15:04:05"))
}
