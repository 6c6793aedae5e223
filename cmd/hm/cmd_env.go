package main

import (
	"github.com/spf13/cobra"

	"github.com/daviddao/hlcmail/pkg/config"
)

func newEnvCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables hm reads, with defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Usage(a.out)
		},
	}
}
