package main

import (
	"github.com/spf13/cobra"

	"github.com/chazu/mol/server"
)

func newLSPCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Run the language server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.NewLSP(c.compileOptions()).Run()
		},
	}
}
