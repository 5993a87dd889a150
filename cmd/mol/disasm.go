package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/mol/pkg/bytecode"
)

func newDisasmCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <program.mb | ->",
		Short: "Print a readable listing of a bytecode program",
		Long: `Print a readable listing of a bytecode program.

With "-" the program is read from stdin, so the output of
"mol compile src.mol -" can be piped straight in.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "-" {
				prog, err := bytecode.ReadProgram(cmd.InOrStdin())
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), prog.Disassemble(nil))
				return nil
			}

			prog, err := bytecode.LoadFile(args[0])
			if err != nil {
				return err
			}
			dbg, err := bytecode.LoadDebugInfo(args[0])
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: ignoring debug info: %v\n", err)
				dbg = nil
			}
			fmt.Fprint(cmd.OutOrStdout(), prog.Disassemble(dbg))
			return nil
		},
	}
}
