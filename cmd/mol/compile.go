package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/mol/compiler"
	"github.com/chazu/mol/pkg/bytecode"
)

func newCompileCmd(c *cli) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "compile <source.mol> <output.mb | ->",
		Short: "Assemble a source file into bytecode",
		Long: `Assemble a source file into bytecode.

Nothing is written when assembly fails. With --debug a CBOR sidecar
<output>.dbg holding labels and source positions is written next to the
program; disasm and run pick it up automatically. An output of "-"
writes the program to stdout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("debug") && args[1] != "-" {
				debug = c.cfg.Compile.DebugInfo
			}
			return c.compile(cmd, args[0], args[1], debug)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "also write <output>.dbg with labels and source positions")
	return cmd
}

func (c *cli) compileOptions() compiler.Options {
	return compiler.Options{
		MaxLabels:   c.cfg.Compile.MaxLabels,
		MaxPatches:  c.cfg.Compile.MaxPatches,
		MaxCodeSize: c.cfg.Compile.MaxCodeSize,
	}
}

func (c *cli) compile(cmd *cobra.Command, src, out string, debug bool) error {
	stderr := cmd.ErrOrStderr()

	res, err := compiler.AssembleFile(src, c.compileOptions())
	if err != nil {
		fmt.Fprintf(stderr, "compile error: %v\n", err)
		return &exitError{code: 1}
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(stderr, "%s:%s: warning: %s\n", src, w.Pos, w.Message)
	}

	if out == "-" {
		if debug {
			return errors.New("--debug needs an output file, not -")
		}
		if _, err := res.Program.WriteTo(cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("writing program: %w", err)
		}
		fmt.Fprintf(stderr, "compiled %s (%d bytes)\n", src, res.Program.Len())
		return nil
	}

	if err := res.Program.SaveFile(out); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	if debug {
		if err := bytecode.SaveDebugInfo(out, res.Debug); err != nil {
			return fmt.Errorf("writing debug info for %s: %w", out, err)
		}
	} else if err := os.Remove(out + bytecode.DebugSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		// A stale sidecar would mislabel the new program.
		return fmt.Errorf("removing stale debug info for %s: %w", out, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "compiled %s -> %s (%d bytes)\n", src, out, res.Program.Len())
	return nil
}
