package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/chazu/mol/journal"
	"github.com/chazu/mol/pkg/bytecode"
	"github.com/chazu/mol/vm"
)

type runFlags struct {
	trace       bool
	strictExit  bool
	stackSize   int
	prompt      string
	journalPath string
}

func newRunCmd(c *cli) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <program.mb>",
		Short: "Execute a bytecode program",
		Long: `Execute a bytecode program.

INPUT reads lines from stdin and PRINT writes to stdout. A runtime fault
is reported on stderr; the exit status stays 0 unless --strict-exit is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.mergeRunFlags(cmd, f)
			return c.run(cmd, args[0], f)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&f.trace, "trace", false, "log every instruction at debug level")
	flags.BoolVar(&f.strictExit, "strict-exit", false, "exit with status 1 after a runtime fault")
	flags.IntVar(&f.stackSize, "stack-size", vm.DefaultStackSize, "operand stack capacity")
	flags.StringVar(&f.prompt, "prompt", vm.DefaultPrompt, "text written before each INPUT")
	flags.StringVar(&f.journalPath, "journal", "", "record the run in this SQLite database")
	return cmd
}

// mergeRunFlags fills every flag the user did not set from mol.toml.
func (c *cli) mergeRunFlags(cmd *cobra.Command, f *runFlags) {
	changed := cmd.Flags().Changed
	if !changed("trace") {
		f.trace = c.cfg.VM.Trace
	}
	if !changed("strict-exit") {
		f.strictExit = c.cfg.VM.StrictExit
	}
	if !changed("stack-size") {
		f.stackSize = c.cfg.VM.StackSize
	}
	if !changed("prompt") {
		f.prompt = c.cfg.VM.Prompt
	}
	if !changed("journal") {
		f.journalPath = c.cfg.JournalPath()
	}
}

func (c *cli) run(cmd *cobra.Command, path string, f *runFlags) error {
	prog, err := bytecode.LoadFile(path)
	if err != nil {
		return err
	}
	dbg, err := bytecode.LoadDebugInfo(path)
	if err != nil {
		// Source positions are a convenience; run without them.
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: ignoring debug info: %v\n", err)
		dbg = nil
	}

	m := vm.New(prog, cmd.InOrStdin(), cmd.OutOrStdout(), vm.Options{
		StackSize: f.stackSize,
		Prompt:    f.prompt,
		Trace:     f.trace,
		Debug:     dbg,
	})

	started := time.Now()
	outcome, runErr := m.Run()
	finished := time.Now()

	if runErr != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), runErr)
		logMachine(m)
	}

	if f.journalPath != "" {
		if err := record(f.journalPath, journal.NewEntry(path, prog.Code, outcome, started, finished)); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: journal: %v\n", err)
		}
	}

	if runErr != nil && f.strictExit {
		return &exitError{code: 1}
	}
	return nil
}

// logMachine logs the operand stack and every register that was set, for
// inspecting a fault with -vv.
func logMachine(m *vm.VM) {
	log := commonlog.GetLogger("mol.vm")

	values := m.Stack().Values()
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = describe(v)
	}
	log.Debugf("stack at fault: [%s]", strings.Join(parts, " "))

	for i := 0; i < bytecode.RegisterCount; i++ {
		if v := m.Register(i); v != nil && v != vm.Value(vm.Str("")) {
			log.Debugf("register %s = %s", bytecode.RegisterName(byte(i)), describe(v))
		}
	}
}

func describe(v vm.Value) string {
	if s, ok := v.(vm.Str); ok {
		return fmt.Sprintf("%q", string(s))
	}
	return v.String()
}

func record(path string, e journal.Entry) error {
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()
	_, err = j.Record(e)
	return err
}
