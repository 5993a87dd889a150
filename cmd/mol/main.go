// mol CLI - assembles and runs mol stack bytecode programs
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	"github.com/tliron/commonlog/simple"
	"github.com/tliron/kutil/util"

	"github.com/chazu/mol/manifest"
)

// exitError carries a process exit status through cobra. The message has
// already been written when it is returned.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// cli holds the global flags and the configuration resolved from them.
type cli struct {
	verbosity  int
	logFile    string
	configPath string

	cfg *manifest.Manifest
}

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "mol",
		Short: "Assembler and virtual machine for mol stack bytecode",
		Long: `mol assembles .mol source into compact stack bytecode and runs it.

Examples:
  mol compile hello.mol hello.mb     # assemble
  mol run hello.mb                   # execute
  mol disasm hello.mb                # list instructions
  mol lsp                            # language server on stdio`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.CountVarP(&c.verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	flags.StringVar(&c.logFile, "log", "", "write logs to this file instead of stderr")
	flags.StringVar(&c.configPath, "config", "", "path to mol.toml (default: search upwards from the working directory)")

	root.AddCommand(
		newCompileCmd(c),
		newRunCmd(c),
		newDisasmCmd(c),
		newRunsCmd(c),
		newLSPCmd(c),
	)
	return root
}

// setup loads the configuration and configures logging. Flags win over
// mol.toml values.
func (c *cli) setup(cmd *cobra.Command) error {
	stderr := cmd.ErrOrStderr()

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	c.cfg = cfg

	for _, key := range cfg.Unknown {
		fmt.Fprintf(stderr, "warning: unknown configuration key %q\n", key)
	}

	verbosity := cfg.Log.Verbosity
	if c.verbosity > 0 {
		verbosity = c.verbosity
	}
	// Trace lines are logged at debug level.
	if tracing(cmd, cfg) {
		verbosity = max(verbosity, 2)
	}
	logPath := cfg.LogPath()
	if c.logFile != "" {
		logPath = c.logFile
	}
	return configureLogging(verbosity, logPath, stderr)
}

// tracing reports whether the command will run with --trace, from the flag
// or from mol.toml.
func tracing(cmd *cobra.Command, cfg *manifest.Manifest) bool {
	f := cmd.Flags().Lookup("trace")
	if f == nil {
		return false
	}
	if f.Changed {
		return f.Value.String() == "true"
	}
	return cfg.VM.Trace
}

// configureLogging installs a fresh unbuffered backend. The default simple
// backend queues lines that are only flushed by util.Exit, so a normal
// return would drop them.
func configureLogging(verbosity int, path string, stderr io.Writer) error {
	backend := simple.NewBackend()
	backend.Buffered = false
	commonlog.SetBackend(backend)

	if path == "" {
		commonlog.Configure(verbosity, nil)
		if verbosity > -4 {
			backend.Writer = util.NewSyncedWriter(stderr)
		}
		return nil
	}

	// The backend exits the process on open failure; report it as an error instead.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, simple.LOG_FILE_WRITE_PERMISSIONS)
	if err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	f.Close()
	commonlog.Configure(verbosity, &path)
	return nil
}

func (c *cli) loadConfig() (*manifest.Manifest, error) {
	if c.configPath != "" {
		return manifest.LoadFile(c.configPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := manifest.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = manifest.Default()
	}
	return cfg, nil
}
