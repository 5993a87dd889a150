package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chazu/mol/journal"
)

func newRunsCmd(c *cli) *cobra.Command {
	var (
		limit       int
		journalPath string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("journal") {
				journalPath = c.cfg.JournalPath()
			}
			if journalPath == "" {
				return errors.New("no journal configured: pass --journal or set [journal] path in mol.toml")
			}

			j, err := journal.Open(journalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.List(limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tPROGRAM\tSTATUS\tSTEPS\tDURATION\tFAULT")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					e.ID.String()[:8],
					e.Started.Local().Format("2006-01-02 15:04:05"),
					e.Program,
					e.Status,
					e.Steps,
					e.Duration(),
					e.Fault,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show (0 for all)")
	cmd.Flags().StringVar(&journalPath, "journal", "", "journal database (default: [journal] path from mol.toml)")
	return cmd
}
