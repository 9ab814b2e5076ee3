package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"tally/internal/ledger"
	"tally/internal/services"
)

type ledgerInspection struct {
	File      string       `json:"file"`
	Delimiter string       `json:"delimiter"`
	Columns   []string     `json:"columns"`
	Rows      int          `json:"rows"`
	Excerpt   []ledger.Row `json:"excerpt"`
}

func newLedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "ledger",
		Short:       "Inspect inventory ledgers",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}
	cmd.AddCommand(newLedgerInspectCommand())
	return cmd
}

func newLedgerInspectCommand() *cobra.Command {
	var rows int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the columns and first rows of a ledger as the auditor sees them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return services.Wrap(services.ErrInput, "ledger", "open", "cannot read ledger file", err)
			}
			defer f.Close()

			l, err := ledger.Parse(f)
			if err != nil {
				return err
			}
			if rows <= 0 {
				rows = 12
			}
			head := l.Head(rows)

			if jsonOutput {
				return writeJSON(cmd, ledgerInspection{
					File:      args[0],
					Delimiter: delimiterName(l.Delimiter()),
					Columns:   l.Columns(),
					Rows:      l.Len(),
					Excerpt:   head,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d rows, %s-delimited\n", args[0], l.Len(), delimiterName(l.Delimiter()))
			columns := l.Columns()
			headers := append([]string{"#"}, columns...)
			aligns := []columnAlignment{alignRight}
			table := make([][]string, 0, len(head))
			for i, row := range head {
				line := []string{strconv.Itoa(i + 1)}
				for _, col := range columns {
					line = append(line, row[col])
				}
				table = append(table, line)
			}
			fmt.Fprintln(out, renderTable(headers, table, aligns))
			if l.Len() > len(head) {
				fmt.Fprintf(out, "(%d more rows not sent to the auditor)\n", l.Len()-len(head))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 12, "Number of rows to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func delimiterName(r rune) string {
	switch r {
	case '\t':
		return "tab"
	case ';':
		return "semicolon"
	case '|':
		return "pipe"
	default:
		return "comma"
	}
}
