package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tally/internal/certificate"
	"tally/internal/history"
	"tally/internal/render"
	"tally/internal/session"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse archived audits",
	}
	cmd.AddCommand(newHistoryListCommand(ctx))
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audits, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := openExistingHistory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			audits, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				if audits == nil {
					audits = []history.Summary{}
				}
				return writeJSON(cmd, audits)
			}

			out := cmd.OutOrStdout()
			if len(audits) == 0 {
				fmt.Fprintln(out, "No audits recorded")
				return nil
			}
			rows := make([][]string, 0, len(audits))
			for _, a := range audits {
				verdict := "PASS"
				if a.Discrepancy {
					verdict = "FAIL"
				}
				rows = append(rows, []string{
					render.ShortID(a.ID),
					a.CreatedAt.Local().Format("2006-01-02 15:04"),
					a.LedgerName,
					a.VideoName,
					string(a.RiskLevel),
					verdict,
					strconv.Itoa(a.Mismatches),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Created", "Ledger", "Video", "Risk", "Verdict", "Mismatches"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of audits to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var certPath string

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show an archived audit report",
		Long:  "Show an archived audit report. ID may be the full audit ID or a unique prefix of at least eight characters.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := openExistingHistory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			entry, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, history.ErrNotFound) {
					return fmt.Errorf("audit %s not found", args[0])
				}
				return err
			}

			var exported string
			if certPath != "" {
				logger, err := ctx.logger(cfg)
				if err != nil {
					return err
				}
				exported = resolveCertificatePath(certPath, cfg.Paths.CertificateDir, entry.ID)
				meta := certificate.Meta{
					AuditID:    entry.ID,
					IssuedAt:   entry.FinishedAt,
					LedgerName: entry.LedgerName,
					VideoName:  entry.VideoName,
				}
				exporter := certificate.NewExporter(cfg, certificate.WithLogger(logger))
				if err := exporter.Export(cmd.Context(), entry.Result, meta, exported); err != nil {
					return fmt.Errorf("export certificate: %w", err)
				}
			}

			if jsonOutput {
				return writeJSON(cmd, entry)
			}
			out := cmd.OutOrStdout()
			view := render.View{
				AuditID:     entry.ID,
				Status:      session.StatusComplete,
				LedgerName:  entry.LedgerName,
				LedgerRows:  entry.LedgerRows,
				VideoName:   entry.VideoName,
				Result:      entry.Result,
				GeneratedAt: entry.FinishedAt,
			}
			if err := render.Terminal(out, view, render.TerminalOptions{Colorize: render.ShouldColorize(out), HideLogs: true}); err != nil {
				return err
			}
			if exported != "" {
				fmt.Fprintf(out, "\nCertificate written to %s\n", exported)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&certPath, "certificate", "", "Export a certificate for this audit (.pdf or .html); without a value writes a PDF to certificate_dir")
	cmd.Flags().Lookup("certificate").NoOptDefVal = autoCertificate
	return cmd
}
