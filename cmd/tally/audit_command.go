package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tally/internal/certificate"
	"tally/internal/logging"
	"tally/internal/render"
	"tally/internal/services"
	"tally/internal/session"
)

const autoCertificate = "auto"

type auditOutput struct {
	session.Snapshot
	Certificate string `json:"certificate,omitempty"`
}

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var ledgerPath string
	var videoPath string
	var certPath string
	var jsonOutput bool
	var hideLogs bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run one audit and print the report",
		Long: `Run one audit of a ledger against a walkthrough video.

Three frames are sampled at 10%, 50% and 90% of the video, sent with a
ledger excerpt to the reasoning service, and the verdict is printed as a
report. Use --certificate to also export a certificate (.pdf or .html).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(ledgerPath) == "" {
				return fmt.Errorf("--ledger is required")
			}
			if strings.TrimSpace(videoPath) == "" {
				return fmt.Errorf("--video is required")
			}
			if err := cfg.RequireAPIKey(); err != nil {
				return err
			}

			logger, err := ctx.logger(cfg)
			if err != nil {
				return err
			}
			archive, err := openHistory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if archive != nil {
				defer archive.Close()
			}

			sess := newSession(cfg, logger, archive)
			defer sess.Close()

			if err := loadLedgerFile(sess, ledgerPath); err != nil {
				return err
			}
			if err := sess.UseVideo(videoPath); err != nil {
				return err
			}

			result, runErr := sess.Run(cmd.Context())
			snap := sess.Snapshot()

			var exported string
			if runErr == nil && certPath != "" {
				exported = resolveCertificatePath(certPath, cfg.Paths.CertificateDir, snap.AuditID)
				meta := certificate.Meta{
					AuditID:    snap.AuditID,
					LedgerName: snap.LedgerName,
					VideoName:  snap.VideoName,
				}
				if snap.FinishedAt != nil {
					meta.IssuedAt = *snap.FinishedAt
				}
				exporter := certificate.NewExporter(cfg, certificate.WithLogger(logger))
				if err := exporter.Export(cmd.Context(), result, meta, exported); err != nil {
					logging.ErrorWithContext(logger, "certificate export failed", "certificate_export_failed",
						logging.String(logging.FieldAuditID, snap.AuditID),
						logging.Error(err),
					)
					return fmt.Errorf("export certificate: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := writeJSON(cmd, auditOutput{Snapshot: snap, Certificate: exported}); err != nil {
					return err
				}
			} else {
				view := render.FromSnapshot(snap, sess.Logs())
				opts := render.TerminalOptions{Colorize: render.ShouldColorize(out), HideLogs: hideLogs}
				if err := render.Terminal(out, view, opts); err != nil {
					return err
				}
				if exported != "" {
					fmt.Fprintf(out, "\nCertificate written to %s\n", exported)
				}
			}
			if runErr != nil {
				return auditFailure(runErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&ledgerPath, "ledger", "l", "", "Ledger file (CSV or TSV)")
	cmd.Flags().StringVarP(&videoPath, "video", "V", "", "Walkthrough video file")
	cmd.Flags().StringVar(&certPath, "certificate", "", "Export a certificate to this path (.pdf or .html); without a value writes a PDF to certificate_dir")
	cmd.Flags().Lookup("certificate").NoOptDefVal = autoCertificate
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the audit state as JSON")
	cmd.Flags().BoolVar(&hideLogs, "no-log", false, "Omit the pipeline log from the report")
	return cmd
}

func loadLedgerFile(sess *session.Session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return services.Wrap(services.ErrInput, "ledger", "open", "cannot read ledger file", err)
	}
	defer f.Close()
	_, err = sess.LoadLedger(filepath.Base(path), f)
	return err
}

// resolveCertificatePath maps the "auto" flag value to a file in the
// certificate directory.
func resolveCertificatePath(flagValue, dir, auditID string) string {
	if flagValue == autoCertificate {
		return filepath.Join(dir, certificate.DefaultFileName(auditID, certificate.FormatPDF))
	}
	return flagValue
}

func auditFailure(err error) error {
	return fmt.Errorf("audit failed (%s): %w", services.Kind(err), err)
}
