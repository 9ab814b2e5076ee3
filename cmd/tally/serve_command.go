package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tally/internal/certificate"
	"tally/internal/logging"
	"tally/internal/preflight"
	"tally/internal/server"
	"tally/internal/staging"
)

// staleWorkDirAge is how old a session work directory must be before the
// daemon removes it at start. CLI audits may still be using newer ones.
const staleWorkDirAge = 6 * time.Hour

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the audit dashboard and HTTP API",
		Long: `Run the tally daemon in the foreground.

The daemon serves the dashboard at http://<api_bind>/ and the JSON API under
/api. Only one daemon may run per state directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx, cmd)
		},
	}
}

func runServe(cmdCtx context.Context, ctx *commandContext, cmd *cobra.Command) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("tally-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldFiles(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "tally-*.log", Exclude: []string{logPath}},
	)

	results := preflight.Run(signalCtx, cfg, preflight.Options{})
	for _, r := range preflight.Failures(results) {
		attrs := []logging.Attr{
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
		}
		if r.Optional {
			attrs = append(attrs, logging.String(logging.FieldImpact, "optional feature unavailable"))
		} else {
			attrs = append(attrs, logging.String(logging.FieldImpact, "audits will fail until this is fixed"))
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed", attrs...)
	}

	archive, err := openHistory(signalCtx, cfg)
	if err != nil {
		logger.Error("open history", logging.Error(err))
		return err
	}
	if archive != nil {
		defer archive.Close()
	}

	sess := newSession(cfg, logger, archive)
	defer sess.Close()

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithExporter(certificate.NewExporter(cfg, certificate.WithLogger(logger))),
	}
	if archive != nil {
		opts = append(opts, server.WithHistory(archive))
	}
	srv, err := server.New(cfg, sess, opts...)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := srv.Start(signalCtx); err != nil {
		return err
	}
	defer srv.Stop()
	staging.CleanStale(cfg.Paths.StagingDir, staleWorkDirAge, logger)

	fmt.Fprintf(cmd.OutOrStdout(), "tally dashboard listening on http://%s/\n", srv.Addr())
	if cfg.Paths.APIToken == "" {
		fmt.Fprintln(os.Stderr, "warn: paths.api_token is empty; the API accepts unauthenticated requests")
	}

	<-signalCtx.Done()
	logger.Info("tally daemon shutting down")
	return nil
}
