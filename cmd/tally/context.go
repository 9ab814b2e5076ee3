package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tally/internal/audit"
	"tally/internal/config"
	"tally/internal/frames"
	"tally/internal/history"
	"tally/internal/logging"
	"tally/internal/services/llm"
	"tally/internal/session"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// logger writes to tally.log, and to stderr as well with --verbose, so the
// report on stdout stays clean.
func (c *commandContext) logger(cfg *config.Config) (*slog.Logger, error) {
	outputs := []string{logging.LogFilePath(cfg)}
	if c.verbose != nil && *c.verbose {
		outputs = append(outputs, "stderr")
	}
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// openHistory opens the archive when history is enabled. A nil store with a
// nil error means history is off.
func openHistory(ctx context.Context, cfg *config.Config) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.Open(ctx, cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

// openExistingHistory opens the archive for reading even when recording is
// disabled, as long as a database exists.
func openExistingHistory(ctx context.Context, cfg *config.Config) (*history.Store, error) {
	if !cfg.History.Enabled {
		if _, err := os.Stat(cfg.HistoryPath()); errors.Is(err, os.ErrNotExist) {
			return nil, errors.New("history is disabled; set history.enabled = true in the config to record audits")
		}
	}
	store, err := history.Open(ctx, cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

// newSubmitter builds the audit client. A failed audit is reported, never
// retried, so the client makes exactly one attempt.
func newSubmitter(cfg *config.Config, logger *slog.Logger) *audit.LLMSubmitter {
	settings := cfg.GetLLM()
	client := llm.NewClient(llm.Config{
		APIKey:         settings.APIKey,
		BaseURL:        settings.BaseURL,
		Model:          settings.Model,
		Referer:        settings.Referer,
		Title:          settings.Title,
		TimeoutSeconds: settings.TimeoutSeconds,
	}, llm.WithRetryMaxAttempts(1))
	return audit.NewLLMSubmitter(client, logging.NewComponentLogger(logger, "audit"))
}

func newSession(cfg *config.Config, logger *slog.Logger, archive *history.Store) *session.Session {
	opts := session.Options{
		Opener:      frames.NewFFmpegOpener(cfg),
		Submitter:   newSubmitter(cfg, logger),
		ExcerptRows: cfg.Audit.ExcerptRows,
		StagingDir:  cfg.Paths.StagingDir,
		Logger:      logger,
	}
	if archive != nil {
		opts.Archive = archive
	}
	return session.New(opts)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
