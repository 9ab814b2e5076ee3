package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tally/internal/config"
	"tally/internal/deps"
	"tally/internal/render"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample tally.toml with audit and sampling defaults",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveInitPath(targetPath)
			if err != nil {
				return err
			}
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			// read the sample back so the summary shows what an audit will use
			cfg, _, _, err := config.Load(target)
			if err != nil {
				return fmt.Errorf("load sample config: %w", err)
			}
			out := cmd.OutOrStdout()
			colorize := render.ShouldColorize(out)
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			for _, line := range auditSettingsLines(cfg, colorize) {
				fmt.Fprintln(out, line)
			}
			if cfg.RequireAPIKey() != nil {
				fmt.Fprintln(out, "Next: set llm.api_key (or export TALLY_API_KEY, or add it to a .env file), then run `tally status`.")
			} else {
				fmt.Fprintln(out, "Next: run `tally status` to check ffmpeg, ffprobe and the reasoning service.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func resolveInitPath(flagValue string) (string, error) {
	target := strings.TrimSpace(flagValue)
	if target == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return path, nil
	}
	path, err := config.ExpandPath(target)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return path, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate the configuration and report the tools it points at",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(strings.TrimSpace(*ctx.configFlag))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			colorize := render.ShouldColorize(out)
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}

			lines := auditSettingsLines(cfg, colorize)
			lines = append(lines, renderSectionHeader("Tools", colorize)...)
			// missing tools are reported, not fatal: the file itself is valid
			for _, status := range deps.CheckTools(cfg) {
				lines = append(lines, renderStatusLine(status.Name, toolKind(status), toolDetail(status), colorize))
			}
			if err := cfg.RequireAPIKey(); err != nil {
				lines = append(lines, renderStatusLine("API key", statusWarn, err.Error(), colorize))
			} else {
				lines = append(lines, renderStatusLine("API key", statusOK, "configured", colorize))
			}
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

// auditSettingsLines summarises the settings that shape an audit run.
func auditSettingsLines(cfg *config.Config, colorize bool) []string {
	width := "native width"
	if cfg.Sampling.MaxWidth > 0 {
		width = fmt.Sprintf("max width %dpx", cfg.Sampling.MaxWidth)
	}
	history := "disabled"
	if cfg.History.Enabled {
		history = cfg.HistoryPath()
	}
	lines := renderSectionHeader("Audit", colorize)
	return append(lines,
		renderStatusLine("Model", statusInfo, cfg.LLM.Model, colorize),
		renderStatusLine("Excerpt rows", statusInfo, fmt.Sprintf("first %d ledger rows sent per audit", cfg.Audit.ExcerptRows), colorize),
		renderStatusLine("Frame capture", statusInfo, fmt.Sprintf("%s, JPEG quality %d, %s", cfg.Sampling.FFmpegBinary, cfg.Sampling.JPEGQuality, width), colorize),
		renderStatusLine("Duration probe", statusInfo, cfg.Sampling.FFprobeBinary, colorize),
		renderStatusLine("Certificates", statusInfo, cfg.Paths.CertificateDir, colorize),
		renderStatusLine("History", statusInfo, history, colorize),
	)
}

func toolKind(status deps.Status) statusKind {
	switch {
	case status.Available:
		return statusOK
	case status.Optional:
		return statusWarn
	default:
		return statusError
	}
}

func toolDetail(status deps.Status) string {
	if status.Available {
		return status.Command
	}
	return fmt.Sprintf("%s (%s)", status.Detail, strings.ToLower(status.Description))
}
