package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tally/internal/preflight"
	"tally/internal/render"
	"tally/internal/staging"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var skipLLM bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check directories, tools and the reasoning service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := render.ShouldColorize(out)

			lines := renderSectionHeader("Configuration", colorize)
			lines = append(lines,
				renderStatusLine("Config file", statusInfo, ctx.configPath, colorize),
				renderStatusLine("Model", statusInfo, cfg.LLM.Model, colorize),
				renderStatusLine("API bind", statusInfo, cfg.Paths.APIBind, colorize),
			)
			if cfg.History.Enabled {
				lines = append(lines, renderStatusLine("History", statusInfo, cfg.HistoryPath(), colorize))
			} else {
				lines = append(lines, renderStatusLine("History", statusInfo, "disabled", colorize))
			}
			if dirs, err := staging.ListWorkDirs(cfg.Paths.StagingDir); err != nil {
				lines = append(lines, renderStatusLine("Staging", statusWarn, err.Error(), colorize))
			} else if len(dirs) > 0 {
				msg := fmt.Sprintf("%d session dirs, %s", len(dirs), humanize.Bytes(uint64(staging.TotalSize(dirs))))
				lines = append(lines, renderStatusLine("Staging", statusInfo, msg, colorize))
			}
			if strings.TrimSpace(cfg.LLM.APIKey) == "" {
				lines = append(lines, renderStatusLine("API key", statusError, "missing (set TALLY_API_KEY)", colorize))
			} else {
				lines = append(lines, renderStatusLine("API key", statusOK, "configured", colorize))
			}

			results := preflight.Run(cmd.Context(), cfg, preflight.Options{SkipLLM: skipLLM})
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Preflight", colorize)...)
			for _, r := range results {
				lines = append(lines, renderStatusLine(r.Name, resultKind(r), r.Detail, colorize))
			}
			if skipLLM {
				lines = append(lines, renderStatusLine("Reasoning service", statusInfo, "skipped", colorize))
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))

			if failed := preflight.Failures(results); len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, r := range failed {
					names = append(names, r.Name)
				}
				return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipLLM, "skip-llm", false, "Skip the reasoning service health check")
	return cmd
}

func resultKind(r preflight.Result) statusKind {
	switch {
	case !r.Passed:
		return statusError
	case r.Degraded:
		return statusWarn
	default:
		return statusOK
	}
}
