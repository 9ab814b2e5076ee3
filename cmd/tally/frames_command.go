package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tally/internal/frames"
	"tally/internal/media/ffprobe"
)

func newFramesCommand(ctx *commandContext) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "frames VIDEO",
		Short: "Sample the audit frames from a video and save them as JPEG files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(outDir) == "" {
				return fmt.Errorf("--out is required")
			}
			logger, err := ctx.logger(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if summary, ok := describeVideo(cmd.Context(), cfg.Sampling.FFprobeBinary, args[0]); ok {
				fmt.Fprintf(out, "Source: %s\n", summary)
			}
			sampler := frames.NewSampler(frames.NewFFmpegOpener(cfg),
				frames.WithLogger(logger),
				frames.WithObserver(func(step frames.Step) {
					if step.Kind == frames.StepSeeking {
						fmt.Fprintf(out, "Seeking to %.2fs (frame %d of %d)\n", step.Seconds, step.Index+1, len(frames.Offsets))
					}
				}),
			)
			captured, err := sampler.Sample(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			paths, err := frames.WriteFiles(outDir, captured)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(captured))
			for i, f := range captured {
				rows = append(rows, []string{
					f.Label(),
					strconv.FormatFloat(f.Seconds, 'f', 2, 64),
					strconv.Itoa(len(f.Data)),
					paths[i],
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Offset", "Seconds", "Bytes", "File"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory to write frames into")
	return cmd
}

// describeVideo summarises the primary video stream for display. Probe
// failures are left for the sampler to report.
func describeVideo(ctx context.Context, binary, path string) (string, bool) {
	probe, err := ffprobe.Inspect(ctx, binary, path)
	if err != nil {
		return "", false
	}
	video, ok := probe.PrimaryVideo()
	if !ok {
		return "", false
	}
	parts := []string{fmt.Sprintf("%dx%d %s", video.Width, video.Height, video.CodecName)}
	if fps := video.FrameRate(); fps > 0 {
		parts = append(parts, fmt.Sprintf("%.2f fps", fps))
	}
	if size := probe.SizeBytes(); size > 0 {
		parts = append(parts, humanize.Bytes(uint64(size)))
	}
	if d := probe.VideoDurationSeconds(); d > 0 {
		parts = append(parts, fmt.Sprintf("%.2fs", d))
	}
	return strings.Join(parts, ", "), true
}
