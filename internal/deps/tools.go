package deps

import (
	"tally/internal/config"
)

// chromiumCandidates are the executable names headless Chromium commonly
// installs under.
var chromiumCandidates = []string{
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"headless-shell",
}

// Requirements lists the binaries used for sampling and certificate export.
// Chromium is optional since HTML certificates work without it.
func Requirements(cfg *config.Config) []Requirement {
	ffmpeg, ffprobe, chromium := "ffmpeg", "ffprobe", ""
	if cfg != nil {
		ffmpeg = cfg.Sampling.FFmpegBinary
		ffprobe = cfg.Sampling.FFprobeBinary
		chromium = cfg.Certificate.ChromiumPath
	}
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpeg,
			Description: "Required for frame capture",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobe,
			Description: "Required for video duration probing",
		},
		{
			Name:         "Chromium",
			Command:      chromium,
			Description:  "Renders PDF certificates",
			Optional:     true,
			Alternatives: chromiumCandidates,
		},
	}
}

// CheckTools evaluates Requirements for cfg.
func CheckTools(cfg *config.Config) []Status {
	return CheckBinaries(Requirements(cfg))
}
