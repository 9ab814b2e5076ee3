package frames

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"tally/internal/config"
	"tally/internal/media/ffprobe"
	"tally/internal/services"
)

// FFmpegOpener opens videos through ffprobe and ffmpeg. Each Open allocates
// a private work directory under TempRoot that the Source removes on Close.
type FFmpegOpener struct {
	FFmpegBinary  string
	FFprobeBinary string
	Quality       int
	MaxWidth      int
	TempRoot      string
}

// NewFFmpegOpener builds an opener from sampling config, placing work
// directories in the staging directory.
func NewFFmpegOpener(cfg *config.Config) *FFmpegOpener {
	return &FFmpegOpener{
		FFmpegBinary:  cfg.Sampling.FFmpegBinary,
		FFprobeBinary: cfg.Sampling.FFprobeBinary,
		Quality:       cfg.Sampling.JPEGQuality,
		MaxWidth:      cfg.Sampling.MaxWidth,
		TempRoot:      cfg.Paths.StagingDir,
	}
}

// Open verifies path is a readable file and prepares a work directory.
func (o *FFmpegOpener) Open(_ context.Context, path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, services.Wrap(services.ErrMedia, stageSampling, "open video", "video is not readable", err)
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, services.Wrap(services.ErrMedia, stageSampling, "open video", "video file is empty or a directory", nil)
	}
	if o.TempRoot != "" {
		if err := os.MkdirAll(o.TempRoot, 0o755); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, stageSampling, "open video", "create frame workspace root", err)
		}
	}
	dir, err := os.MkdirTemp(o.TempRoot, "tally-frames-")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageSampling, "open video", "create frame workspace", err)
	}
	return &ffmpegSource{opener: o, path: path, dir: dir}, nil
}

type ffmpegSource struct {
	opener *FFmpegOpener
	path   string
	dir    string
	n      int
}

func (s *ffmpegSource) Duration(ctx context.Context) (float64, error) {
	result, err := ffprobe.Inspect(ctx, s.opener.FFprobeBinary, s.path)
	if err != nil {
		return 0, classifyToolError("probe duration", err)
	}
	if _, ok := result.PrimaryVideo(); !ok {
		return 0, services.Wrap(services.ErrMedia, stageSampling, "probe duration", "no video stream found", nil)
	}
	return result.VideoDurationSeconds(), nil
}

func (s *ffmpegSource) Capture(ctx context.Context, seconds float64) ([]byte, error) {
	s.n++
	out := filepath.Join(s.dir, fmt.Sprintf("frame-%d.jpg", s.n))
	binary := strings.TrimSpace(s.opener.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binary, s.args(seconds, out)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, classifyToolError("capture frame", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output))))
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, services.Wrap(services.ErrMedia, stageSampling, "capture frame",
			fmt.Sprintf("no frame decoded at %.3fs", seconds), err)
	}
	_ = os.Remove(out)
	return data, nil
}

func (s *ffmpegSource) args(seconds float64, out string) []string {
	quality := s.opener.Quality
	if quality <= 0 {
		quality = 4
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-ss", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-i", s.path,
		"-frames:v", "1",
		"-q:v", strconv.Itoa(quality),
	}
	if s.opener.MaxWidth > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale='min(%d,iw)':-2", s.opener.MaxWidth))
	}
	return append(args, out)
}

func (s *ffmpegSource) Close() error {
	if s.dir == "" {
		return nil
	}
	err := os.RemoveAll(s.dir)
	s.dir = ""
	return err
}

func classifyToolError(op string, err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrExternalTool, stageSampling, op, "media tool not found", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return services.Wrap(services.ErrMedia, stageSampling, op, "video could not be decoded", err)
}
