package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"tally/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.LLM.APIKey = "test"
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CertificateDir = filepath.Join(base, "certificates")
	cfgVal.Paths.APIBind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIKey sets the reasoning service key on the test config.
func WithAPIKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.APIKey = key
	}
}

// WithAPIToken requires bearer authentication on the daemon API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithLLMEndpoint points the reasoning client at a test server.
func WithLLMEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = url
	}
}

// WithHistory enables the sqlite audit archive.
func WithHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = true
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			writeScript(b.t, filepath.Join(binDir, name), "#!/bin/sh\nexit 0\n")
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// WithFakeMedia installs scripted ffprobe and ffmpeg binaries. The ffprobe
// script reports duration (verbatim, so "N/A" or "inf" can be simulated) and
// the ffmpeg script writes a tiny JPEG to its final argument, recording each
// -ss value in seeks.log under BaseDir.
func WithFakeMedia(duration string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "fakebin")
		probe := filepath.Join(binDir, "ffprobe")
		ffmpeg := filepath.Join(binDir, "ffmpeg")
		writeScript(b.t, probe, FakeFFprobeScript(duration))
		writeScript(b.t, ffmpeg, FakeFFmpegScript(filepath.Join(b.baseDir, "seeks.log")))
		b.cfg.Sampling.FFprobeBinary = probe
		b.cfg.Sampling.FFmpegBinary = ffmpeg
	}
}

// FakeFFprobeScript returns a shell script that prints ffprobe JSON for a
// single 640x360 29.97 fps video stream in a 2048-byte container with the
// given duration.
func FakeFFprobeScript(duration string) string {
	return fmt.Sprintf(`#!/bin/sh
cat <<'JSON'
{"streams":[{"index":0,"codec_type":"video","codec_name":"h264","width":640,"height":360,"avg_frame_rate":"30000/1001"}],"format":{"filename":"fake.mp4","duration":%q,"size":"2048"}}
JSON
`, duration)
}

// FakeFFmpegScript returns a shell script that logs its -ss argument to
// seekLog and writes a JPEG marker to the output path.
func FakeFFmpegScript(seekLog string) string {
	return fmt.Sprintf(`#!/bin/sh
prev=""
out=""
for arg in "$@"; do
  if [ "$prev" = "-ss" ]; then echo "$arg" >> %q; fi
  prev="$arg"
  out="$arg"
done
printf '\377\330\377\340fake' > "$out"
`, seekLog)
}

// SeekLog returns the path the fake ffmpeg script appends seek offsets to.
func SeekLog(cfg *config.Config) string {
	return filepath.Join(BaseDir(cfg), "seeks.log")
}

func writeScript(t testing.TB, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", path, err)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
