package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tally/internal/config"
	"tally/internal/testsupport"
)

const cannedVerdict = `{
  "riskLevel": "HIGH",
  "discrepancyFound": true,
  "financialImpact": "$1,240 overstated",
  "confidence": 0.82,
  "summary": "Copper pipe stock is visibly short of the claimed count.",
  "items": [
    {"name": "Steel bolts", "claimed": 120, "actual": 120, "unit": "box"},
    {"name": "Copper pipe", "claimed": 40, "actual": 18, "unit": "length"}
  ]
}`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	ledgerPath string
	videoPath  string
	llmCalls   atomic.Int32
	llmStatus  atomic.Int32
}

// setupCLITestEnv writes a config pointing at scripted media binaries and a
// fake reasoning service that answers with content, or with llmStatus when
// that is set.
func setupCLITestEnv(t *testing.T, content string) *cliTestEnv {
	t.Helper()

	env := &cliTestEnv{}
	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.llmCalls.Add(1)
		if code := env.llmStatus.Load(); code != 0 {
			http.Error(w, `{"error":"upstream unavailable"}`, int(code))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
	t.Cleanup(llmServer.Close)

	cfg := testsupport.NewConfig(t,
		testsupport.WithFakeMedia("60.0"),
		testsupport.WithLLMEndpoint(llmServer.URL),
		testsupport.WithHistory(),
	)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	env.cfg = cfg
	env.configPath = filepath.Join(base, "config.toml")
	writeTestConfig(t, env.configPath, cfg)
	env.ledgerPath = testsupport.WriteText(t, base, "ledger.csv", testsupport.SampleLedger)
	env.videoPath = filepath.Join(base, "walkthrough.mp4")
	testsupport.WriteFile(t, env.videoPath, 2048)
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(output, want) {
			t.Fatalf("expected output to contain %q\n%s", want, output)
		}
	}
}
