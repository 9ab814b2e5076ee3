package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// SampleLedger is a small comma-separated inventory used across tests.
const SampleLedger = "sku,item,claimed_qty,unit\nA-100,Steel bolts,120,box\nA-200,Copper pipe,40,length\nA-300,Pallet wrap,12,roll\n"

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	writeBytes(t, path, buf)
}

// WriteText writes content to dir/name and returns the full path.
func WriteText(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	writeBytes(t, path, []byte(content))
	return path
}

func writeBytes(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
