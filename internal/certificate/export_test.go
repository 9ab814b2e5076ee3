package certificate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tally/internal/audit"
	"tally/internal/services"
	"tally/internal/testsupport"
)

func fakePrinter(calls *int) Printer {
	return func(_ context.Context, html []byte, geom Geometry) ([]byte, error) {
		*calls++
		if !strings.Contains(string(html), "Inventory Audit Certificate") {
			return nil, errors.New("unexpected html")
		}
		return []byte("%PDF-1.7 fake"), nil
	}
}

func TestExportHTMLWritesPages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	calls := 0
	exporter := NewExporter(cfg, WithPrinter(fakePrinter(&calls)))
	path := filepath.Join(t.TempDir(), "cert.html")
	meta := Meta{AuditID: "0123456789abcdef", IssuedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), LedgerName: "ledger.csv"}

	if err := exporter.Export(context.Background(), resultWithItems(20), meta, path); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if calls != 0 {
		t.Fatalf("html export should not print, got %d calls", calls)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(data)
	if got := strings.Count(out, `<section class="page"`); got != 2 {
		t.Fatalf("expected 2 pages, got %d", got)
	}
	for _, want := range []string{
		"0123456789abcdef",
		"1 March 2026, 09:30 UTC",
		"ledger.csv",
		cfg.Certificate.Organization,
		cfg.Certificate.Signatory,
		"FAIL",
		`class="discrepancy"`,
		"Page 2 of 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("certificate missing %q", want)
		}
	}
}

func TestExportPDFUsesPrinter(t *testing.T) {
	calls := 0
	exporter := NewExporter(testsupport.NewConfig(t), WithPrinter(fakePrinter(&calls)))
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", DefaultFileName("0123456789abcdef", FormatPDF))

	if err := exporter.Export(context.Background(), resultWithItems(0), Meta{AuditID: "0123456789abcdef"}, path); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if calls != 1 {
		t.Fatalf("printer calls = %d", calls)
	}
	data, err := os.ReadFile(path)
	if err != nil || !strings.HasPrefix(string(data), "%PDF") {
		t.Fatalf("unexpected pdf: %q %v", data, err)
	}
	if filepath.Base(path) != "tally-certificate-01234567.pdf" {
		t.Fatalf("unexpected name %s", filepath.Base(path))
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "nested", ".tally-certificate-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temporary files left behind: %v", leftovers)
	}
}

func TestExportErrors(t *testing.T) {
	failing := func(context.Context, []byte, Geometry) ([]byte, error) {
		return nil, errors.New("chrome not found")
	}
	exporter := NewExporter(nil, WithPrinter(failing))
	path := filepath.Join(t.TempDir(), "cert.pdf")

	err := exporter.Export(context.Background(), nil, Meta{}, path)
	if !errors.Is(err, services.ErrInput) {
		t.Fatalf("nil result: expected input error, got %v", err)
	}
	err = exporter.Export(context.Background(), &audit.Result{RiskLevel: audit.RiskLow, Summary: "ok"}, Meta{}, path)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("printer failure: expected external tool error, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("no file should be written on failure")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatPDF, false},
		{"PDF", FormatPDF, false},
		{"html", FormatHTML, false},
		{"docx", "", true},
	}
	for _, tc := range tests {
		got, err := ParseFormat(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tc.in, got, err)
		}
	}
	if FormatForPath("/tmp/x.HTML") != FormatHTML || FormatForPath("/tmp/x") != FormatPDF {
		t.Fatal("FormatForPath mismatch")
	}
	if DefaultFileName("", FormatHTML) != "tally-certificate-unsaved.html" {
		t.Fatal("DefaultFileName for empty id")
	}
}
