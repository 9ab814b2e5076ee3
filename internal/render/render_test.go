package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"tally/internal/audit"
	"tally/internal/session"
)

func sampleResult() *audit.Result {
	conf := 0.82
	return &audit.Result{
		RiskLevel:        audit.RiskHigh,
		DiscrepancyFound: true,
		FinancialImpact:  "$1,200",
		Confidence:       &conf,
		Summary:          "Two pallets of copper wire are missing.",
		Details:          "Frame 2 shows an empty bay.",
		Items: []audit.Item{
			{Name: "copper wire", Claimed: audit.Q(40), Actual: audit.Q(20), Unit: "spool", Status: audit.StatusDiscrepancy},
			{Name: "PVC-12 conduit", Claimed: audit.Q(10), Actual: audit.Q(10), Unit: "box", Status: audit.StatusMatch},
			{Name: "breaker", Claimed: audit.Q(5), Status: audit.StatusDiscrepancy},
		},
	}
}

func TestChartRowsScalesAgainstPeak(t *testing.T) {
	rows := ChartRows(sampleResult())
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	tests := []struct {
		name       string
		claimedPct float64
		actualPct  float64
		mismatch   bool
	}{
		{"Copper Wire", 100, 50, true},
		{"PVC-12 conduit", 25, 25, false},
		{"Breaker", 12.5, 0, true},
	}
	for i, tc := range tests {
		row := rows[i]
		if row.Name != tc.name {
			t.Errorf("row %d name = %q, want %q", i, row.Name, tc.name)
		}
		if row.ClaimedPct != tc.claimedPct || row.ActualPct != tc.actualPct {
			t.Errorf("row %d pct = %.1f/%.1f, want %.1f/%.1f", i, row.ClaimedPct, row.ActualPct, tc.claimedPct, tc.actualPct)
		}
		if row.Mismatch != tc.mismatch {
			t.Errorf("row %d mismatch = %v, want %v", i, row.Mismatch, tc.mismatch)
		}
	}
}

func TestChartRowsNilAndEmpty(t *testing.T) {
	if rows := ChartRows(nil); rows != nil {
		t.Fatalf("expected nil rows, got %v", rows)
	}
	if rows := ChartRows(&audit.Result{RiskLevel: audit.RiskLow}); len(rows) != 0 {
		t.Fatalf("expected no rows, got %v", rows)
	}
}

func TestItemLabel(t *testing.T) {
	tests := map[string]string{
		"copper wire":    "Copper Wire",
		"  steel bolts ": "Steel Bolts",
		"SKU-100 bolts":  "SKU-100 bolts",
		"iPhone cases":   "iPhone cases",
	}
	for in, want := range tests {
		if got := ItemLabel(in); got != want {
			t.Errorf("ItemLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTerminalReportPlain(t *testing.T) {
	view := View{
		AuditID:    "0123456789abcdef",
		Status:     session.StatusComplete,
		LedgerName: "ledger.csv",
		LedgerRows: 3,
		VideoName:  "walk.mp4",
		Result:     sampleResult(),
		Logs: []session.LogEntry{
			{Sequence: 1, Time: time.Now(), Message: "Seeking to 10% (6.0s)", Severity: session.SeverityInfo},
			{Sequence: 2, Time: time.Now(), Message: "Audit complete", Severity: session.SeveritySuccess},
		},
	}
	var buf bytes.Buffer
	if err := Terminal(&buf, view, TerminalOptions{}); err != nil {
		t.Fatalf("Terminal: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Audit ID:", "01234567",
		"Risk level:", "HIGH",
		"Financial impact:", "$1,200",
		"Confidence:", "82%",
		"FAIL (discrepancy found)",
		"Copper Wire", "✗ DISCREPANCY", "✓ MATCH",
		"Claimed vs actual",
		"Two pallets of copper wire are missing.",
		"Details: Frame 2 shows an empty bay.",
		"Seeking to 10% (6.0s)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("plain output contains escape sequences")
	}
}

func TestTerminalColorizesMismatches(t *testing.T) {
	text.EnableColors()
	var buf bytes.Buffer
	if err := Terminal(&buf, View{Status: session.StatusComplete, Result: sampleResult()}, TerminalOptions{Colorize: true, HideLogs: true}); err != nil {
		t.Fatalf("Terminal: %v", err)
	}
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("expected ANSI colour in output")
	}
}

func TestTerminalVerdictWithoutConfidence(t *testing.T) {
	result := &audit.Result{RiskLevel: audit.RiskLow, FinancialImpact: "None", Summary: "All counted."}
	var buf bytes.Buffer
	if err := Terminal(&buf, View{Status: session.StatusComplete, Result: result}, TerminalOptions{}); err != nil {
		t.Fatalf("Terminal: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "PASS") || strings.Contains(out, "Confidence:") {
		t.Fatalf("unexpected verdict output:\n%s", out)
	}
	if !strings.Contains(out, "No itemised findings") {
		t.Fatalf("expected empty findings row:\n%s", out)
	}
}

func TestHTMLMarksDiscrepancies(t *testing.T) {
	var buf bytes.Buffer
	view := View{Status: session.StatusComplete, AuditID: "abcdef0123456789", Result: sampleResult()}
	if err := HTML(&buf, view, HTMLOptions{}); err != nil {
		t.Fatalf("HTML: %v", err)
	}
	out := buf.String()
	if got := strings.Count(out, `<tr class="discrepancy">`); got != 2 {
		t.Fatalf("expected 2 discrepancy rows, got %d\n%s", got, out)
	}
	for _, want := range []string{"risk-high", "82%", "Copper Wire", "width: 50.0%", "audit abcdef01"} {
		if !strings.Contains(out, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(out, `id="start"`) {
		t.Fatalf("static page should not include controls")
	}
}

func TestHTMLInteractiveDisablesStartWhileRunning(t *testing.T) {
	tests := []struct {
		name     string
		view     View
		disabled bool
	}{
		{"missing evidence", View{Status: session.StatusIdle}, true},
		{"ready", View{Status: session.StatusIdle, LedgerRows: 3, VideoName: "walk.mp4"}, false},
		{"running", View{Status: session.StatusSampling, Running: true, LedgerRows: 3, VideoName: "walk.mp4"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := HTML(&buf, tc.view, HTMLOptions{Interactive: true}); err != nil {
				t.Fatalf("HTML: %v", err)
			}
			disabled := strings.Contains(buf.String(), `type="button" disabled`)
			if disabled != tc.disabled {
				t.Fatalf("disabled = %v, want %v", disabled, tc.disabled)
			}
		})
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if ShouldColorize(&bytes.Buffer{}) {
		t.Fatal("buffer should not be colorized")
	}
}
