package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tally/internal/audit"
	"tally/internal/certificate"
	"tally/internal/config"
	"tally/internal/frames"
	"tally/internal/history"
	"tally/internal/session"
	"tally/internal/testsupport"
)

func cannedResult() *audit.Result {
	return &audit.Result{
		RiskLevel:        audit.RiskHigh,
		DiscrepancyFound: true,
		FinancialImpact:  "$2,400",
		Summary:          "Bolts are short.",
		Items: []audit.Item{
			{Name: "bolts", Claimed: audit.Q(120), Actual: audit.Q(80), Unit: "box", Status: audit.StatusDiscrepancy},
			{Name: "washers", Claimed: audit.Q(50), Actual: audit.Q(50), Unit: "box", Status: audit.StatusMatch},
		},
	}
}

type fixture struct {
	cfg     *config.Config
	session *session.Session
	fake    *audit.Fake
	store   *history.Store
	server  *Server
	http    *httptest.Server
}

func newFixture(t *testing.T, withHistory bool, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithFakeMedia("60.0")}, opts...)...)
	f := &fixture{cfg: cfg, fake: &audit.Fake{Result: cannedResult()}}

	var archive session.Archiver
	var serverOpts []Option
	if withHistory {
		store, err := history.Open(context.Background(), cfg.HistoryPath())
		if err != nil {
			t.Fatalf("open history: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		f.store = store
		archive = store
		serverOpts = append(serverOpts, WithHistory(store))
	}
	f.session = session.New(session.Options{
		Opener:      frames.NewFFmpegOpener(cfg),
		Submitter:   f.fake,
		ExcerptRows: cfg.Audit.ExcerptRows,
		StagingDir:  cfg.Paths.StagingDir,
		Archive:     archive,
	})
	t.Cleanup(func() { _ = f.session.Close() })

	printer := func(context.Context, []byte, certificate.Geometry) ([]byte, error) {
		return []byte("%PDF-1.7 test"), nil
	}
	serverOpts = append(serverOpts, WithExporter(certificate.NewExporter(cfg, certificate.WithPrinter(printer))))
	srv, err := New(cfg, f.session, serverOpts...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	f.server = srv
	f.http = httptest.NewServer(srv.Handler())
	t.Cleanup(f.http.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if f.cfg.Paths.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.Paths.APIToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func (f *fixture) uploadLedger(t *testing.T) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "stock.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte(testsupport.SampleLedger))
	_ = mw.Close()
	return f.do(t, http.MethodPost, "/api/ledger", &buf, mw.FormDataContentType())
}

func (f *fixture) uploadVideo(t *testing.T) *http.Response {
	t.Helper()
	return f.do(t, http.MethodPost, "/api/video?name=walk.mp4", strings.NewReader("not really a video"), "application/octet-stream")
}

func (f *fixture) waitForStatus(t *testing.T, want session.Status) session.Snapshot {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		snap := f.session.Snapshot()
		if snap.Status == want && !snap.Running {
			return snap
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s (have %s)", want, f.session.Snapshot().Status)
	return session.Snapshot{}
}

func TestAuditRequiresEvidence(t *testing.T) {
	f := newFixture(t, false)
	resp := f.do(t, http.MethodPost, "/api/audit", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decode[errorResponse](t, resp)
	if body.Kind != "input" {
		t.Fatalf("kind = %q, want input", body.Kind)
	}
	if snap := f.session.Snapshot(); snap.Status != session.StatusIdle {
		t.Fatalf("status changed to %s", snap.Status)
	}
}

func TestAuditLifecycle(t *testing.T) {
	f := newFixture(t, false)
	gate := make(chan struct{})
	f.fake.Gate = gate

	resp := f.uploadLedger(t)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ledger upload status = %d", resp.StatusCode)
	}
	ledger := decode[ledgerResponse](t, resp)
	if ledger.Rows != 3 || ledger.LedgerName != "stock.csv" {
		t.Fatalf("unexpected ledger response %+v", ledger)
	}
	if resp := f.uploadVideo(t); resp.StatusCode != http.StatusOK {
		t.Fatalf("video upload status = %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPost, "/api/audit", nil, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	started := decode[auditStartedResponse](t, resp)
	if started.AuditID == "" {
		t.Fatal("missing audit id")
	}

	if resp := f.do(t, http.MethodPost, "/api/audit", nil, ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", resp.StatusCode)
	}
	if resp := f.uploadLedger(t); resp.StatusCode != http.StatusConflict {
		t.Fatalf("ledger during audit status = %d, want 409", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodGet, "/api/result", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("result before completion status = %d, want 404", resp.StatusCode)
	}

	close(gate)
	f.waitForStatus(t, session.StatusComplete)

	resp = f.do(t, http.MethodGet, "/api/result", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result status = %d", resp.StatusCode)
	}
	result := decode[resultResponse](t, resp)
	if result.AuditID != started.AuditID || result.Result.RiskLevel != audit.RiskHigh || len(result.Result.Items) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	resp = f.do(t, http.MethodGet, "/api/logs?since=0", nil, "")
	logs := decode[logsResponse](t, resp)
	if len(logs.Entries) == 0 || logs.Next == 0 {
		t.Fatalf("expected log entries, got %+v", logs)
	}
	last := logs.Entries[len(logs.Entries)-1]
	if last.Severity != session.SeveritySuccess || !strings.HasPrefix(last.Message, "Audit complete") {
		t.Fatalf("unexpected final log entry %+v", last)
	}

	resp = f.do(t, http.MethodGet, "/", nil, "")
	page, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(page), `<tr class="discrepancy">`) {
		t.Fatalf("dashboard does not mark the discrepancy:\n%s", page)
	}
}

func TestCertificateEndpoint(t *testing.T) {
	f := newFixture(t, false)
	if resp := f.do(t, http.MethodGet, "/api/certificate", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("certificate before audit status = %d, want 404", resp.StatusCode)
	}
	f.uploadLedger(t)
	f.uploadVideo(t)
	f.do(t, http.MethodPost, "/api/audit", nil, "")
	snap := f.waitForStatus(t, session.StatusComplete)

	tests := []struct {
		query       string
		status      int
		contentType string
		filename    string
	}{
		{"", http.StatusOK, "application/pdf", "tally-certificate-" + snap.AuditID[:8] + ".pdf"},
		{"?format=html", http.StatusOK, "text/html; charset=utf-8", "tally-certificate-" + snap.AuditID[:8] + ".html"},
		{"?format=docx", http.StatusBadRequest, "application/json", ""},
	}
	for _, tc := range tests {
		resp := f.do(t, http.MethodGet, "/api/certificate"+tc.query, nil, "")
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.query, resp.StatusCode, tc.status)
		}
		if got := resp.Header.Get("Content-Type"); got != tc.contentType {
			t.Fatalf("%s: content type = %q", tc.query, got)
		}
		if tc.filename != "" && !strings.Contains(resp.Header.Get("Content-Disposition"), tc.filename) {
			t.Fatalf("%s: disposition = %q", tc.query, resp.Header.Get("Content-Disposition"))
		}
	}
}

func TestParseFailureSurfacesAsErrorState(t *testing.T) {
	f := newFixture(t, false)
	resp := f.do(t, http.MethodPost, "/api/ledger?name=bad.csv", strings.NewReader("sku,\"item\n1,2"), "text/csv")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body := decode[errorResponse](t, resp); body.Kind != "parse" {
		t.Fatalf("kind = %q, want parse", body.Kind)
	}
	status := decode[session.Snapshot](t, f.do(t, http.MethodGet, "/api/status", nil, ""))
	if status.Status != session.StatusError || status.Result != nil {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestAuthMiddleware(t *testing.T) {
	f := newFixture(t, false, testsupport.WithAPIToken("s3cret"))
	tests := []struct {
		name   string
		method string
		path   string
		header string
		status int
	}{
		{"missing token", http.MethodGet, "/api/status", "", http.StatusUnauthorized},
		{"wrong token", http.MethodGet, "/api/status", "Bearer nope", http.StatusUnauthorized},
		{"bearer token", http.MethodGet, "/api/status", "Bearer s3cret", http.StatusOK},
		{"query token on GET", http.MethodGet, "/?token=s3cret", "", http.StatusOK},
		{"query token on POST", http.MethodPost, "/api/audit?token=s3cret", "", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(tc.method, f.http.URL+tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
		})
	}
}

func TestHistoryEndpoints(t *testing.T) {
	disabled := newFixture(t, false)
	if resp := disabled.do(t, http.MethodGet, "/api/history", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("disabled history status = %d, want 404", resp.StatusCode)
	}

	f := newFixture(t, true)
	f.uploadLedger(t)
	f.uploadVideo(t)
	f.do(t, http.MethodPost, "/api/audit", nil, "")
	snap := f.waitForStatus(t, session.StatusComplete)

	list := decode[historyListResponse](t, f.do(t, http.MethodGet, "/api/history", nil, ""))
	if len(list.Audits) != 1 || list.Audits[0].ID != snap.AuditID || list.Audits[0].Mismatches != 1 {
		t.Fatalf("unexpected history list %+v", list)
	}
	resp := f.do(t, http.MethodGet, "/api/history/"+snap.AuditID[:8], nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history item status = %d", resp.StatusCode)
	}
	entry := decode[history.Entry](t, resp)
	if entry.LedgerName != "stock.csv" || entry.Result == nil || entry.Result.FinancialImpact != "$2,400" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if resp := f.do(t, http.MethodGet, "/api/history/ffffffffffff", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id status = %d, want 404", resp.StatusCode)
	}
}

func TestStartEnforcesSingleInstance(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.server.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.server.Stop()
	if f.server.Addr() == "" {
		t.Fatal("expected bound address")
	}

	other, err := New(f.cfg, f.session)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := other.Start(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		other.Stop()
		t.Fatalf("expected lock conflict, got %v", err)
	}

	resp, err := http.Get("http://" + f.server.Addr() + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
