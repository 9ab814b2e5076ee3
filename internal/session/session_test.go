package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tally/internal/audit"
	"tally/internal/frames"
	"tally/internal/history"
	"tally/internal/services"
	"tally/internal/testsupport"
)

type stubSource struct {
	duration float64
	closed   *int
}

func (s stubSource) Duration(context.Context) (float64, error) { return s.duration, nil }

func (s stubSource) Capture(_ context.Context, seconds float64) ([]byte, error) {
	return []byte(fmt.Sprintf("\xff\xd8%.1f", seconds)), nil
}

func (s stubSource) Close() error {
	*s.closed++
	return nil
}

type stubOpener struct {
	duration float64
	closed   int
}

func (o *stubOpener) Open(context.Context, string) (frames.Source, error) {
	return stubSource{duration: o.duration, closed: &o.closed}, nil
}

type memoryArchive struct {
	mu      sync.Mutex
	entries []history.Entry
	err     error
}

func (m *memoryArchive) Record(_ context.Context, entry history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func cannedResult() *audit.Result {
	return &audit.Result{
		RiskLevel:        audit.RiskMedium,
		DiscrepancyFound: true,
		FinancialImpact:  "$1,200",
		Summary:          "pipe short",
		Items: []audit.Item{
			{Name: "Copper pipe", Claimed: audit.Q(40), Actual: audit.Q(30), Status: audit.StatusDiscrepancy},
		},
	}
}

func newTestSession(t *testing.T, submitter audit.Submitter, archive Archiver) (*Session, *stubOpener) {
	t.Helper()
	opener := &stubOpener{duration: 60}
	s := New(Options{
		Opener:      opener,
		Submitter:   submitter,
		ExcerptRows: 12,
		StagingDir:  t.TempDir(),
		Archive:     archive,
	})
	t.Cleanup(func() { _ = s.Close() })
	return s, opener
}

func loadEvidence(t *testing.T, s *Session) {
	t.Helper()
	if _, err := s.LoadLedger("ledger.csv", strings.NewReader(testsupport.SampleLedger)); err != nil {
		t.Fatalf("LoadLedger: %v", err)
	}
	if _, err := s.StageVideo("walk.mp4", strings.NewReader("video-bytes")); err != nil {
		t.Fatalf("StageVideo: %v", err)
	}
}

func waitForIdle(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.Running() {
		if time.Now().After(deadline) {
			t.Fatal("audit did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunRequiresEvidence(t *testing.T) {
	s, _ := newTestSession(t, &audit.Fake{Result: cannedResult()}, nil)
	if _, err := s.Run(context.Background()); !errors.Is(err, services.ErrInput) {
		t.Fatalf("expected ErrInput, got %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != StatusIdle || snap.AuditID != "" || snap.Running {
		t.Fatalf("state changed on input error: %+v", snap)
	}

	if _, err := s.LoadLedger("ledger.csv", strings.NewReader(testsupport.SampleLedger)); err != nil {
		t.Fatalf("LoadLedger: %v", err)
	}
	before := len(s.Logs())
	_, err := s.Run(context.Background())
	if !errors.Is(err, services.ErrInput) || !strings.Contains(err.Error(), "video") {
		t.Fatalf("expected missing video error, got %v", err)
	}
	if len(s.Logs()) != before {
		t.Fatal("log should not be reset by a rejected audit")
	}
}

func TestRunCompletes(t *testing.T) {
	fake := &audit.Fake{Result: cannedResult()}
	archive := &memoryArchive{}
	s, opener := newTestSession(t, fake, archive)
	loadEvidence(t, s)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RiskLevel != audit.RiskMedium {
		t.Fatalf("unexpected result %+v", result)
	}
	snap := s.Snapshot()
	if snap.Status != StatusComplete || snap.Result == nil || snap.AuditID == "" || snap.Running {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.FinishedAt == nil || snap.StartedAt == nil {
		t.Fatal("expected timestamps")
	}
	if opener.closed != 1 {
		t.Fatalf("frame source closed %d times", opener.closed)
	}

	reqs := fake.Requests()
	if len(reqs) != 1 || len(reqs[0].Frames) != 3 || reqs[0].ExcerptRows != 3 || reqs[0].TotalRows != 3 {
		t.Fatalf("unexpected request %+v", reqs)
	}
	if reqs[0].Frames[1].Seconds != 30 {
		t.Fatalf("middle frame at %v, want 30", reqs[0].Frames[1].Seconds)
	}

	logs := s.Logs()
	if len(logs) == 0 || logs[0].Message != "Audit started" {
		t.Fatalf("log should restart with the audit, got %+v", logs)
	}
	var seeks, successes int
	for _, entry := range logs {
		if strings.HasPrefix(entry.Message, "Seeking to") {
			seeks++
		}
		if entry.Severity == SeveritySuccess {
			successes++
		}
	}
	if seeks != 3 || successes < 2 {
		t.Fatalf("expected 3 seeks and success entries, got %+v", logs)
	}
	if !strings.Contains(logs[len(logs)-1].Message, "Audit complete: MEDIUM risk") {
		t.Fatalf("unexpected last log %q", logs[len(logs)-1].Message)
	}

	if len(archive.entries) != 1 || archive.entries[0].ID != snap.AuditID || archive.entries[0].LedgerRows != 3 {
		t.Fatalf("unexpected archive entries %+v", archive.entries)
	}
}

func TestRunBoundsExcerpt(t *testing.T) {
	fake := &audit.Fake{Result: cannedResult()}
	s, _ := newTestSession(t, fake, nil)
	var b strings.Builder
	b.WriteString("sku,qty\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "S%02d,%d\n", i, i)
	}
	if n, err := s.LoadLedger("big.csv", strings.NewReader(b.String())); err != nil || n != 40 {
		t.Fatalf("LoadLedger = %d, %v", n, err)
	}
	if _, err := s.StageVideo("walk.mp4", strings.NewReader("v")); err != nil {
		t.Fatalf("StageVideo: %v", err)
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	req := fake.Requests()[0]
	if req.ExcerptRows != 12 || req.TotalRows != 40 || strings.Count(req.Excerpt, "{") != 12 {
		t.Fatalf("excerpt not bounded: rows=%d total=%d", req.ExcerptRows, req.TotalRows)
	}
}

func TestRunFailureClearsPreviousResult(t *testing.T) {
	fake := &audit.Fake{Result: cannedResult()}
	archive := &memoryArchive{}
	s, _ := newTestSession(t, fake, archive)
	loadEvidence(t, s)
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	firstID := s.Snapshot().AuditID

	fake.Err = services.Wrap(services.ErrParse, "requesting", "parse audit response", "response is not valid JSON", nil)
	if _, err := s.Run(context.Background()); !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != StatusError || snap.Result != nil || s.Result() != nil {
		t.Fatalf("stale result visible after failure: %+v", snap)
	}
	if snap.AuditID == firstID || snap.ErrorKind != "parse" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	logs := s.Logs()
	last := logs[len(logs)-1]
	if last.Severity != SeverityError || !strings.Contains(last.Message, "Audit request failed") {
		t.Fatalf("expected error log entry, got %+v", last)
	}
	for _, entry := range logs {
		if strings.Contains(entry.Message, "Audit complete") {
			t.Fatal("previous audit log leaked into new session log")
		}
	}
	if len(archive.entries) != 1 {
		t.Fatalf("failed audit should not be archived, got %d entries", len(archive.entries))
	}
}

func TestRunDurationUnavailable(t *testing.T) {
	fake := &audit.Fake{Result: cannedResult()}
	s, opener := newTestSession(t, fake, nil)
	opener.duration = 0
	loadEvidence(t, s)

	if _, err := s.Run(context.Background()); !errors.Is(err, frames.ErrDurationUnavailable) {
		t.Fatalf("expected duration error, got %v", err)
	}
	if len(fake.Requests()) != 0 {
		t.Fatal("no request should be sent without frames")
	}
	if s.Snapshot().ErrorKind != "media" {
		t.Fatalf("expected media error kind, got %q", s.Snapshot().ErrorKind)
	}
}

func TestSecondAuditRejectedWhileInFlight(t *testing.T) {
	fake := &audit.Fake{Result: cannedResult(), Gate: make(chan struct{})}
	s, _ := newTestSession(t, fake, nil)
	loadEvidence(t, s)

	id, err := s.Start(context.Background())
	if err != nil || id == "" {
		t.Fatalf("Start: %q, %v", id, err)
	}
	if _, err := s.Run(context.Background()); !errors.Is(err, ErrAuditInFlight) {
		t.Fatalf("expected ErrAuditInFlight, got %v", err)
	}
	if _, err := s.Start(context.Background()); !errors.Is(err, ErrAuditInFlight) {
		t.Fatalf("expected ErrAuditInFlight from Start, got %v", err)
	}
	if _, err := s.LoadLedger("other.csv", strings.NewReader("a\n1\n")); !errors.Is(err, ErrAuditInFlight) {
		t.Fatalf("expected ledger change to be rejected, got %v", err)
	}
	close(fake.Gate)

	waitForIdle(t, s)
	snap := s.Snapshot()
	if snap.Status != StatusComplete || snap.AuditID != id {
		t.Fatalf("unexpected final snapshot %+v", snap)
	}
	if len(fake.Requests()) != 1 {
		t.Fatalf("expected exactly one request, got %d", len(fake.Requests()))
	}
}

func TestLoadLedgerFailure(t *testing.T) {
	s, _ := newTestSession(t, nil, nil)
	if _, err := s.LoadLedger("ok.csv", strings.NewReader("a\n1\n")); err != nil {
		t.Fatalf("LoadLedger: %v", err)
	}
	if _, err := s.LoadLedger("bad.csv", strings.NewReader("a,a\n1,2\n")); !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != StatusError || snap.LedgerRows != 0 || snap.ErrorKind != "parse" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	logs := s.Logs()
	if logs[len(logs)-1].Severity != SeverityError {
		t.Fatalf("expected error entry, got %+v", logs[len(logs)-1])
	}

	if _, err := s.LoadLedger("ok.csv", strings.NewReader("a\n1\n")); err != nil {
		t.Fatalf("LoadLedger: %v", err)
	}
	if s.Snapshot().Status != StatusIdle {
		t.Fatal("successful reload should clear the error state")
	}
}

func TestStageVideoReplacesAndClose(t *testing.T) {
	s, _ := newTestSession(t, nil, nil)
	first, err := s.StageVideo("a.mp4", strings.NewReader("one"))
	if err != nil {
		t.Fatalf("StageVideo: %v", err)
	}
	second, err := s.StageVideo("b.mov", strings.NewReader("two"))
	if err != nil {
		t.Fatalf("StageVideo: %v", err)
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Fatal("replaced video should be removed")
	}
	if filepath.Ext(second) != ".mov" || s.Snapshot().VideoName != "b.mov" {
		t.Fatalf("unexpected staged video %s / %s", second, s.Snapshot().VideoName)
	}
	if _, err := s.StageVideo("empty.mp4", strings.NewReader("")); !errors.Is(err, services.ErrInput) {
		t.Fatalf("expected ErrInput for empty upload, got %v", err)
	}

	external := filepath.Join(t.TempDir(), "keep.mp4")
	if err := os.WriteFile(external, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.UseVideo(external); err != nil {
		t.Fatalf("UseVideo: %v", err)
	}
	if _, err := os.Stat(second); !os.IsNotExist(err) {
		t.Fatal("staged copy should be removed when switching to an external file")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(external); err != nil {
		t.Fatal("Close must not remove files the session did not stage")
	}
	if err := s.UseVideo(filepath.Join(t.TempDir(), "missing.mp4")); !errors.Is(err, services.ErrInput) {
		t.Fatalf("expected ErrInput, got %v", err)
	}
}

func TestIntakeInProgressWhenAuditStartsIsRefused(t *testing.T) {
	fake := &audit.Fake{Result: cannedResult(), Gate: make(chan struct{})}
	s, _ := newTestSession(t, fake, nil)
	if _, err := s.LoadLedger("ledger.csv", strings.NewReader(testsupport.SampleLedger)); err != nil {
		t.Fatalf("LoadLedger: %v", err)
	}
	original, err := s.StageVideo("walk.mp4", strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("StageVideo: %v", err)
	}

	videoReader, videoWriter := io.Pipe()
	ledgerReader, ledgerWriter := io.Pipe()
	videoDone := make(chan error, 1)
	ledgerDone := make(chan error, 1)
	go func() {
		_, err := s.StageVideo("late.mp4", videoReader)
		videoDone <- err
	}()
	go func() {
		_, err := s.LoadLedger("late.csv", ledgerReader)
		ledgerDone <- err
	}()
	// a write returns once the copy has consumed it, so both calls are past
	// their first running check
	if _, err := videoWriter.Write([]byte("late-video")); err != nil {
		t.Fatalf("write video: %v", err)
	}
	if _, err := ledgerWriter.Write([]byte("a,a\n")); err != nil {
		t.Fatalf("write ledger: %v", err)
	}

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = videoWriter.Close()
	_ = ledgerWriter.Close()

	if err := <-videoDone; !errors.Is(err, ErrAuditInFlight) {
		t.Fatalf("expected late video to be refused, got %v", err)
	}
	if err := <-ledgerDone; !errors.Is(err, ErrAuditInFlight) {
		t.Fatalf("expected late ledger to be refused, got %v", err)
	}
	if _, err := os.Stat(original); err != nil {
		t.Fatalf("video under audit was removed: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(original))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("refused upload left files behind: %d entries", len(entries))
	}
	if snap := s.Snapshot(); snap.Status == StatusError {
		t.Fatalf("refused ledger changed the running audit: %+v", snap)
	}

	close(fake.Gate)
	waitForIdle(t, s)
	snap := s.Snapshot()
	if snap.Status != StatusComplete || snap.VideoName != "walk.mp4" || snap.LedgerName != "ledger.csv" {
		t.Fatalf("unexpected final snapshot %+v", snap)
	}
}

func TestLedgerFailureDropsPreviousResult(t *testing.T) {
	s, _ := newTestSession(t, &audit.Fake{Result: cannedResult()}, nil)
	loadEvidence(t, s)
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Result() == nil {
		t.Fatal("expected a result after the audit")
	}

	if _, err := s.LoadLedger("bad.csv", strings.NewReader("a,a\n1,2\n")); !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != StatusError || snap.Result != nil || s.Result() != nil {
		t.Fatalf("previous result still visible after ledger error: %+v", snap)
	}
	if snap.FinishedAt != nil {
		t.Fatalf("finish time of the previous audit still set: %v", snap.FinishedAt)
	}
}
