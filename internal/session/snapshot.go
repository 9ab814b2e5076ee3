package session

import (
	"context"
	"time"

	"tally/internal/audit"
	"tally/internal/logging"
	"tally/internal/services"
)

// Severity tags a session log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarn    Severity = "warn"
	SeverityError   Severity = "error"
)

// LogEntry is one line of the session log.
type LogEntry struct {
	Sequence uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
}

// Snapshot is a consistent copy of session state.
type Snapshot struct {
	AuditID       string        `json:"audit_id,omitempty"`
	Status        Status        `json:"status"`
	Running       bool          `json:"running"`
	Step          string        `json:"step,omitempty"`
	LedgerName    string        `json:"ledger_name,omitempty"`
	LedgerRows    int           `json:"ledger_rows"`
	LedgerColumns []string      `json:"ledger_columns,omitempty"`
	VideoName     string        `json:"video_name,omitempty"`
	Error         string        `json:"error,omitempty"`
	ErrorKind     string        `json:"error_kind,omitempty"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
	Result        *audit.Result `json:"result,omitempty"`
}

// Snapshot returns the current state. The result is a copy.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		AuditID:   s.auditID,
		Status:    s.status,
		Running:   s.running.Load(),
		Step:      s.step,
		VideoName: s.videoName,
		Result:    s.result.Clone(),
	}
	if s.ledger != nil {
		snap.LedgerName = s.ledgerName
		snap.LedgerRows = s.ledger.Len()
		snap.LedgerColumns = s.ledger.Columns()
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
		snap.ErrorKind = services.Kind(s.lastErr)
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	if !s.finishedAt.IsZero() {
		t := s.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}

// Result returns a copy of the completed result, or nil.
func (s *Session) Result() *audit.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result.Clone()
}

// Logs returns the session log since the last audit started.
func (s *Session) Logs() []LogEntry {
	events, _ := s.hub.Tail(0)
	return toEntries(events)
}

// LogsSince returns entries newer than seq, optionally blocking until one
// arrives, plus the sequence to resume from.
func (s *Session) LogsSince(ctx context.Context, seq uint64, wait bool) ([]LogEntry, uint64, error) {
	events, next, err := s.hub.Fetch(ctx, seq, 0, wait)
	return toEntries(events), next, err
}

func toEntries(events []logging.LogEvent) []LogEntry {
	out := make([]LogEntry, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEntry{
			Sequence: evt.Sequence,
			Time:     evt.Timestamp,
			Message:  evt.Message,
			Severity: severityOf(evt),
		})
	}
	return out
}

func severityOf(evt logging.LogEvent) Severity {
	switch evt.Level {
	case "error":
		return SeverityError
	case "warn":
		return SeverityWarn
	}
	if evt.Outcome == "success" {
		return SeveritySuccess
	}
	return SeverityInfo
}
