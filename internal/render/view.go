package render

import (
	"fmt"
	"time"

	"tally/internal/audit"
	"tally/internal/session"
)

// View is what both renderers display.
type View struct {
	AuditID     string
	Status      session.Status
	Step        string
	Running     bool
	LedgerName  string
	LedgerRows  int
	VideoName   string
	Error       string
	ErrorKind   string
	Result      *audit.Result
	Logs        []session.LogEntry
	GeneratedAt time.Time
}

// FromSnapshot builds a View from session state.
func FromSnapshot(snap session.Snapshot, logs []session.LogEntry) View {
	return View{
		AuditID:     snap.AuditID,
		Status:      snap.Status,
		Step:        snap.Step,
		Running:     snap.Running,
		LedgerName:  snap.LedgerName,
		LedgerRows:  snap.LedgerRows,
		VideoName:   snap.VideoName,
		Error:       snap.Error,
		ErrorKind:   snap.ErrorKind,
		Result:      snap.Result,
		Logs:        logs,
		GeneratedAt: time.Now(),
	}
}

// ConfidenceLabel renders the confidence as a percentage, or the verdict
// when the model gave none.
func ConfidenceLabel(result *audit.Result) string {
	if result == nil {
		return ""
	}
	if result.Confidence == nil {
		return result.Verdict()
	}
	return fmt.Sprintf("%.0f%%", *result.Confidence*100)
}

// ShortID trims an audit ID for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
