package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tally/internal/audit"
	"tally/internal/services"
)

// ErrNotFound is returned by Get when no audit has the requested ID.
var ErrNotFound = errors.New("audit not found")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	defaultListLimit        = 50
)

// Entry is one archived audit.
type Entry struct {
	ID         string        `json:"id"`
	CreatedAt  time.Time     `json:"created_at"`
	FinishedAt time.Time     `json:"finished_at"`
	LedgerName string        `json:"ledger_name"`
	LedgerRows int           `json:"ledger_rows"`
	VideoName  string        `json:"video_name"`
	Result     *audit.Result `json:"result,omitempty"`
}

// Summary is the list view of an archived audit.
type Summary struct {
	ID              string          `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	LedgerName      string          `json:"ledger_name"`
	VideoName       string          `json:"video_name"`
	RiskLevel       audit.RiskLevel `json:"risk_level"`
	Discrepancy     bool            `json:"discrepancy"`
	FinancialImpact string          `json:"financial_impact"`
	Mismatches      int             `json:"mismatches"`
}

// Store persists finished audits in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the archive at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history: empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record archives a finished audit. Recording the same ID twice fails.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return errors.New("history: entry id required")
	}
	if entry.Result == nil {
		return errors.New("history: entry result required")
	}
	payload, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("history: encode result: %w", err)
	}
	if entry.FinishedAt.IsZero() {
		entry.FinishedAt = time.Now()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = entry.FinishedAt
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO audits
			(id, created_at, finished_at, ledger_name, ledger_rows, video_name, risk_level, discrepancy, financial_impact, mismatches, result_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID,
			formatTime(entry.CreatedAt),
			formatTime(entry.FinishedAt),
			entry.LedgerName,
			entry.LedgerRows,
			entry.VideoName,
			string(entry.Result.RiskLevel),
			boolToInt(entry.Result.DiscrepancyFound),
			entry.Result.FinancialImpact,
			entry.Result.Mismatches(),
			string(payload),
		)
		if err != nil {
			return fmt.Errorf("history: insert audit: %w", err)
		}
		return nil
	})
}

// List returns the most recent audits first.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, ledger_name, video_name, risk_level, discrepancy, financial_impact, mismatches
		FROM audits ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list audits: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			summary     Summary
			createdAt   string
			risk        string
			discrepancy int
		)
		if err := rows.Scan(&summary.ID, &createdAt, &summary.LedgerName, &summary.VideoName, &risk, &discrepancy, &summary.FinancialImpact, &summary.Mismatches); err != nil {
			return nil, fmt.Errorf("history: scan audit: %w", err)
		}
		summary.CreatedAt = parseTime(createdAt)
		summary.RiskLevel = audit.RiskLevel(risk)
		summary.Discrepancy = discrepancy != 0
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate audits: %w", err)
	}
	return out, nil
}

// Get loads one archived audit with its full result. An ID prefix of at
// least eight characters is accepted when it is unambiguous.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, finished_at, ledger_name, ledger_rows, video_name, result_json
		FROM audits WHERE id = ? OR (length(?) >= 8 AND id LIKE ? || '%') LIMIT 2`, id, id, id)
	if err != nil {
		return nil, fmt.Errorf("history: get audit: %w", err)
	}
	defer rows.Close()

	var matches []Entry
	for rows.Next() {
		var (
			entry             Entry
			created, finished string
			payload           string
		)
		if err := rows.Scan(&entry.ID, &created, &finished, &entry.LedgerName, &entry.LedgerRows, &entry.VideoName, &payload); err != nil {
			return nil, fmt.Errorf("history: scan audit: %w", err)
		}
		entry.CreatedAt = parseTime(created)
		entry.FinishedAt = parseTime(finished)
		var result audit.Result
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return nil, fmt.Errorf("history: decode result %s: %w", entry.ID, err)
		}
		entry.Result = &result
		matches = append(matches, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate audits: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &matches[0], nil
	default:
		for i := range matches {
			if matches[i].ID == id {
				return &matches[i], nil
			}
		}
		return nil, services.Wrap(services.ErrInput, "history", "get audit", fmt.Sprintf("id prefix %q is ambiguous", id), nil)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
