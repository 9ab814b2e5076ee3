package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tally/internal/audit"
	"tally/internal/frames"
	"tally/internal/history"
	"tally/internal/ledger"
	"tally/internal/logging"
	"tally/internal/services"
	"tally/internal/staging"
)

// ErrAuditInFlight rejects a second audit or an evidence change while one runs.
var ErrAuditInFlight = errors.New("an audit is already in progress")

// Status is the audit lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSampling   Status = "sampling"
	StatusRequesting Status = "requesting"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Archiver stores finished audits.
type Archiver interface {
	Record(ctx context.Context, entry history.Entry) error
}

// Options wires a Session.
type Options struct {
	Opener      frames.Opener
	Submitter   audit.Submitter
	ExcerptRows int
	StagingDir  string
	Archive     Archiver
	Logger      *slog.Logger
	LogCapacity int
}

// Session owns the evidence, status, result and log of the current audit.
// All fields are guarded by mu; running guards Run itself so a second audit
// is refused without waiting.
type Session struct {
	opener      frames.Opener
	submitter   audit.Submitter
	excerptRows int
	stagingDir  string
	archive     Archiver
	hub         *logging.StreamHub
	logger      *slog.Logger
	running     atomic.Bool

	mu         sync.Mutex
	workDir    string
	ledger     *ledger.Ledger
	ledgerName string
	videoPath  string
	videoName  string
	ownsVideo  bool
	status     Status
	step       string
	lastErr    error
	auditID    string
	result     *audit.Result
	startedAt  time.Time
	finishedAt time.Time
}

// New constructs an idle session.
func New(opts Options) *Session {
	capacity := opts.LogCapacity
	if capacity <= 0 {
		capacity = 256
	}
	hub := logging.NewStreamHub(capacity)
	base := opts.Logger
	if base == nil {
		base = logging.NewNop()
	}
	logger := logging.NewComponentLogger(logging.TeeLogger(base, logging.NewStreamHandler(hub, slog.LevelInfo)), "session")
	rows := opts.ExcerptRows
	if rows <= 0 {
		rows = 12
	}
	return &Session{
		opener:      opts.Opener,
		submitter:   opts.Submitter,
		excerptRows: rows,
		stagingDir:  opts.StagingDir,
		archive:     opts.Archive,
		hub:         hub,
		logger:      logger,
		status:      StatusIdle,
	}
}

// Hub exposes the session log stream for long-polling clients.
func (s *Session) Hub() *logging.StreamHub {
	return s.hub
}

// Running reports whether an audit is in flight.
func (s *Session) Running() bool {
	return s.running.Load()
}

// LoadLedger parses r as the claimed inventory. A parse failure clears any
// previously loaded ledger and result, logs the error and moves the session
// to error.
func (s *Session) LoadLedger(name string, r io.Reader) (int, error) {
	if s.running.Load() {
		return 0, ErrAuditInFlight
	}
	name = displayName(name, "ledger")
	parsed, err := ledger.Parse(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	// an audit may have started while parsing
	if s.running.Load() {
		return 0, ErrAuditInFlight
	}
	if err != nil {
		s.ledger = nil
		s.ledgerName = ""
		s.markErrorLocked(err)
		logging.ErrorWithContext(s.logger, "ledger rejected", "ledger_rejected",
			logging.String("file", name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the file has a header row and consistent quoting"),
		)
		return 0, err
	}
	s.ledger = parsed
	s.ledgerName = name
	if s.status == StatusError {
		s.status = StatusIdle
		s.lastErr = nil
	}
	s.logger.Info(fmt.Sprintf("Ledger loaded: %d rows", parsed.Len()),
		logging.String("file", name),
		logging.Int("columns", len(parsed.Columns())),
		logging.String(logging.FieldOutcome, "success"),
		logging.String(logging.FieldEventType, "ledger_loaded"),
	)
	return parsed.Len(), nil
}

// StageVideo copies r into the session work directory, replacing any
// previously staged copy.
func (s *Session) StageVideo(name string, r io.Reader) (string, error) {
	if s.running.Load() {
		return "", ErrAuditInFlight
	}
	name = displayName(name, "video")
	dir, err := s.ensureWorkDir()
	if err != nil {
		return "", err
	}
	target := filepath.Join(dir, "video-"+uuid.NewString()[:8]+filepath.Ext(name))
	file, err := os.Create(target)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "intake", "stage video", "create staging file", err)
	}
	size, copyErr := io.Copy(file, r)
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(target)
		return "", services.Wrap(services.ErrInput, "intake", "stage video", "upload interrupted", copyErr)
	}
	if size == 0 {
		_ = os.Remove(target)
		return "", services.Wrap(services.ErrInput, "intake", "stage video", "video is empty", nil)
	}
	if err := s.setVideo(target, name, true); err != nil {
		_ = os.Remove(target)
		return "", err
	}
	s.logger.Info("Video staged",
		logging.String("file", name),
		logging.Int64("bytes", size),
		logging.String(logging.FieldEventType, "video_staged"),
	)
	return target, nil
}

// UseVideo points the session at an existing file without copying it.
func (s *Session) UseVideo(path string) error {
	if s.running.Load() {
		return ErrAuditInFlight
	}
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrInput, "intake", "use video", "video not found", err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrInput, "intake", "use video", "video path is a directory", nil)
	}
	if err := s.setVideo(path, filepath.Base(path), false); err != nil {
		return err
	}
	s.logger.Info("Video selected",
		logging.String("file", filepath.Base(path)),
		logging.Int64("bytes", info.Size()),
		logging.String(logging.FieldEventType, "video_staged"),
	)
	return nil
}

// setVideo swaps in the new video unless an audit started while it was
// being staged; the running plan may be sampling the current file.
func (s *Session) setVideo(path, name string, owned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrAuditInFlight
	}
	if s.ownsVideo && s.videoPath != "" && s.videoPath != path {
		_ = os.Remove(s.videoPath)
	}
	s.videoPath = path
	s.videoName = name
	s.ownsVideo = owned
	return nil
}

// markErrorLocked moves the session to error and drops the previous result
// so it is never shown next to the new failure. Callers hold mu.
func (s *Session) markErrorLocked(err error) {
	s.status = StatusError
	s.lastErr = err
	s.result = nil
	s.finishedAt = time.Time{}
}

func (s *Session) ensureWorkDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workDir != "" {
		return s.workDir, nil
	}
	if s.stagingDir != "" {
		if err := os.MkdirAll(s.stagingDir, 0o755); err != nil {
			return "", services.Wrap(services.ErrConfiguration, "intake", "stage video", "create staging dir", err)
		}
	}
	dir, err := os.MkdirTemp(s.stagingDir, staging.WorkDirPrefix)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "intake", "stage video", "create session dir", err)
	}
	s.workDir = dir
	return dir, nil
}

// Close removes staged evidence.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workDir == "" {
		return nil
	}
	err := os.RemoveAll(s.workDir)
	s.workDir = ""
	if s.ownsVideo {
		s.videoPath = ""
		s.videoName = ""
		s.ownsVideo = false
	}
	return err
}

func displayName(name, fallback string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return fallback
	}
	return name
}
