package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tally/internal/audit"
	"tally/internal/frames"
	"tally/internal/history"
	"tally/internal/ledger"
	"tally/internal/logging"
	"tally/internal/services"
)

// plan is the evidence captured when an audit begins. Later intake changes
// do not affect an audit already running.
type plan struct {
	auditID    string
	ledger     *ledger.Ledger
	ledgerName string
	videoPath  string
	videoName  string
	startedAt  time.Time
}

// Run executes one audit synchronously: sample, request, store the result.
func (s *Session) Run(ctx context.Context) (*audit.Result, error) {
	p, err := s.begin()
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, p)
}

// Start begins an audit in the background and returns its ID. The audit
// keeps running if ctx is cancelled after Start returns.
func (s *Session) Start(ctx context.Context) (string, error) {
	p, err := s.begin()
	if err != nil {
		return "", err
	}
	go func() {
		_, _ = s.execute(context.WithoutCancel(ctx), p)
	}()
	return p.auditID, nil
}

func (s *Session) begin() (plan, error) {
	if !s.running.CompareAndSwap(false, true) {
		return plan{}, ErrAuditInFlight
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []string
	if s.ledger == nil {
		missing = append(missing, "ledger")
	}
	if s.videoPath == "" {
		missing = append(missing, "video")
	}
	if len(missing) > 0 {
		s.running.Store(false)
		return plan{}, services.Wrap(services.ErrInput, "intake", "start audit",
			fmt.Sprintf("load a %s before starting an audit", joinAnd(missing)), nil)
	}

	if s.ledger.Len() == 0 {
		s.running.Store(false)
		return plan{}, services.Wrap(services.ErrInput, "intake", "start audit", "the loaded ledger has no data rows", nil)
	}

	p := plan{
		auditID:    uuid.NewString(),
		ledger:     s.ledger,
		ledgerName: s.ledgerName,
		videoPath:  s.videoPath,
		videoName:  s.videoName,
		startedAt:  time.Now(),
	}
	s.hub.Reset()
	s.result = nil
	s.lastErr = nil
	s.auditID = p.auditID
	s.startedAt = p.startedAt
	s.finishedAt = time.Time{}
	s.status = StatusSampling
	s.step = ""
	return p, nil
}

func (s *Session) execute(ctx context.Context, p plan) (*audit.Result, error) {
	defer s.running.Store(false)

	ctx = services.WithAuditID(ctx, p.auditID)
	logger := logging.WithContext(ctx, s.logger)
	logger.Info("Audit started",
		logging.String("ledger", p.ledgerName),
		logging.String("video", p.videoName),
		logging.String(logging.FieldEventType, "audit_start"),
	)

	sampleCtx := services.WithStage(ctx, string(StatusSampling))
	sampleLogger := logging.WithContext(sampleCtx, s.logger)
	sampler := frames.NewSampler(s.opener,
		frames.WithLogger(sampleLogger),
		frames.WithObserver(func(step frames.Step) { s.observeStep(sampleLogger, step) }),
	)
	captured, err := sampler.Sample(sampleCtx, p.videoPath)
	if err != nil {
		return nil, s.fail(sampleLogger, "Frame sampling failed", err)
	}
	sampleLogger.Info(fmt.Sprintf("Captured %d frames", len(captured)),
		logging.String(logging.FieldOutcome, "success"),
		logging.String(logging.FieldEventType, "frames_sampled"),
	)

	s.setStatus(StatusRequesting)
	reqCtx := services.WithStage(ctx, string(StatusRequesting))
	reqLogger := logging.WithContext(reqCtx, s.logger)
	excerptRows := min(s.excerptRows, p.ledger.Len())
	excerpt, err := p.ledger.Excerpt(excerptRows)
	if err != nil {
		return nil, s.fail(reqLogger, "Ledger excerpt failed", err)
	}
	if s.submitter == nil {
		return nil, s.fail(reqLogger, "Audit request failed",
			services.Wrap(services.ErrConfiguration, "requesting", "submit audit", "no reasoning service configured", nil))
	}
	reqLogger.Info(fmt.Sprintf("Submitting %d ledger rows and %d frames for analysis", excerptRows, len(captured)),
		logging.String(logging.FieldEventType, "audit_request"),
	)
	requestStart := time.Now()
	result, err := s.submitter.SubmitAudit(reqCtx, audit.Request{
		Excerpt:     excerpt,
		ExcerptRows: excerptRows,
		TotalRows:   p.ledger.Len(),
		Columns:     p.ledger.Columns(),
		Frames:      captured,
	})
	if err != nil {
		return nil, s.fail(reqLogger, "Audit request failed", err)
	}
	if result == nil {
		return nil, s.fail(reqLogger, "Audit request failed",
			services.Wrap(services.ErrParse, "requesting", "submit audit", "reasoning service returned no result", nil))
	}

	finished := time.Now()
	s.mu.Lock()
	s.result = result.Clone()
	s.status = StatusComplete
	s.step = ""
	s.finishedAt = finished
	s.mu.Unlock()

	reqLogger.Info(fmt.Sprintf("Audit complete: %s risk, %d of %d items mismatched", result.RiskLevel, result.Mismatches(), len(result.Items)),
		logging.Duration("elapsed", finished.Sub(p.startedAt)),
		logging.Duration("request_elapsed", finished.Sub(requestStart)),
		logging.String(logging.FieldOutcome, "success"),
		logging.String(logging.FieldEventType, "audit_complete"),
	)
	s.archiveResult(ctx, logger, p, result, finished)
	return result.Clone(), nil
}

func (s *Session) observeStep(logger *slog.Logger, step frames.Step) {
	offset := frames.Offsets[step.Index]
	s.mu.Lock()
	s.step = step.String()
	s.mu.Unlock()
	switch step.Kind {
	case frames.StepSeeking:
		logger.Info(fmt.Sprintf("Seeking to %.0f%% (%.1fs)", offset*100, step.Seconds),
			logging.String(logging.FieldEventType, "frame_seek"))
	case frames.StepCaptured:
		logger.Info(fmt.Sprintf("Captured frame %d/%d", step.Index+1, len(frames.Offsets)),
			logging.String(logging.FieldEventType, "frame_captured"))
	}
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.step = ""
	s.mu.Unlock()
}

// fail records err as the terminal outcome of the running audit.
func (s *Session) fail(logger *slog.Logger, message string, err error) error {
	s.mu.Lock()
	s.markErrorLocked(err)
	s.finishedAt = time.Now()
	s.mu.Unlock()
	logger.Error(fmt.Sprintf("%s: %v", message, err),
		logging.String("error_kind", services.Kind(err)),
		logging.String(logging.FieldEventType, "audit_failed"),
	)
	return err
}

func (s *Session) archiveResult(ctx context.Context, logger *slog.Logger, p plan, result *audit.Result, finished time.Time) {
	if s.archive == nil {
		return
	}
	err := s.archive.Record(ctx, history.Entry{
		ID:         p.auditID,
		CreatedAt:  p.startedAt,
		FinishedAt: finished,
		LedgerName: p.ledgerName,
		LedgerRows: p.ledger.Len(),
		VideoName:  p.videoName,
		Result:     result.Clone(),
	})
	if err != nil {
		logging.WarnWithContext(logger, "Audit archive failed", "archive_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions and free space"),
			logging.String(logging.FieldImpact, "result is available now but will not appear in history"),
		)
	}
}

func joinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return items[0] + " and a " + items[1]
	}
}
