package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tally/internal/frames"
	"tally/internal/logging"
	"tally/internal/services"
	"tally/internal/services/llm"
)

// Request is everything one audit sends to the reasoning service.
type Request struct {
	// Excerpt is the JSON text block of leading ledger rows.
	Excerpt     string
	ExcerptRows int
	TotalRows   int
	Columns     []string
	Frames      []frames.Frame
}

// Validate checks the request preconditions.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Excerpt) == "" || r.ExcerptRows <= 0 {
		return services.Wrap(services.ErrInput, stageRequesting, "submit audit", "ledger excerpt is empty", nil)
	}
	if len(r.Frames) != len(frames.Offsets) {
		return services.Wrap(services.ErrInput, stageRequesting, "submit audit",
			fmt.Sprintf("expected %d frames, got %d", len(frames.Offsets), len(r.Frames)), nil)
	}
	return nil
}

// Submitter sends one audit request and returns the parsed verdict.
type Submitter interface {
	SubmitAudit(ctx context.Context, req Request) (*Result, error)
}

// visionCompleter is the part of llm.Client the submitter needs.
type visionCompleter interface {
	CompleteVisionJSON(ctx context.Context, systemPrompt, userText string, images []llm.Image) (string, error)
}

// LLMSubmitter submits audits to a multimodal chat model.
type LLMSubmitter struct {
	client visionCompleter
	logger *slog.Logger
}

// NewLLMSubmitter wraps client. The client should be configured for a single
// attempt: a failed audit is reported, never silently retried.
func NewLLMSubmitter(client visionCompleter, logger *slog.Logger) *LLMSubmitter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LLMSubmitter{client: client, logger: logger}
}

// SubmitAudit implements Submitter.
func (s *LLMSubmitter) SubmitAudit(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s == nil || s.client == nil {
		return nil, services.Wrap(services.ErrConfiguration, stageRequesting, "submit audit", "reasoning client not configured", nil)
	}
	logger := logging.WithContext(ctx, s.logger)

	images := make([]llm.Image, len(req.Frames))
	for i, f := range req.Frames {
		images[i] = llm.Image{MIMEType: f.MIMEType, Data: f.Data}
	}

	start := time.Now()
	content, err := s.client.CompleteVisionJSON(ctx, SystemPrompt, UserPrompt(req), images)
	if err != nil {
		return nil, classifyServiceError(err)
	}
	logger.Debug("reasoning response received",
		logging.Duration("elapsed", time.Since(start)),
		logging.Int("bytes", len(content)),
		logging.String(logging.FieldEventType, "audit_response"),
	)
	return ParseResult(content)
}

func classifyServiceError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTransient, stageRequesting, "submit audit", "request timed out or was cancelled", err)
	}
	var statusErr *llm.HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, stageRequesting, "submit audit", "reasoning service rejected the API key", err)
		case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
			return services.Wrap(services.ErrExternalTool, stageRequesting, "submit audit", "reasoning service rejected the request", err)
		}
	}
	return services.Wrap(services.ErrTransient, stageRequesting, "submit audit", "reasoning service call failed", err)
}
