package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tally/internal/audit"
	"tally/internal/certificate"
	"tally/internal/history"
	"tally/internal/logging"
	"tally/internal/render"
	"tally/internal/services"
	"tally/internal/session"
)

type ledgerResponse struct {
	LedgerName string   `json:"ledger_name"`
	Rows       int      `json:"rows"`
	Columns    []string `json:"columns"`
}

type videoResponse struct {
	VideoName string `json:"video_name"`
}

type auditStartedResponse struct {
	AuditID string         `json:"audit_id"`
	Status  session.Status `json:"status"`
}

type logsResponse struct {
	Entries []session.LogEntry `json:"entries"`
	Next    uint64             `json:"next"`
}

type resultResponse struct {
	AuditID    string        `json:"audit_id"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Result     *audit.Result `json:"result"`
}

type historyListResponse struct {
	Audits []history.Summary `json:"audits"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	view := render.FromSnapshot(s.session.Snapshot(), s.session.Logs())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.HTML(w, view, render.HTMLOptions{Interactive: true}); err != nil {
		s.logger.Error("dashboard render failed", logging.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	wait := query.Get("wait") == "1" || strings.EqualFold(query.Get("wait"), "true")

	ctx := r.Context()
	if wait {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, logWaitTimeout)
		defer cancel()
	}
	entries, next, err := s.session.LogsSince(ctx, since, wait)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		writeError(w, s.logger, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, logsResponse{Entries: entries, Next: next})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLedgerBytes)
	name, body, err := uploadReader(r, "ledger.csv")
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	rows, err := s.session.LoadLedger(name, body)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	snap := s.session.Snapshot()
	writeJSON(w, s.logger, http.StatusOK, ledgerResponse{LedgerName: snap.LedgerName, Rows: rows, Columns: snap.LedgerColumns})
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxVideoBytes)
	name, body, err := uploadReader(r, "video")
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	if _, err := s.session.StageVideo(name, body); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, videoResponse{VideoName: s.session.Snapshot().VideoName})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	id, err := s.session.Start(r.Context())
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusAccepted, auditStartedResponse{AuditID: id, Status: session.StatusSampling})
}

func (s *Server) handleResult(w http.ResponseWriter, _ *http.Request) {
	snap := s.session.Snapshot()
	if snap.Result == nil {
		writeError(w, s.logger, http.StatusNotFound, "no audit result available")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, resultResponse{AuditID: snap.AuditID, FinishedAt: snap.FinishedAt, Result: snap.Result})
}

func (s *Server) handleCertificate(w http.ResponseWriter, r *http.Request) {
	format, err := certificate.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	snap := s.session.Snapshot()
	if snap.Result == nil {
		writeError(w, s.logger, http.StatusNotFound, "no audit result available")
		return
	}
	meta := certificate.Meta{
		AuditID:    snap.AuditID,
		LedgerName: snap.LedgerName,
		VideoName:  snap.VideoName,
	}
	if snap.FinishedAt != nil {
		meta.IssuedAt = *snap.FinishedAt
	}
	data, err := s.exporter.Render(r.Context(), snap.Result, meta, format)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": certificate.DefaultFileName(snap.AuditID, format),
	}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, s.logger, http.StatusNotFound, "history is disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	audits, err := s.history.List(r.Context(), limit)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, historyListResponse{Audits: audits})
}

func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, s.logger, http.StatusNotFound, "history is disabled")
		return
	}
	entry, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, entry)
}

// uploadReader streams the "file" part of a multipart body, or the raw body
// named by the "name" query parameter.
func uploadReader(r *http.Request, fallbackName string) (string, io.Reader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		name := strings.TrimSpace(r.URL.Query().Get("name"))
		if name == "" {
			name = fallbackName
		}
		return name, r.Body, nil
	}
	reader, err := r.MultipartReader()
	if err != nil {
		return "", nil, services.Wrap(services.ErrInput, "intake", "upload", "invalid multipart body", err)
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return "", nil, services.Wrap(services.ErrInput, "intake", "upload", `multipart body has no "file" field`, nil)
		}
		if err != nil {
			return "", nil, services.Wrap(services.ErrInput, "intake", "upload", "read multipart body", err)
		}
		if part.FormName() != "file" {
			continue
		}
		name := part.FileName()
		if name == "" {
			name = fallbackName
		}
		return name, part, nil
	}
}
