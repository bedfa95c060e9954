package reindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"docloom/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type createRunRequest struct {
	ProfileID string `json:"profile_id"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(ctx, w, "BAD_REQUEST", "invalid JSON body", http.StatusBadRequest)
		return
	}

	run, err := h.service.CreateRun(ctx, req.ProfileID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoDraftProfile):
			h.writeError(ctx, w, "NO_DRAFT_PROFILE", err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, ErrTargetIsActive):
			h.writeError(ctx, w, "TARGET_ALREADY_ACTIVE", err.Error(), http.StatusConflict)
		case errors.Is(err, ErrRunInProgress):
			h.writeError(ctx, w, "RUN_IN_PROGRESS", err.Error(), http.StatusConflict)
		default:
			slog.ErrorContext(ctx, "failed to create reindex run", "error", err, "correlationId", correlationID)
			h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	h.writeData(ctx, w, http.StatusCreated, run)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	runs, err := h.service.List(ctx, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list reindex runs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	if runs == nil {
		runs = []Run{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": runs,
		"meta": map[string]int{"count": len(runs)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	run, items, err := h.service.Get(ctx, r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		h.writeError(ctx, w, "NOT_FOUND", "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to load reindex run", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	if items == nil {
		items = []Item{}
	}
	h.writeData(ctx, w, http.StatusOK, map[string]interface{}{"run": run, "items": items})
}

func (h *Handler) CatchupPreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	preview, err := h.service.Preview(ctx, r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		h.writeError(ctx, w, "NOT_FOUND", "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to build catch-up preview", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeData(ctx, w, http.StatusOK, preview)
}

func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	run, err := h.service.Apply(ctx, r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.writeError(ctx, w, "NOT_FOUND", "run not found", http.StatusNotFound)
		case errors.Is(err, ErrNotApplyable):
			h.writeError(ctx, w, "NOT_APPLYABLE", err.Error(), http.StatusConflict)
		case errors.Is(err, ErrApplyBlocked):
			h.writeError(ctx, w, "APPLY_BLOCKED", err.Error(), http.StatusConflict)
		default:
			slog.ErrorContext(ctx, "failed to apply reindex run", "error", err, "correlationId", correlationID)
			h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	h.writeData(ctx, w, http.StatusOK, run)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	err := h.service.Cancel(ctx, r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.writeError(ctx, w, "NOT_FOUND", "run not found", http.StatusNotFound)
		case errors.Is(err, ErrNotCancellable):
			h.writeError(ctx, w, "NOT_CANCELLABLE", err.Error(), http.StatusConflict)
		default:
			slog.ErrorContext(ctx, "failed to cancel reindex run", "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeData(ctx context.Context, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
