package profile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"docloom/internal/middleware"
	"docloom/internal/settings"
)

type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := h.registry.Status(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build profile status", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": payload}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	profiles, err := h.registry.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list profiles", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	if profiles == nil {
		profiles = []Profile{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": profiles,
		"meta": map[string]int{"count": len(profiles)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var s settings.EmbeddingSettings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "invalid JSON body", http.StatusBadRequest)
		return
	}

	draft, err := h.registry.SaveSettings(ctx, s)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSettings):
			h.writeError(ctx, w, "INVALID_SETTINGS", err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, ErrDimensionMismatch):
			h.writeError(ctx, w, "DIMENSION_MISMATCH", err.Error(), http.StatusUnprocessableEntity)
		default:
			slog.ErrorContext(ctx, "failed to save embedding settings", "error", err, "correlationId", correlationID)
			h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": draft}); err != nil {
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
