package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// HistoryService defines what the history handler needs from the service
// layer.
type HistoryService interface {
	History(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error)
	ArchivedHistory(ctx context.Context, month string) ([]domain.TransactionRecord, error)
}

// HistoryHandler serves the classified transaction history endpoint.
type HistoryHandler struct {
	history HistoryService
	logger  *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler with the given service and logger.
func NewHistoryHandler(history HistoryService, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		history: history,
		logger:  logger,
	}
}

// GetHistory returns the most recent records touching the user, classified
// relative to them.
// GET /api/transactions/{user}?limit=N
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}

	entries, err := h.history.History(r.Context(), userID, queryLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get history failed",
			slog.String("user", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get history")
		return
	}

	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = map[string]any{
			"id":         e.Record.ID,
			"kind":       string(e.Record.Kind),
			"direction":  string(e.Direction),
			"sender":     e.Record.SenderID,
			"receiver":   e.Record.ReceiverID,
			"asset":      e.Record.Asset,
			"amount":     e.Record.Amount,
			"created_at": e.Record.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

// GetArchive returns the transaction records archived to blob storage for a
// month.
// GET /api/transactions/archive/{month}
func (h *HistoryHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	month := pathParam(r, "month")
	if month == "" {
		writeError(w, http.StatusBadRequest, "missing month")
		return
	}

	records, err := h.history.ArchivedHistory(r.Context(), month)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidMonth):
			writeError(w, http.StatusBadRequest, "month must look like 2026-01")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "no archives for month")
		default:
			h.logger.ErrorContext(r.Context(), "handler: get archive failed",
				slog.String("month", month),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to read archive")
		}
		return
	}

	out := make([]map[string]any, len(records))
	for i, rec := range records {
		out[i] = map[string]any{
			"id":         rec.ID,
			"kind":       string(rec.Kind),
			"sender":     rec.SenderID,
			"receiver":   rec.ReceiverID,
			"asset":      rec.Asset,
			"amount":     rec.Amount,
			"created_at": rec.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": month, "transactions": out})
}
