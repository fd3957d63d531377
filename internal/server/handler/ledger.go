package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// LedgerService defines what the ledger handler needs from the service layer.
type LedgerService interface {
	EnsureAccount(ctx context.Context, userID string) error
	GetBalance(ctx context.Context, userID, asset string) (domain.Balance, error)
	ListBalances(ctx context.Context, userID string) ([]domain.Balance, error)
	Deposit(ctx context.Context, userID, asset string, amount float64) (float64, error)
	Transfer(ctx context.Context, senderID, receiverID, asset string, amount float64) error
}

// LedgerHandler serves account, balance, deposit, and transfer endpoints.
type LedgerHandler struct {
	ledger LedgerService
	logger *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler with the given service and logger.
func NewLedgerHandler(ledger LedgerService, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger: ledger,
		logger: logger,
	}
}

// EnsureAccount registers a user identifier. Idempotent.
// POST /api/accounts
func (h *LedgerHandler) EnsureAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := h.ledger.EnsureAccount(r.Context(), req.UserID); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: ensure account failed",
			slog.String("user", req.UserID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"user_id": req.UserID})
}

// GetBalances returns one balance when ?asset= is given, otherwise every
// balance the user holds.
// GET /api/balances/{user}?asset=...
func (h *LedgerHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}

	if asset := r.URL.Query().Get("asset"); asset != "" {
		bal, err := h.ledger.GetBalance(r.Context(), userID, asset)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: get balance failed",
				slog.String("user", userID),
				slog.String("asset", asset),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to get balance")
			return
		}
		writeJSON(w, http.StatusOK, balanceResponse(bal))
		return
	}

	bals, err := h.ledger.ListBalances(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list balances failed",
			slog.String("user", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list balances")
		return
	}

	out := make([]map[string]any, len(bals))
	for i, b := range bals {
		out[i] = balanceResponse(b)
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": out})
}

// Deposit mints funds into a user's available balance.
// POST /api/deposits
func (h *LedgerHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string  `json:"user_id"`
		Asset  string  `json:"asset"`
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.Asset == "" {
		writeError(w, http.StatusBadRequest, "user_id and asset are required")
		return
	}

	newAmount, err := h.ledger.Deposit(r.Context(), req.UserID, req.Asset, req.Amount)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, "amount must be positive")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: deposit failed",
			slog.String("user", req.UserID),
			slog.String("asset", req.Asset),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to deposit")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user_id": req.UserID,
		"asset":   req.Asset,
		"balance": newAmount,
	})
}

// Transfer moves funds between two users.
// POST /api/transfers
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID   string  `json:"sender_id"`
		ReceiverID string  `json:"receiver_id"`
		Asset      string  `json:"asset"`
		Amount     float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SenderID == "" || req.ReceiverID == "" || req.Asset == "" {
		writeError(w, http.StatusBadRequest, "sender_id, receiver_id and asset are required")
		return
	}

	if err := h.ledger.Transfer(r.Context(), req.SenderID, req.ReceiverID, req.Asset, req.Amount); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, domain.ErrInsufficientFunds):
			writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
		default:
			h.logger.ErrorContext(r.Context(), "handler: transfer failed",
				slog.String("sender", req.SenderID),
				slog.String("receiver", req.ReceiverID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to transfer")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

func balanceResponse(b domain.Balance) map[string]any {
	return map[string]any{
		"user_id":   b.UserID,
		"asset":     b.Asset,
		"available": b.Available,
		"locked":    b.Locked,
		"total":     b.Total(),
	}
}
