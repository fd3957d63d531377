package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/coinledger/internal/domain"
	"github.com/alanyoungcy/coinledger/internal/service"
)

// SwapService defines what the swap handler needs from the service layer.
type SwapService interface {
	Swap(ctx context.Context, userID, from, to string, amount float64) (service.SwapResult, error)
}

// PriceService defines what the price endpoints need from the service layer.
type PriceService interface {
	GetPrice(ctx context.Context, asset string) (float64, error)
	ConvertToFiat(ctx context.Context, asset string, amount float64) (float64, error)
	Fiat() string
}

// SwapHandler serves the swap and oracle price endpoints.
type SwapHandler struct {
	swaps  SwapService
	prices PriceService
	logger *slog.Logger
}

// NewSwapHandler creates a SwapHandler with the given services and logger.
func NewSwapHandler(swaps SwapService, prices PriceService, logger *slog.Logger) *SwapHandler {
	return &SwapHandler{
		swaps:  swaps,
		prices: prices,
		logger: logger,
	}
}

// Swap converts one asset to another at the oracle cross-rate.
// POST /api/swaps
func (h *SwapHandler) Swap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string  `json:"user_id"`
		From   string  `json:"from"`
		To     string  `json:"to"`
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.From == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, "user_id, from and to are required")
		return
	}

	result, err := h.swaps.Swap(r.Context(), req.UserID, req.From, req.To, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSameAsset):
			writeError(w, http.StatusBadRequest, "from and to must differ")
		case errors.Is(err, domain.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, domain.ErrInsufficientFunds):
			writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
		case errors.Is(err, domain.ErrPriceUnavailable):
			writeError(w, http.StatusBadGateway, "price unavailable")
		default:
			h.logger.ErrorContext(r.Context(), "handler: swap failed",
				slog.String("user", req.UserID),
				slog.String("from", req.From),
				slog.String("to", req.To),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to swap")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"from":     result.FromAsset,
		"to":       result.ToAsset,
		"spent":    result.Spent,
		"received": result.Received,
		"rate":     result.Rate,
	})
}

// GetPrice returns the oracle price in the configured fiat currency. With
// ?amount= the response also carries the fiat value of that amount.
// GET /api/prices/{asset}?amount=N
func (h *SwapHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	asset := pathParam(r, "asset")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "missing asset")
		return
	}

	price, err := h.prices.GetPrice(r.Context(), asset)
	if err != nil {
		if errors.Is(err, domain.ErrPriceUnavailable) {
			writeError(w, http.StatusBadGateway, "price unavailable")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get price failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get price")
		return
	}

	resp := map[string]any{
		"asset": asset,
		"fiat":  h.prices.Fiat(),
		"price": price,
	}

	if v := r.URL.Query().Get("amount"); v != "" {
		amount, err := strconv.ParseFloat(v, 64)
		if err != nil || amount < 0 {
			writeError(w, http.StatusBadRequest, "invalid amount")
			return
		}
		resp["amount"] = amount
		resp["value"] = amount * price
	}

	writeJSON(w, http.StatusOK, resp)
}
