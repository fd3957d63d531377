package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// MatchingService defines what the order handler needs from the service layer.
type MatchingService interface {
	PlaceOrder(ctx context.Context, userID string, side domain.OrderSide, pair domain.TradingPair, amount, price float64) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID, userID string) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOpenOrders(ctx context.Context, userID string) ([]domain.Order, error)
	ReplayTrades(ctx context.Context, afterID string, limit int) ([]domain.StreamMessage, error)
}

// OrderHandler serves the order and matching endpoints.
type OrderHandler struct {
	matching MatchingService
	logger   *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(matching MatchingService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		matching: matching,
		logger:   logger,
	}
}

// PlaceOrder places a limit order and matches it immediately. The response
// reflects any fills that happened during placement.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string  `json:"user_id"`
		Side   string  `json:"side"`
		Pair   string  `json:"pair"`
		Amount float64 `json:"amount"`
		Price  float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	side := domain.OrderSide(req.Side)
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		writeError(w, http.StatusBadRequest, `side must be "buy" or "sell"`)
		return
	}

	pair, err := domain.ParsePair(req.Pair)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pair: "+req.Pair)
		return
	}

	order, err := h.matching.PlaceOrder(r.Context(), req.UserID, side, pair, req.Amount, req.Price)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount and price must be positive")
		case errors.Is(err, domain.ErrSameAsset):
			writeError(w, http.StatusBadRequest, "pair legs must differ")
		case errors.Is(err, domain.ErrInsufficientFunds):
			writeError(w, http.StatusUnprocessableEntity, "insufficient funds for escrow")
		case errors.Is(err, domain.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "rate limited")
		default:
			h.logger.ErrorContext(r.Context(), "handler: place order failed",
				slog.String("user", req.UserID),
				slog.String("pair", req.Pair),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to place order")
		}
		return
	}

	writeJSON(w, http.StatusCreated, orderResponse(order))
}

// CancelOrder cancels an open or partially filled order owned by the caller.
// DELETE /api/orders/{id}?user=...
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	userID := r.URL.Query().Get("user")
	if id == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "order id and user are required")
		return
	}

	if err := h.matching.CancelOrder(r.Context(), id, userID); err != nil {
		if errors.Is(err, domain.ErrNoSuchOrder) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: cancel order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel order")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"order_id": id,
	})
}

// GetOrder returns a single order by id.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.matching.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNoSuchOrder) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}

	writeJSON(w, http.StatusOK, orderResponse(order))
}

// ListOrders returns the user's open and partially filled orders.
// GET /api/orders?user=...
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter required")
		return
	}

	orders, err := h.matching.ListOpenOrders(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("user", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	out := make([]map[string]any, len(orders))
	for i, o := range orders {
		out[i] = orderResponse(o)
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

// ReplayTrades serves the durable trade tape so clients can catch up on
// trades missed while disconnected from the WebSocket stream.
// GET /api/trades?after=<stream id>&limit=N
func (h *OrderHandler) ReplayTrades(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.matching.ReplayTrades(r.Context(), r.URL.Query().Get("after"), queryLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: replay trades failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to replay trades")
		return
	}

	out := make([]map[string]any, len(msgs))
	for i, msg := range msgs {
		out[i] = map[string]any{
			"id":    msg.ID,
			"trade": json.RawMessage(msg.Payload),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": out})
}

func orderResponse(o domain.Order) map[string]any {
	return map[string]any{
		"order_id":   o.ID,
		"user_id":    o.UserID,
		"side":       string(o.Side),
		"pair":       o.Pair.String(),
		"amount":     o.Amount,
		"price":      o.Price,
		"filled":     o.Filled,
		"remaining":  o.Remaining(),
		"status":     string(o.Status),
		"created_at": o.CreatedAt,
	}
}
