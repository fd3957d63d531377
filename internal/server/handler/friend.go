package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// FriendService defines what the friend handler needs from the service layer.
type FriendService interface {
	SendRequest(ctx context.Context, senderID, receiverID string) (domain.FriendRequest, error)
	Respond(ctx context.Context, senderID, receiverID string, accept bool) error
	ListFriends(ctx context.Context, userID string) ([]string, error)
	ListPendingRequests(ctx context.Context, receiverID string) ([]domain.FriendRequest, error)
	TransferToFriend(ctx context.Context, senderID, receiverID, asset string, amount float64) error
}

// FriendHandler serves the social-graph endpoints.
type FriendHandler struct {
	friends FriendService
	logger  *slog.Logger
}

// NewFriendHandler creates a FriendHandler with the given service and logger.
func NewFriendHandler(friends FriendService, logger *slog.Logger) *FriendHandler {
	return &FriendHandler{
		friends: friends,
		logger:  logger,
	}
}

// SendRequest creates a pending friend request.
// POST /api/friends/requests
func (h *FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID   string `json:"sender_id"`
		ReceiverID string `json:"receiver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SenderID == "" || req.ReceiverID == "" {
		writeError(w, http.StatusBadRequest, "sender_id and receiver_id are required")
		return
	}

	created, err := h.friends.SendRequest(r.Context(), req.SenderID, req.ReceiverID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSelfTarget):
			writeError(w, http.StatusBadRequest, "cannot befriend yourself")
		case errors.Is(err, domain.ErrAlreadyFriends):
			writeError(w, http.StatusConflict, "already friends")
		case errors.Is(err, domain.ErrDuplicateRequest):
			writeError(w, http.StatusConflict, "request already pending")
		default:
			h.logger.ErrorContext(r.Context(), "handler: send friend request failed",
				slog.String("sender", req.SenderID),
				slog.String("receiver", req.ReceiverID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to send friend request")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"request_id": created.ID,
		"sender":     created.SenderID,
		"receiver":   created.ReceiverID,
		"status":     string(created.Status),
		"created_at": created.CreatedAt,
	})
}

// Respond accepts or declines a pending friend request.
// POST /api/friends/requests/respond
func (h *FriendHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID   string `json:"sender_id"`
		ReceiverID string `json:"receiver_id"`
		Accept     bool   `json:"accept"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SenderID == "" || req.ReceiverID == "" {
		writeError(w, http.StatusBadRequest, "sender_id and receiver_id are required")
		return
	}

	if err := h.friends.Respond(r.Context(), req.SenderID, req.ReceiverID, req.Accept); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no pending request")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: respond to friend request failed",
			slog.String("sender", req.SenderID),
			slog.String("receiver", req.ReceiverID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to respond to friend request")
		return
	}

	status := "declined"
	if req.Accept {
		status = "accepted"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// ListFriends returns the user's friend list.
// GET /api/friends/{user}
func (h *FriendHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}

	friends, err := h.friends.ListFriends(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list friends failed",
			slog.String("user", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list friends")
		return
	}

	if friends == nil {
		friends = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"friends": friends})
}

// ListPending returns the unanswered requests waiting on the user.
// GET /api/friends/{user}/requests
func (h *FriendHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}

	reqs, err := h.friends.ListPendingRequests(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list pending requests failed",
			slog.String("user", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list pending requests")
		return
	}

	out := make([]map[string]any, len(reqs))
	for i, req := range reqs {
		out[i] = map[string]any{
			"request_id": req.ID,
			"sender":     req.SenderID,
			"receiver":   req.ReceiverID,
			"created_at": req.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": out})
}

// TransferToFriend moves funds between two users who are friends.
// POST /api/friends/transfers
func (h *FriendHandler) TransferToFriend(w http.ResponseWriter, r *http.Request) {
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

	if err := h.friends.TransferToFriend(r.Context(), req.SenderID, req.ReceiverID, req.Asset, req.Amount); err != nil {
		switch {
		case errors.Is(err, domain.ErrSelfTarget):
			writeError(w, http.StatusBadRequest, "cannot transfer to yourself")
		case errors.Is(err, domain.ErrNotFriends):
			writeError(w, http.StatusForbidden, "users are not friends")
		case errors.Is(err, domain.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, domain.ErrInsufficientFunds):
			writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
		default:
			h.logger.ErrorContext(r.Context(), "handler: transfer to friend failed",
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
