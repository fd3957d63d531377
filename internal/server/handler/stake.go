package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// StakingService defines what the stake handler needs from the service layer.
type StakingService interface {
	Stake(ctx context.Context, userID, asset string, amount, apy float64) (domain.Stake, error)
	Unstake(ctx context.Context, userID, asset string) (domain.StakeReceipt, error)
	ListStakes(ctx context.Context, userID string) ([]domain.Stake, error)
}

// StakeHandler serves the staking endpoints.
type StakeHandler struct {
	staking StakingService
	logger  *slog.Logger
}

// NewStakeHandler creates a StakeHandler with the given service and logger.
func NewStakeHandler(staking StakingService, logger *slog.Logger) *StakeHandler {
	return &StakeHandler{
		staking: staking,
		logger:  logger,
	}
}

// Stake opens or tops up a stake.
// POST /api/stakes
func (h *StakeHandler) Stake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string  `json:"user_id"`
		Asset  string  `json:"asset"`
		Amount float64 `json:"amount"`
		APY    float64 `json:"apy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.Asset == "" {
		writeError(w, http.StatusBadRequest, "user_id and asset are required")
		return
	}

	stake, err := h.staking.Stake(r.Context(), req.UserID, req.Asset, req.Amount, req.APY)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnsupportedAsset):
			writeError(w, http.StatusBadRequest, "asset is not stakeable")
		case errors.Is(err, domain.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, domain.ErrInsufficientFunds):
			writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
		default:
			h.logger.ErrorContext(r.Context(), "handler: stake failed",
				slog.String("user", req.UserID),
				slog.String("asset", req.Asset),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to stake")
		}
		return
	}

	writeJSON(w, http.StatusCreated, stakeResponse(stake))
}

// Unstake closes a stake and pays out principal plus accrued reward.
// DELETE /api/stakes/{user}/{asset}
func (h *StakeHandler) Unstake(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "user")
	asset := pathParam(r, "asset")
	if userID == "" || asset == "" {
		writeError(w, http.StatusBadRequest, "missing user or asset")
		return
	}

	receipt, err := h.staking.Unstake(r.Context(), userID, asset)
	if err != nil {
		if errors.Is(err, domain.ErrNoSuchStake) {
			writeError(w, http.StatusNotFound, "no stake for user and asset")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: unstake failed",
			slog.String("user", userID),
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to unstake")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"asset":     receipt.Asset,
		"principal": receipt.Principal,
		"reward":    receipt.Reward,
		"total":     receipt.Total,
	})
}

// ListStakes returns the user's stakes with rewards accrued to now.
// GET /api/stakes/{user}
func (h *StakeHandler) ListStakes(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}

	stakes, err := h.staking.ListStakes(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list stakes failed",
			slog.String("user", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list stakes")
		return
	}

	out := make([]map[string]any, len(stakes))
	for i, s := range stakes {
		out[i] = stakeResponse(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"stakes": out})
}

func stakeResponse(s domain.Stake) map[string]any {
	return map[string]any{
		"user_id":         s.UserID,
		"asset":           s.Asset,
		"principal":       s.Principal,
		"accrued_reward":  s.AccruedReward,
		"apy":             s.APY,
		"last_accrual_at": s.LastAccrualAt,
	}
}
