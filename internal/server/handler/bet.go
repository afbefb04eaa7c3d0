package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/settld/settld/internal/domain"
)

// BetService defines the betting and balance methods the handler requires
// from the engine.
type BetService interface {
	PlaceBet(ctx context.Context, bettor string, marketID uint64, outcome uint32, amount domain.Amount) error
	Claim(ctx context.Context, marketID uint64, bettor string) (domain.Amount, error)
	UserBets(ctx context.Context, bettor string) ([]domain.Bet, error)
	Deposit(ctx context.Context, account string, amount domain.Amount) error
	Withdraw(ctx context.Context, account string, amount domain.Amount) error
	Balance(ctx context.Context, account string) (domain.Amount, error)
}

// BetHandler serves bet and balance HTTP endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		logger: logger,
	}
}

// placeBetRequest is the JSON body for placing a bet. Amount is a decimal
// base-unit string.
type placeBetRequest struct {
	Bettor  string `json:"bettor"`
	Outcome uint32 `json:"outcome"`
	Amount  string `json:"amount"`
}

// PlaceBet stakes an amount on a market outcome.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Bettor == "" {
		writeError(w, http.StatusBadRequest, "bettor is required")
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	if err := h.bets.PlaceBet(r.Context(), req.Bettor, id, req.Outcome, amount); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrStakeTooSmall),
			errors.Is(err, domain.ErrInvalidOutcome),
			errors.Is(err, domain.ErrInvalidAmount):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, domain.ErrMarketNotOpen),
			errors.Is(err, domain.ErrBettingClosed):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrInsufficientBalance):
			writeError(w, http.StatusPaymentRequired, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: place bet failed",
				slog.Uint64("market_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to place bet")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "accepted"})
}

// claimRequest is the JSON body for claiming winnings.
type claimRequest struct {
	Account string `json:"account"`
}

// Claim settles a bettor's winnings or refund on a terminal market.
// POST /api/markets/{id}/claim
func (h *BetHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req claimRequest
	if err := decodeBody(r, &req); err != nil || req.Account == "" {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}

	payout, err := h.bets.Claim(r.Context(), id, req.Account)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrNotSettled):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrAlreadyClaimed),
			errors.Is(err, domain.ErrNothingToClaim):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: claim failed",
				slog.Uint64("market_id", id),
				slog.String("account", req.Account),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to claim")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"payout": payout.Dec()})
}

// ListUserBets returns every bet an account has placed.
// GET /api/accounts/{account}/bets
func (h *BetHandler) ListUserBets(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account")
		return
	}

	bets, err := h.bets.UserBets(r.Context(), account)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list user bets failed",
			slog.String("account", account),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"bets": toBetViews(bets)})
}

// amountRequest is the JSON body for deposits and withdrawals.
type amountRequest struct {
	Amount string `json:"amount"`
}

// Deposit credits an account balance.
// POST /api/accounts/{account}/deposit
func (h *BetHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moveBalance(w, r, h.bets.Deposit)
}

// Withdraw debits an account balance.
// POST /api/accounts/{account}/withdraw
func (h *BetHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveBalance(w, r, h.bets.Withdraw)
}

func (h *BetHandler) moveBalance(w http.ResponseWriter, r *http.Request, op func(context.Context, string, domain.Amount) error) {
	account := r.PathValue("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account")
		return
	}

	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	if err := op(r.Context(), account, amount); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "invalid amount")
		case errors.Is(err, domain.ErrInsufficientBalance):
			writeError(w, http.StatusPaymentRequired, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: balance operation failed",
				slog.String("account", account),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "balance operation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetBalance returns an account's withdrawable balance.
// GET /api/accounts/{account}/balance
func (h *BetHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account")
		return
	}

	balance, err := h.bets.Balance(r.Context(), account)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get balance failed",
			slog.String("account", account),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"account": account,
		"balance": balance.Dec(),
	})
}
