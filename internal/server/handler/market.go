package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/settld/settld/internal/domain"
	"github.com/settld/settld/internal/engine"
)

// MarketService defines the methods the market handler requires from the
// engine. It is declared locally so the handler package does not depend on
// the concrete engine type.
type MarketService interface {
	CreateMarket(ctx context.Context, p engine.CreateMarketParams) (uint64, error)
	GetMarket(ctx context.Context, id uint64) (domain.Market, error)
	ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error)
	Odds(ctx context.Context, id uint64) (engine.MarketOdds, error)
	MarketBets(ctx context.Context, id uint64) ([]domain.Bet, error)
	Stats(ctx context.Context) (engine.Stats, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the JSON body for market creation.
type createMarketRequest struct {
	Creator      string    `json:"creator"`
	Question     string    `json:"question"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	Kind         string    `json:"kind"`
	Outcomes     []string  `json:"outcomes"`
	BetsCloseAt  time.Time `json:"bets_close_at"`
	ResolutionAt time.Time `json:"resolution_at"`
	EventID      string    `json:"event_id"`
	Sport        string    `json:"sport"`
	League       string    `json:"league"`
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Creator == "" {
		writeError(w, http.StatusBadRequest, "creator is required")
		return
	}

	id, err := h.markets.CreateMarket(r.Context(), engine.CreateMarketParams{
		Creator:      req.Creator,
		Question:     req.Question,
		Description:  req.Description,
		Category:     req.Category,
		Kind:         domain.MarketKind(req.Kind),
		Outcomes:     req.Outcomes,
		BetsCloseAt:  req.BetsCloseAt,
		ResolutionAt: req.ResolutionAt,
		EventID:      req.EventID,
		Sport:        req.Sport,
		League:       req.League,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidMarket) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create market")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns markets filtered by category and status.
// GET /api/markets?category=&status=&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	f := parseMarketFilter(r)

	markets, err := h.markets.ListMarkets(r.Context(), f)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: toMarketViews(markets),
		Limit:   f.Limit,
		Offset:  f.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, toMarketView(market))
}

// oddsResponse is the JSON shape of the odds view.
type oddsResponse struct {
	Outcomes  []string  `json:"outcomes"`
	Odds      []float64 `json:"odds"`
	Pools     []string  `json:"pools"`
	TotalPool string    `json:"total_pool"`
}

// GetOdds returns the pari-mutuel odds per outcome.
// GET /api/markets/{id}/odds
func (h *MarketHandler) GetOdds(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	odds, err := h.markets.Odds(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get odds failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get odds")
		return
	}

	pools := make([]string, len(odds.Pools))
	for i, p := range odds.Pools {
		pools[i] = p.Dec()
	}
	writeJSON(w, http.StatusOK, oddsResponse{
		Outcomes:  odds.Outcomes,
		Odds:      odds.Odds,
		Pools:     pools,
		TotalPool: odds.TotalPool.Dec(),
	})
}

// ListMarketBets returns every bet on a market.
// GET /api/markets/{id}/bets
func (h *MarketHandler) ListMarketBets(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	bets, err := h.markets.MarketBets(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list market bets failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"bets": toBetViews(bets)})
}

// GetStats returns aggregate engine statistics.
// GET /api/stats
func (h *MarketHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.markets.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"markets":      stats.Markets,
		"total_volume": stats.TotalVolume.Dec(),
	})
}
