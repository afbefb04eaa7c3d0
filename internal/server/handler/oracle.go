package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/settld/settld/internal/domain"
	"github.com/settld/settld/internal/engine"
	"github.com/settld/settld/internal/platform/outlayer"
)

// OracleService defines the resolution methods the handler requires from the
// oracle protocol.
type OracleService interface {
	RequestResolution(ctx context.Context, requester string, marketID uint64, collateral domain.Amount) (string, error)
	OnComputeResult(ctx context.Context, token string, output []byte, execErr string) (engine.ApplyResult, error)
	ResolveWithAttestation(ctx context.Context, requester string, marketID uint64, attestationID uint64, claimed domain.EventRecord) (engine.ApplyResult, error)
}

// OracleHandler serves the resolution HTTP endpoints: the two request paths
// and the compute callback webhook.
type OracleHandler struct {
	oracle OracleService
	logger *slog.Logger
}

// NewOracleHandler creates an OracleHandler with the given service and logger.
func NewOracleHandler(oracle OracleService, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{
		oracle: oracle,
		logger: logger,
	}
}

// requestResolutionRequest is the JSON body for the compute path. Collateral
// is a decimal base-unit string.
type requestResolutionRequest struct {
	Requester  string `json:"requester"`
	Collateral string `json:"collateral"`
}

// RequestResolution starts the delegated-compute resolution path.
// POST /api/markets/{id}/resolve
func (h *OracleHandler) RequestResolution(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req requestResolutionRequest
	if err := decodeBody(r, &req); err != nil || req.Requester == "" {
		writeError(w, http.StatusBadRequest, "requester is required")
		return
	}
	collateral, err := domain.ParseAmount(req.Collateral)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collateral")
		return
	}

	token, err := h.oracle.RequestResolution(r.Context(), req.Requester, id, collateral)
	if err != nil {
		h.writeResolutionError(w, r, id, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"token": token})
}

// OnComputeCallback receives the delegated-compute service's result webhook.
// The token in the path is the request's capability; no other authentication
// applies to this route.
// POST /api/oracle/callback/{token}
func (h *OracleHandler) OnComputeCallback(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}

	var payload outlayer.CallbackPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid callback payload")
		return
	}

	res, err := h.oracle.OnComputeResult(r.Context(), token, payload.Output, payload.Error)
	if err != nil {
		if errors.Is(err, domain.ErrRequestUnknown) {
			writeError(w, http.StatusNotFound, "unknown or expired token")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: compute callback failed",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "callback processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": string(res.Status),
		"reason": res.Reason,
	})
}

// attestedResolveRequest is the JSON body for the attestation path. No
// collateral: the record already exists, nothing is delegated.
type attestedResolveRequest struct {
	Requester     string `json:"requester"`
	AttestationID uint64 `json:"attestation_id"`
	HomeScore     int32  `json:"home_score"`
	AwayScore     int32  `json:"away_score"`
	EventStatus   string `json:"event_status"`
}

// ResolveWithAttestation runs the attestation resolution path.
// POST /api/markets/{id}/resolve/attested
func (h *OracleHandler) ResolveWithAttestation(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req attestedResolveRequest
	if err := decodeBody(r, &req); err != nil || req.Requester == "" {
		writeError(w, http.StatusBadRequest, "requester is required")
		return
	}

	claimed := domain.EventRecord{
		HomeScore: req.HomeScore,
		AwayScore: req.AwayScore,
		Status:    domain.EventStatus(req.EventStatus),
	}
	res, err := h.oracle.ResolveWithAttestation(r.Context(), req.Requester, id, req.AttestationID, claimed)
	if err != nil {
		if errors.Is(err, domain.ErrAttestationInvalid) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.writeResolutionError(w, r, id, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": string(res.Status),
		"reason": res.Reason,
	})
}

// writeResolutionError maps the shared resolution precondition errors.
func (h *OracleHandler) writeResolutionError(w http.ResponseWriter, r *http.Request, marketID uint64, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "market not found")
	case errors.Is(err, domain.ErrMarketTerminal),
		errors.Is(err, domain.ErrResolutionTooEarly):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotOracleEligible),
		errors.Is(err, domain.ErrCollateralTooSmall):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "handler: resolution request failed",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "resolution request failed")
	}
}
