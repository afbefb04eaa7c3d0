// Package oracle drives market resolution through two trust paths.
//
// The compute path delegates the scoreboard fetch to an external service
// running a pinned program; the service posts the result to a callback URL
// carrying an opaque request token. The attestation path takes a signed TLS
// transcript from the attestation registry and cross-checks it against the
// caller's claimed scores. Both paths end in the engine's apply-resolution
// gate, which makes settlement idempotent no matter how many resolutions race.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/settld/settld/internal/domain"
	"github.com/settld/settld/internal/engine"
	"github.com/settld/settld/internal/platform/attest"
	"github.com/settld/settld/internal/platform/outlayer"
	"github.com/settld/settld/internal/resolver"
)

// maxResultBytes caps a compute callback payload. A scoreboard record is a few
// hundred bytes; anything larger is a misbehaving program.
const maxResultBytes = 64 << 10

// DefaultPendingTTL bounds how long a compute request can stay in flight
// before its token expires and the market becomes requestable again.
const DefaultPendingTTL = 10 * time.Minute

// ComputeClient submits delegated executions.
type ComputeClient interface {
	SubmitExecution(ctx context.Context, req outlayer.ExecutionRequest) (string, error)
}

// AttestationClient fetches published attestation records.
type AttestationClient interface {
	GetAttestation(ctx context.Context, id uint64) (attest.Record, error)
}

// Settler is the slice of the engine the protocol needs.
type Settler interface {
	GetMarket(ctx context.Context, id uint64) (domain.Market, error)
	ApplyResolution(ctx context.Context, marketID uint64, v domain.Verdict, ev *domain.EventRecord) (engine.ApplyResult, error)
}

// Config holds the operator-tunable oracle parameters.
type Config struct {
	// Code pins the fetch program the compute service runs.
	Code outlayer.CodeDescriptor
	// DataSourceHost is the canonical hostname attested transcripts must have
	// been fetched from.
	DataSourceHost string
	// CallbackBaseURL is this engine's externally reachable base URL; the
	// compute callback route is appended to it.
	CallbackBaseURL string
	// AttestorAddr, when set, is the only address accepted as a transcript
	// signer. Empty skips the signature check (registry trusted as-is).
	AttestorAddr string
	// PendingTTL overrides DefaultPendingTTL when > 0.
	PendingTTL time.Duration
}

// Protocol is the oracle state machine. One instance serves all markets;
// per-request state lives in the pending store, keyed by token.
type Protocol struct {
	settler  Settler
	balances domain.BalanceStore
	pending  domain.PendingResolutionStore
	compute  ComputeClient
	attests  AttestationClient
	decider  *resolver.Decider
	archive  domain.BlobWriter
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Protocol. archive may be nil to disable transcript archiving;
// attests may be nil if the attestation path is not deployed.
func New(
	settler Settler,
	balances domain.BalanceStore,
	pending domain.PendingResolutionStore,
	compute ComputeClient,
	attests AttestationClient,
	decider *resolver.Decider,
	archive domain.BlobWriter,
	cfg Config,
	logger *slog.Logger,
) *Protocol {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	return &Protocol{
		settler:  settler,
		balances: balances,
		pending:  pending,
		compute:  compute,
		attests:  attests,
		decider:  decider,
		archive:  archive,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "oracle")),
		now:      time.Now,
	}
}

// SetClock overrides the protocol's time source. Test hook.
func (p *Protocol) SetClock(now func() time.Time) {
	p.now = now
}

// checkResolvable runs the preconditions shared by both paths and returns
// the market if a resolution may be requested for it now.
func (p *Protocol) checkResolvable(ctx context.Context, marketID uint64) (domain.Market, error) {
	m, err := p.settler.GetMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("oracle: request resolution: %w", err)
	}
	if m.Terminal() {
		return domain.Market{}, domain.ErrMarketTerminal
	}
	if !m.OracleEligible() {
		return domain.Market{}, domain.ErrNotOracleEligible
	}
	if p.now().Before(m.ResolutionAt) {
		return domain.Market{}, domain.ErrResolutionTooEarly
	}
	return m, nil
}

// takeCollateral debits the compute-path collateral from the requester.
// Collateral funds the delegated fetch; it is spent, not escrowed.
func (p *Protocol) takeCollateral(ctx context.Context, requester string, collateral domain.Amount) error {
	if !domain.ValidAmount(collateral) || collateral.Cmp(domain.MinOracleCollateral) < 0 {
		return domain.ErrCollateralTooSmall
	}
	return p.balances.Debit(ctx, requester, collateral)
}

// RequestResolution starts the compute path for a market and returns the
// request token its callback will carry. The requester pays collateral for
// the delegated fetch.
func (p *Protocol) RequestResolution(ctx context.Context, requester string, marketID uint64, collateral domain.Amount) (string, error) {
	if p.compute == nil || p.cfg.Code.Repo == "" || p.cfg.Code.Commit == "" {
		return "", fmt.Errorf("oracle: compute path not configured")
	}

	m, err := p.checkResolvable(ctx, marketID)
	if err != nil {
		return "", err
	}
	if err := p.takeCollateral(ctx, requester, collateral); err != nil {
		return "", err
	}

	token := uuid.NewString()
	if err := p.pending.Put(ctx, domain.PendingResolution{
		Token:       token,
		MarketID:    marketID,
		Requester:   requester,
		Path:        domain.PathCompute,
		RequestedAt: p.now(),
	}, p.cfg.PendingTTL); err != nil {
		p.refund(ctx, requester, collateral)
		return "", fmt.Errorf("oracle: register pending request: %w", err)
	}

	execID, err := p.compute.SubmitExecution(ctx, outlayer.ExecutionRequest{
		Code:   p.cfg.Code,
		Limits: outlayer.DefaultLimits,
		Input: outlayer.ExecutionInput{
			EventID: m.EventID,
			Sport:   m.Sport,
			League:  m.League,
		},
		ResponseFormat: "json",
		CallbackURL:    strings.TrimSuffix(p.cfg.CallbackBaseURL, "/") + "/api/oracle/callback/" + token,
	})
	if err != nil {
		// Unwind: consume the token so a stray late callback cannot match it.
		_, _ = p.pending.Take(ctx, token)
		p.refund(ctx, requester, collateral)
		return "", fmt.Errorf("oracle: submit execution: %w", err)
	}

	p.logger.InfoContext(ctx, "resolution requested",
		slog.Uint64("market_id", marketID),
		slog.String("requester", requester),
		slog.String("token", token),
		slog.String("execution_id", execID),
	)
	return token, nil
}

func (p *Protocol) refund(ctx context.Context, requester string, amount domain.Amount) {
	if err := p.balances.Credit(ctx, requester, amount); err != nil {
		p.logger.ErrorContext(ctx, "failed to refund collateral",
			slog.String("requester", requester),
			slog.String("error", err.Error()),
		)
	}
}

// OnComputeResult handles one compute callback. The token is consumed exactly
// once; unknown or expired tokens fail with ErrRequestUnknown. Delivery and
// parse failures settle nothing and leave the market requestable again.
func (p *Protocol) OnComputeResult(ctx context.Context, token string, output []byte, execErr string) (engine.ApplyResult, error) {
	pr, err := p.pending.Take(ctx, token)
	if err != nil {
		return engine.ApplyResult{}, err
	}
	log := p.logger.With(
		slog.Uint64("market_id", pr.MarketID),
		slog.String("token", token),
	)

	p.archiveTranscript(ctx, pr, output, execErr)

	if execErr != "" {
		log.WarnContext(ctx, "delegated execution failed", slog.String("error", execErr))
		return engine.ApplyResult{Status: engine.ApplyNoop, Reason: "execution failed: " + execErr}, nil
	}
	if len(output) == 0 || len(output) > maxResultBytes {
		log.WarnContext(ctx, "compute result has unusable size", slog.Int("bytes", len(output)))
		return engine.ApplyResult{Status: engine.ApplyNoop, Reason: "unusable result size"}, nil
	}

	var ev domain.EventRecord
	if err := json.Unmarshal(output, &ev); err != nil {
		log.WarnContext(ctx, "compute result failed to parse", slog.String("error", err.Error()))
		return engine.ApplyResult{Status: engine.ApplyNoop, Reason: "result parse failure"}, nil
	}

	return p.settle(ctx, pr.MarketID, &ev)
}

// ResolveWithAttestation runs the attestation path end to end: fetch the
// record the caller points at, verify it against the market and the caller's
// claimed scores, then settle. claimed carries the caller's asserted event
// values; the attested transcript must agree with them. Unlike the compute
// path there is no collateral: the attestation already exists, so the
// requester funds no delegated fetch.
func (p *Protocol) ResolveWithAttestation(ctx context.Context, requester string, marketID uint64, attestationID uint64, claimed domain.EventRecord) (engine.ApplyResult, error) {
	if p.attests == nil {
		return engine.ApplyResult{}, fmt.Errorf("oracle: attestation path not configured")
	}

	m, err := p.checkResolvable(ctx, marketID)
	if err != nil {
		return engine.ApplyResult{}, err
	}

	// The exchange is synchronous, but it still goes through the pending
	// store so both paths share one at-most-once shape per request.
	token := uuid.NewString()
	if err := p.pending.Put(ctx, domain.PendingResolution{
		Token:         token,
		MarketID:      marketID,
		Requester:     requester,
		Path:          domain.PathAttestation,
		AttestationID: attestationID,
		Claimed:       &claimed,
		RequestedAt:   p.now(),
	}, p.cfg.PendingTTL); err != nil {
		return engine.ApplyResult{}, fmt.Errorf("oracle: register pending request: %w", err)
	}

	rec, err := p.attests.GetAttestation(ctx, attestationID)
	if err != nil {
		_, _ = p.pending.Take(ctx, token)
		return engine.ApplyResult{}, err
	}

	return p.onAttestationResult(ctx, token, m, rec)
}

// onAttestationResult consumes the pending request and verifies the fetched
// record. The checks run in order and each failure names what broke; a record
// that fails any of them settles nothing.
func (p *Protocol) onAttestationResult(ctx context.Context, token string, m domain.Market, rec attest.Record) (engine.ApplyResult, error) {
	pr, err := p.pending.Take(ctx, token)
	if err != nil {
		return engine.ApplyResult{}, err
	}

	p.archiveAttestation(ctx, pr, rec)

	if rec.ServerName != p.cfg.DataSourceHost {
		return engine.ApplyResult{}, fmt.Errorf("%w: attested server %q is not %q",
			domain.ErrAttestationInvalid, rec.ServerName, p.cfg.DataSourceHost)
	}
	if !strings.Contains(rec.SourceURL, m.EventID) {
		return engine.ApplyResult{}, fmt.Errorf("%w: source URL does not reference event %s",
			domain.ErrAttestationInvalid, m.EventID)
	}

	var compact attest.CompactEvent
	if err := json.Unmarshal([]byte(rec.ResponseData), &compact); err != nil {
		return engine.ApplyResult{}, fmt.Errorf("%w: attested payload is not a compact event record",
			domain.ErrAttestationInvalid)
	}
	if pr.Claimed == nil ||
		compact.HomeScore != pr.Claimed.HomeScore ||
		compact.AwayScore != pr.Claimed.AwayScore {
		return engine.ApplyResult{}, fmt.Errorf("%w: attested scores do not match the claimed scores",
			domain.ErrAttestationInvalid)
	}

	if p.cfg.AttestorAddr != "" {
		if err := attest.VerifySigner(rec, p.cfg.AttestorAddr); err != nil {
			return engine.ApplyResult{}, fmt.Errorf("%w: %v", domain.ErrAttestationInvalid, err)
		}
	}

	ev := domain.EventRecord{
		HomeTeam:  compact.HomeTeam,
		AwayTeam:  compact.AwayTeam,
		HomeScore: compact.HomeScore,
		AwayScore: compact.AwayScore,
		Status:    domain.EventStatus(compact.Status),
	}
	return p.settle(ctx, pr.MarketID, &ev)
}

// settle runs the decider over a fresh market read and pushes the verdict
// through the engine's apply-resolution gate.
func (p *Protocol) settle(ctx context.Context, marketID uint64, ev *domain.EventRecord) (engine.ApplyResult, error) {
	m, err := p.settler.GetMarket(ctx, marketID)
	if errors.Is(err, domain.ErrNotFound) {
		return engine.ApplyResult{Status: engine.ApplyNoop, Reason: "market not found"}, nil
	}
	if err != nil {
		return engine.ApplyResult{}, fmt.Errorf("oracle: settle: %w", err)
	}

	v := p.decider.DetermineWinner(&m, ev)
	res, err := p.settler.ApplyResolution(ctx, marketID, v, ev)
	if err != nil {
		return engine.ApplyResult{}, err
	}

	p.logger.InfoContext(ctx, "resolution applied",
		slog.Uint64("market_id", marketID),
		slog.String("status", string(res.Status)),
		slog.String("reason", res.Reason),
	)
	return res, nil
}

// archiveTranscript stores a compute callback for off-line replay.
// Best-effort: an archive failure never blocks settlement.
func (p *Protocol) archiveTranscript(ctx context.Context, pr domain.PendingResolution, output []byte, execErr string) {
	if p.archive == nil {
		return
	}
	doc, err := json.Marshal(map[string]any{
		"market_id":    pr.MarketID,
		"token":        pr.Token,
		"path":         pr.Path,
		"requested_at": pr.RequestedAt,
		"output":       output,
		"error":        execErr,
	})
	if err != nil {
		return
	}
	key := fmt.Sprintf("transcripts/market-%d/%s.json", pr.MarketID, pr.Token)
	if err := p.archive.Put(ctx, key, doc, "application/json"); err != nil {
		p.logger.WarnContext(ctx, "failed to archive transcript",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Protocol) archiveAttestation(ctx context.Context, pr domain.PendingResolution, rec attest.Record) {
	if p.archive == nil {
		return
	}
	doc, err := json.Marshal(map[string]any{
		"market_id":    pr.MarketID,
		"token":        pr.Token,
		"path":         pr.Path,
		"requested_at": pr.RequestedAt,
		"attestation":  rec,
	})
	if err != nil {
		return
	}
	key := fmt.Sprintf("transcripts/market-%d/%s.json", pr.MarketID, pr.Token)
	if err := p.archive.Put(ctx, key, doc, "application/json"); err != nil {
		p.logger.WarnContext(ctx, "failed to archive attestation",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
