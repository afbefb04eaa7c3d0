package oracle_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/settld/settld/internal/domain"
	"github.com/settld/settld/internal/engine"
	"github.com/settld/settld/internal/oracle"
	"github.com/settld/settld/internal/platform/attest"
	"github.com/settld/settld/internal/platform/outlayer"
	"github.com/settld/settld/internal/resolver"
	"github.com/settld/settld/internal/store/memory"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCompute struct {
	submitted []outlayer.ExecutionRequest
	err       error
}

func (f *fakeCompute) SubmitExecution(_ context.Context, req outlayer.ExecutionRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.submitted = append(f.submitted, req)
	return fmt.Sprintf("exec-%d", len(f.submitted)), nil
}

type fakeRegistry struct {
	records map[uint64]attest.Record
}

func (f *fakeRegistry) GetAttestation(_ context.Context, id uint64) (attest.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return attest.Record{}, fmt.Errorf("attest: attestation %d not found", id)
	}
	return rec, nil
}

type fakeArchive struct {
	keys []string
}

func (f *fakeArchive) Put(_ context.Context, key string, _ []byte, _ string) error {
	f.keys = append(f.keys, key)
	return nil
}

type fixture struct {
	eng      *engine.Engine
	proto    *oracle.Protocol
	store    *memory.Store
	compute  *fakeCompute
	registry *fakeRegistry
	archive  *fakeArchive
	now      time.Time
}

func newFixture(t *testing.T, cfg oracle.Config) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		compute:  &fakeCompute{},
		registry: &fakeRegistry{records: make(map[uint64]attest.Record)},
		archive:  &fakeArchive{},
		now:      testStart,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return f.now }

	f.eng = engine.New(f.store, f.store, f.store.Balances(), nil, engine.Config{}, logger)
	f.eng.SetClock(clock)

	if cfg.Code.Repo == "" {
		cfg.Code = outlayer.CodeDescriptor{
			Repo:        "github.com/settld/scorefetch",
			Commit:      "7c2e1f0a",
			BuildTarget: "wasm32-wasip1",
		}
	}
	if cfg.DataSourceHost == "" {
		cfg.DataSourceHost = "site.api.espn.com"
	}
	if cfg.CallbackBaseURL == "" {
		cfg.CallbackBaseURL = "https://settld.example"
	}
	f.proto = oracle.New(
		f.eng, f.store.Balances(), memory.NewPendingStore(),
		f.compute, f.registry,
		resolver.NewDecider(0), f.archive, cfg, logger,
	)
	f.proto.SetClock(clock)
	return f
}

func (f *fixture) createMarket(t *testing.T, eventID string) uint64 {
	t.Helper()
	id, err := f.eng.CreateMarket(context.Background(), engine.CreateMarketParams{
		Creator:      "alice.test",
		Question:     "Who wins?",
		Kind:         domain.MarketKindHeadToHead,
		Outcomes:     []string{"A FC", "B United"},
		BetsCloseAt:  f.now.Add(time.Hour),
		ResolutionAt: f.now.Add(2 * time.Hour),
		EventID:      eventID,
		Sport:        "soccer",
		League:       "uefa.champions",
	})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	return id
}

func (f *fixture) fund(t *testing.T, account string) {
	t.Helper()
	if err := f.eng.Deposit(context.Background(), account, new(uint256.Int).Mul(domain.OneToken, uint256.NewInt(10))); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func collateral() domain.Amount {
	return new(uint256.Int).Set(domain.MinOracleCollateral)
}

func finalRecord() []byte {
	b, _ := json.Marshal(domain.EventRecord{
		HomeTeam: "A FC", AwayTeam: "B United",
		HomeScore: 2, AwayScore: 1,
		Status: domain.EventStatusFinal,
	})
	return b
}

func TestRequestResolution(t *testing.T) {
	f := newFixture(t, oracle.Config{})
	ctx := context.Background()

	id := f.createMarket(t, "401547439")
	f.fund(t, "bob.test")
	f.now = f.now.Add(3 * time.Hour)

	token, err := f.proto.RequestResolution(ctx, "bob.test", id, collateral())
	if err != nil {
		t.Fatalf("request resolution: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	if len(f.compute.submitted) != 1 {
		t.Fatalf("submitted %d executions, want 1", len(f.compute.submitted))
	}
	req := f.compute.submitted[0]
	if req.Input.EventID != "401547439" || req.Input.Sport != "soccer" {
		t.Errorf("execution input = %+v", req.Input)
	}
	if req.Limits != outlayer.DefaultLimits {
		t.Errorf("limits = %+v, want defaults", req.Limits)
	}
	if !strings.HasSuffix(req.CallbackURL, "/api/oracle/callback/"+token) {
		t.Errorf("callback URL %q does not carry the token", req.CallbackURL)
	}
}

func TestRequestResolutionPreconditions(t *testing.T) {
	f := newFixture(t, oracle.Config{})
	ctx := context.Background()

	id := f.createMarket(t, "401547439")
	bare := f.createMarket(t, "")
	f.fund(t, "bob.test")

	if _, err := f.proto.RequestResolution(ctx, "bob.test", id, collateral()); !errors.Is(err, domain.ErrResolutionTooEarly) {
		t.Errorf("before resolution time: got %v, want ErrResolutionTooEarly", err)
	}

	f.now = f.now.Add(3 * time.Hour)

	tiny := new(uint256.Int).SubUint64(collateral(), 1)
	if _, err := f.proto.RequestResolution(ctx, "bob.test", id, tiny); !errors.Is(err, domain.ErrCollateralTooSmall) {
		t.Errorf("tiny collateral: got %v, want ErrCollateralTooSmall", err)
	}
	if _, err := f.proto.RequestResolution(ctx, "bob.test", bare, collateral()); !errors.Is(err, domain.ErrNotOracleEligible) {
		t.Errorf("no event id: got %v, want ErrNotOracleEligible", err)
	}
	if _, err := f.proto.RequestResolution(ctx, "poor.test", id, collateral()); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("unfunded requester: got %v, want ErrInsufficientBalance", err)
	}

	// Settle the market, then requesting again must fail.
	if _, err := f.eng.ApplyResolution(ctx, id,
		domain.Verdict{Outcome: 0, Confidence: 1.0},
		&domain.EventRecord{HomeScore: 2, AwayScore: 1, Status: domain.EventStatusFinal},
	); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := f.proto.RequestResolution(ctx, "bob.test", id, collateral()); !errors.Is(err, domain.ErrMarketTerminal) {
		t.Errorf("terminal market: got %v, want ErrMarketTerminal", err)
	}
}

func TestRequestResolutionRefundsOnSubmitFailure(t *testing.T) {
	f := newFixture(t, oracle.Config{})
	ctx := context.Background()

	id := f.createMarket(t, "401547439")
	f.fund(t, "bob.test")
	f.now = f.now.Add(3 * time.Hour)

	before, _ := f.eng.Balance(ctx, "bob.test")
	f.compute.err = errors.New("service unavailable")

	if _, err := f.proto.RequestResolution(ctx, "bob.test", id, collateral()); err == nil {
		t.Fatal("expected submit failure")
	}

	after, _ := f.eng.Balance(ctx, "bob.test")
	if before.Cmp(after) != 0 {
		t.Errorf("collateral not refunded: balance %s, want %s", after.Dec(), before.Dec())
	}
}

func TestOnComputeResult(t *testing.T) {
	f := newFixture(t, oracle.Config{})
	ctx := context.Background()

	id := f.createMarket(t, "401547439")
	f.fund(t, "bob.test")
	f.now = f.now.Add(3 * time.Hour)

	token, err := f.proto.RequestResolution(ctx, "bob.test", id, collateral())
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	res, err := f.proto.OnComputeResult(ctx, token, finalRecord(), "")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if res.Status != engine.ApplyResolved {
		t.Fatalf("status = %s (%s), want resolved", res.Status, res.Reason)
	}

	m, _ := f.eng.GetMarket(ctx, id)
	if m.ResolvedOutcome != 0 {
		t.Errorf("resolved outcome = %d, want 0", m.ResolvedOutcome)
	}
	if len(f.archive.keys) != 1 || !strings.Contains(f.archive.keys[0], token) {
		t.Errorf("transcript not archived: %v", f.archive.keys)
	}

	// The token is single-use.
	if _, err := f.proto.OnComputeResult(ctx, token, finalRecord(), ""); !errors.Is(err, domain.ErrRequestUnknown) {
		t.Errorf("replayed token: got %v, want ErrRequestUnknown", err)
	}
}

func TestOnComputeResultFailuresLeaveMarketOpen(t *testing.T) {
	tests := []struct {
		name    string
		output  []byte
		execErr string
	}{
		{"execution error", nil, "instruction limit exceeded"},
		{"empty output", nil, ""},
		{"garbage output", []byte("not json"), ""},
		{"oversized output", []byte(strings.Repeat("x", 65537)), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, oracle.Config{})
			ctx := context.Background()

			id := f.createMarket(t, "401547439")
			f.fund(t, "bob.test")
			f.now = f.now.Add(3 * time.Hour)

			token, err := f.proto.RequestResolution(ctx, "bob.test", id, collateral())
			if err != nil {
				t.Fatalf("request: %v", err)
			}

			res, err := f.proto.OnComputeResult(ctx, token, tt.output, tt.execErr)
			if err != nil {
				t.Fatalf("callback: %v", err)
			}
			if res.Status != engine.ApplyNoop {
				t.Fatalf("status = %s, want noop", res.Status)
			}

			// The market must remain requestable.
			if _, err := f.proto.RequestResolution(ctx, "bob.test", id, collateral()); err != nil {
				t.Errorf("market not requestable after failed callback: %v", err)
			}
		})
	}
}

func TestOnComputeResultUnknownToken(t *testing.T) {
	f := newFixture(t, oracle.Config{})

	if _, err := f.proto.OnComputeResult(context.Background(), "nope", finalRecord(), ""); !errors.Is(err, domain.ErrRequestUnknown) {
		t.Errorf("got %v, want ErrRequestUnknown", err)
	}
}

// signedRecord builds an attestation record signed by the returned address.
func signedRecord(t *testing.T, serverName, sourceURL string, compact attest.CompactEvent) (attest.Record, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	data, _ := json.Marshal(compact)
	rec := attest.Record{
		ID:           1,
		ServerName:   serverName,
		SourceURL:    sourceURL,
		ResponseData: string(data),
		Timestamp:    testStart.Unix(),
	}
	sig, err := crypto.Sign(attest.Digest(rec), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec.Signature = hex.EncodeToString(sig)
	return rec, crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestResolveWithAttestation(t *testing.T) {
	compact := attest.CompactEvent{
		HomeTeam: "A FC", AwayTeam: "B United",
		HomeScore: 2, AwayScore: 1,
		Status: "final", EventID: "401547439",
	}
	rec, attestor := signedRecord(t, "site.api.espn.com",
		"https://site.api.espn.com/apis/site/v2/sports/soccer/uefa.champions/summary?event=401547439",
		compact)

	f := newFixture(t, oracle.Config{AttestorAddr: attestor})
	ctx := context.Background()

	id := f.createMarket(t, "401547439")
	f.now = f.now.Add(3 * time.Hour)
	f.registry.records[1] = rec

	// The requester is unfunded on purpose: unlike the compute path, no
	// collateral is taken when resolving from an existing attestation.
	claimed := domain.EventRecord{HomeScore: 2, AwayScore: 1, Status: domain.EventStatusFinal}
	res, err := f.proto.ResolveWithAttestation(ctx, "bob.test", id, 1, claimed)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != engine.ApplyResolved {
		t.Fatalf("status = %s (%s), want resolved", res.Status, res.Reason)
	}

	m, _ := f.eng.GetMarket(ctx, id)
	if m.ResolvedOutcome != 0 {
		t.Errorf("resolved outcome = %d, want 0", m.ResolvedOutcome)
	}

	bal, _ := f.eng.Balance(ctx, "bob.test")
	if !bal.IsZero() {
		t.Errorf("requester balance = %s, want untouched zero", bal.Dec())
	}
}

func TestResolveWithAttestationRejections(t *testing.T) {
	goodURL := "https://site.api.espn.com/apis/site/v2/sports/soccer/uefa.champions/summary?event=401547439"
	compact := attest.CompactEvent{
		HomeTeam: "A FC", AwayTeam: "B United",
		HomeScore: 2, AwayScore: 1,
		Status: "final", EventID: "401547439",
	}

	tests := []struct {
		name   string
		mutate func(*attest.Record, *domain.EventRecord)
	}{
		{"wrong server identity", func(r *attest.Record, _ *domain.EventRecord) {
			r.ServerName = "evil.example.com"
		}},
		{"url without event id", func(r *attest.Record, _ *domain.EventRecord) {
			r.SourceURL = "https://site.api.espn.com/apis/site/v2/scoreboard"
		}},
		{"unparseable payload", func(r *attest.Record, _ *domain.EventRecord) {
			r.ResponseData = "<html>"
		}},
		{"score mismatch", func(_ *attest.Record, claimed *domain.EventRecord) {
			claimed.HomeScore = 3
		}},
		{"tampered payload breaks signature", func(r *attest.Record, claimed *domain.EventRecord) {
			data, _ := json.Marshal(attest.CompactEvent{
				HomeTeam: "A FC", AwayTeam: "B United",
				HomeScore: 5, AwayScore: 1,
				Status: "final", EventID: "401547439",
			})
			r.ResponseData = string(data)
			claimed.HomeScore = 5
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, attestor := signedRecord(t, "site.api.espn.com", goodURL, compact)
			claimed := domain.EventRecord{HomeScore: 2, AwayScore: 1, Status: domain.EventStatusFinal}
			tt.mutate(&rec, &claimed)

			f := newFixture(t, oracle.Config{AttestorAddr: attestor})
			ctx := context.Background()

			id := f.createMarket(t, "401547439")
			f.now = f.now.Add(3 * time.Hour)
			f.registry.records[1] = rec

			_, err := f.proto.ResolveWithAttestation(ctx, "bob.test", id, 1, claimed)
			if !errors.Is(err, domain.ErrAttestationInvalid) {
				t.Fatalf("got %v, want ErrAttestationInvalid", err)
			}

			m, _ := f.eng.GetMarket(ctx, id)
			if m.Terminal() {
				t.Error("market settled on a rejected attestation")
			}
		})
	}
}

func TestResolveWithAttestationUnknownRecord(t *testing.T) {
	f := newFixture(t, oracle.Config{})
	ctx := context.Background()

	id := f.createMarket(t, "401547439")
	f.now = f.now.Add(3 * time.Hour)

	claimed := domain.EventRecord{HomeScore: 2, AwayScore: 1, Status: domain.EventStatusFinal}
	if _, err := f.proto.ResolveWithAttestation(ctx, "bob.test", id, 404, claimed); err == nil {
		t.Fatal("expected registry failure")
	}

	m, _ := f.eng.GetMarket(ctx, id)
	if m.Terminal() {
		t.Error("market settled on a registry failure")
	}
}
