package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/settld/settld/internal/domain"
	"github.com/settld/settld/internal/engine"
)

// Event types emitted by the settlement engine.
const (
	EventMarketResolved = "market_resolved"
	EventMarketVoided   = "market_voided"
)

// MarketEvents adapts the Notifier to the engine's settlement hook. Delivery
// happens on a detached goroutine so slow channels never hold up settlement.
type MarketEvents struct {
	notifier *Notifier
}

// NewMarketEvents creates the adapter.
func NewMarketEvents(n *Notifier) *MarketEvents {
	return &MarketEvents{notifier: n}
}

// MarketSettled pushes a resolved/voided notification for the market.
func (me *MarketEvents) MarketSettled(_ context.Context, m domain.Market, v domain.Verdict) {
	var event, title, message string
	switch m.Status {
	case domain.MarketStatusResolved:
		event = EventMarketResolved
		title = fmt.Sprintf("Market #%d resolved", m.ID)
		message = fmt.Sprintf("%s\nWinner: %s\n%s", m.Question, m.Outcomes[m.ResolvedOutcome], v.Reason)
	case domain.MarketStatusVoided:
		event = EventMarketVoided
		title = fmt.Sprintf("Market #%d voided", m.ID)
		message = fmt.Sprintf("%s\nAll stakes refundable.\n%s", m.Question, v.Reason)
	default:
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = me.notifier.Notify(ctx, event, title, message)
	}()
}

var _ engine.Events = (*MarketEvents)(nil)
