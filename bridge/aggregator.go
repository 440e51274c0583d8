package bridge

import (
	"fmt"

	"github.com/faroukBakari/tws-redis-bridge-sub000/market"
)

// PublishPolicy decides when an instrument state counts as publish-ready.
type PublishPolicy uint8

const (
	// PolicyQuoteAndTrade requires both a quote and a trade before the
	// first publish; afterwards every merge re-triggers one. This is the
	// upstream's original behavior.
	PolicyQuoteAndTrade PublishPolicy = iota
	// PolicyQuoteOnly publishes as soon as a quote is present.
	PolicyQuoteOnly
)

func ParsePolicy(s string) (PublishPolicy, error) {
	switch s {
	case "", "quote_and_trade":
		return PolicyQuoteAndTrade, nil
	case "quote_only":
		return PolicyQuoteOnly, nil
	}
	return 0, fmt.Errorf("unknown publish_policy %q", s)
}

// Aggregator owns the per-instrument state map. It runs exclusively on
// the consumer goroutine, so the map needs no locking; that single
// ownership is what keeps snapshots from ever being observed mid-merge.
type Aggregator struct {
	states map[string]*market.InstrumentState
	policy PublishPolicy
}

func NewAggregator(policy PublishPolicy) *Aggregator {
	return &Aggregator{
		states: make(map[string]*market.InstrumentState),
		policy: policy,
	}
}

// Apply merges one update and reports whether the resulting state is
// publish-ready under the configured policy. Bar updates do not belong
// here; the controller routes them straight to the publisher.
func (a *Aggregator) Apply(u market.TickUpdate) (*market.InstrumentState, bool) {
	sym := u.Instrument.Symbol
	s, ok := a.states[sym]
	if !ok {
		s = &market.InstrumentState{}
		a.states[sym] = s
	}
	s.Merge(u)
	return s, a.ready(s)
}

func (a *Aggregator) ready(s *market.InstrumentState) bool {
	if a.policy == PolicyQuoteOnly {
		return s.HaveQuote
	}
	return s.HaveQuote && s.HaveTrade
}

// State returns the tracked state for a symbol, if any.
func (a *Aggregator) State(symbol string) (*market.InstrumentState, bool) {
	s, ok := a.states[symbol]
	return s, ok
}

// Reset clears one instrument in place; the entry survives so a running
// instrument does not reallocate after reconnect.
func (a *Aggregator) Reset(symbol string) {
	if s, ok := a.states[symbol]; ok {
		s.Reset()
	}
}

// ResetAll invalidates every instrument after an upstream reconnect.
func (a *Aggregator) ResetAll() {
	for _, s := range a.states {
		s.Reset()
	}
}

// Len reports how many instruments are tracked.
func (a *Aggregator) Len() int { return len(a.states) }
