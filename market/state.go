package market

// InstrumentState is the aggregated, publishable snapshot for one
// instrument. It is owned exclusively by the consumer goroutine; merges
// mutate it in place and Reset clears it without dropping the map entry.
type InstrumentState struct {
	Symbol   string
	ConID    int32
	Exchange string

	Bid       float64
	Ask       float64
	BidSize   int32
	AskSize   int32
	QuoteTs   int64
	HaveQuote bool

	Last      float64
	LastSize  int32
	TradeTs   int64
	HaveTrade bool

	PastLimit bool
}

// Merge folds one partial update into the state. Only the fields of the
// update's kind are overwritten; the other side keeps its latest values.
// Bar updates do not touch aggregated state.
func (s *InstrumentState) Merge(u TickUpdate) {
	s.Symbol = u.Instrument.Symbol
	s.ConID = u.Instrument.ConID
	s.Exchange = u.Instrument.Exchange

	switch u.Kind {
	case KindQuote:
		s.Bid = u.Bid
		s.Ask = u.Ask
		s.BidSize = u.BidSize
		s.AskSize = u.AskSize
		s.QuoteTs = u.TsMillis
		s.HaveQuote = true
	case KindTrade:
		s.Last = u.Last
		s.LastSize = u.LastSize
		s.TradeTs = u.TsMillis
		s.HaveTrade = true
		s.PastLimit = u.PastLimit
	}
}

// Reset zeroes all market fields and both have-flags, keeping identity
// fields so the entry can be refilled after an upstream reconnect.
func (s *InstrumentState) Reset() {
	*s = InstrumentState{
		Symbol:   s.Symbol,
		ConID:    s.ConID,
		Exchange: s.Exchange,
	}
}

// Timestamp returns the most recent of the quote and trade timestamps.
func (s *InstrumentState) Timestamp() int64 {
	if s.QuoteTs > s.TradeTs {
		return s.QuoteTs
	}
	return s.TradeTs
}
