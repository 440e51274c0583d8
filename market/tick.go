package market

// TickKind discriminates the partial update carried by a TickUpdate.
type TickKind uint8

const (
	KindQuote TickKind = iota // bid/ask update
	KindTrade                 // last-trade update
	KindBar                   // aggregated bar, published without merging
)

func (k TickKind) String() string {
	switch k {
	case KindQuote:
		return "quote"
	case KindTrade:
		return "trade"
	case KindBar:
		return "bar"
	}
	return "unknown"
}

// Instrument identifies one subscribed contract.
type Instrument struct {
	Symbol   string
	ConID    int32
	Exchange string
}

// TickUpdate is one normalized fact from the upstream source. It is built
// once inside a source callback, copied by value through the transfer
// queue, and consumed exactly once by the aggregator.
type TickUpdate struct {
	Handle     int32
	Kind       TickKind
	TsMillis   int64 // source event time, not receive time
	Instrument Instrument

	// quote fields
	Bid     float64
	Ask     float64
	BidSize int32
	AskSize int32

	// trade fields
	Last      float64
	LastSize  int32
	PastLimit bool

	// bar fields
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
