package feed

import (
	"math"

	"go.uber.org/zap"

	"github.com/faroukBakari/tws-redis-bridge-sub000/market"
	"github.com/faroukBakari/tws-redis-bridge-sub000/monitor"
	"github.com/faroukBakari/tws-redis-bridge-sub000/queue"
)

// Normalizer is the producer stage. It resolves the subscription handle,
// validates the numbers, builds one TickUpdate and offers it to the
// transfer queue. It never blocks: a full queue drops the update and
// bumps a counter, nothing more.
//
// All methods run on the source's read goroutine; Normalizer itself
// keeps no shared mutable state beyond the injected collaborators.
type Normalizer struct {
	dir      *market.Directory
	ring     *queue.Ring
	counters *monitor.Counters
	log      *zap.Logger

	onReconnect func()

	// loggedUnknown caps unknown-handle log spam to one line per handle.
	// Touched only by the producer goroutine.
	loggedUnknown map[int32]struct{}
}

func NewNormalizer(dir *market.Directory, ring *queue.Ring, counters *monitor.Counters, log *zap.Logger, onReconnect func()) *Normalizer {
	return &Normalizer{
		dir:           dir,
		ring:          ring,
		counters:      counters,
		log:           log,
		onReconnect:   onReconnect,
		loggedUnknown: make(map[int32]struct{}),
	}
}

var _ TickSource = (*Normalizer)(nil)

// OnBidAsk normalizes a quote callback.
func (n *Normalizer) OnBidAsk(handle int32, tsMillis int64, bid, ask float64, bidSize, askSize int32) {
	inst, ok := n.resolve(handle)
	if !ok {
		return
	}
	if badPrice(bid) || badPrice(ask) || bidSize < 0 || askSize < 0 {
		n.counters.RejectedMalformed.Add(1)
		return
	}
	n.offer(market.TickUpdate{
		Handle:     handle,
		Kind:       market.KindQuote,
		TsMillis:   tsMillis,
		Instrument: inst,
		Bid:        bid,
		Ask:        ask,
		BidSize:    bidSize,
		AskSize:    askSize,
	})
}

// OnAllLast normalizes a trade print callback.
func (n *Normalizer) OnAllLast(handle int32, tsMillis int64, price float64, size int32, pastLimit bool) {
	inst, ok := n.resolve(handle)
	if !ok {
		return
	}
	if badPrice(price) || size < 0 {
		n.counters.RejectedMalformed.Add(1)
		return
	}
	n.offer(market.TickUpdate{
		Handle:     handle,
		Kind:       market.KindTrade,
		TsMillis:   tsMillis,
		Instrument: inst,
		Last:       price,
		LastSize:   size,
		PastLimit:  pastLimit,
	})
}

// OnBar normalizes a bar callback.
func (n *Normalizer) OnBar(handle int32, tsMillis int64, open, high, low, close, volume float64) {
	inst, ok := n.resolve(handle)
	if !ok {
		return
	}
	if badPrice(open) || badPrice(high) || badPrice(low) || badPrice(close) || volume < 0 || math.IsNaN(volume) {
		n.counters.RejectedMalformed.Add(1)
		return
	}
	n.offer(market.TickUpdate{
		Handle:     handle,
		Kind:       market.KindBar,
		TsMillis:   tsMillis,
		Instrument: inst,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      close,
		Volume:     volume,
	})
}

// OnConnectionState forwards reconnects to the lifecycle reset hook.
func (n *Normalizer) OnConnectionState(state ConnectionState) {
	if state == StateReconnected && n.onReconnect != nil {
		n.onReconnect()
	}
}

func (n *Normalizer) resolve(handle int32) (market.Instrument, bool) {
	inst, ok := n.dir.Lookup(handle)
	if !ok {
		n.counters.UnknownHandle.Add(1)
		if _, seen := n.loggedUnknown[handle]; !seen {
			n.loggedUnknown[handle] = struct{}{}
			n.log.Warn("tick for unknown handle", zap.Int32("handle", handle))
		}
	}
	return inst, ok
}

func (n *Normalizer) offer(u market.TickUpdate) {
	if !n.ring.TryPush(u) {
		n.counters.DroppedOnFull.Add(1)
	}
}

func badPrice(v float64) bool {
	return v < 0 || math.IsNaN(v) || math.IsInf(v, 0)
}
