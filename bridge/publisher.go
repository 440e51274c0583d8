package bridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/faroukBakari/tws-redis-bridge-sub000/codec"
	"github.com/faroukBakari/tws-redis-bridge-sub000/market"
	"github.com/faroukBakari/tws-redis-bridge-sub000/monitor"
	"github.com/faroukBakari/tws-redis-bridge-sub000/sink"
)

// Publisher encodes publish-ready snapshots and hands them to the sink.
// Sink errors are counted and logged, never retried here: retrying would
// stall the drain loop and let the queue back up. The supervisor watches
// the failure counter and decides about sink reconnects.
type Publisher struct {
	sink     sink.Sink
	prefix   string
	counters *monitor.Counters
	log      *zap.Logger

	// buf is reused across publishes; the Publisher runs on the single
	// consumer goroutine so no synchronization is needed.
	buf []byte
}

func NewPublisher(s sink.Sink, prefix string, counters *monitor.Counters, log *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = "TWS"
	}
	return &Publisher{
		sink:     s,
		prefix:   prefix,
		counters: counters,
		log:      log,
		buf:      make([]byte, 0, 512),
	}
}

// PublishState serializes and publishes one complete snapshot on
// <prefix>:TICKS:<symbol>.
func (p *Publisher) PublishState(ctx context.Context, s *market.InstrumentState) error {
	p.buf = codec.AppendSnapshot(p.buf[:0], s)
	return p.send(ctx, p.prefix+":TICKS:"+s.Symbol, s.Symbol)
}

// PublishBar publishes one bar payload on <prefix>:BARS:<symbol>,
// without touching aggregated state.
func (p *Publisher) PublishBar(ctx context.Context, u market.TickUpdate) error {
	sym := u.Instrument.Symbol
	p.buf = codec.AppendBar(p.buf[:0], sym, u)
	return p.send(ctx, p.prefix+":BARS:"+sym, sym)
}

func (p *Publisher) send(ctx context.Context, topic, symbol string) error {
	if err := p.sink.Publish(ctx, topic, p.buf); err != nil {
		p.counters.PublishFailures.Add(1)
		p.log.Warn("publish failed",
			zap.String("topic", topic),
			zap.String("instrument", symbol),
			zap.Error(err))
		return err
	}
	p.counters.Published.Add(1)
	return nil
}
