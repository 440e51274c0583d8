package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/faroukBakari/tws-redis-bridge-sub000/market"
	"github.com/faroukBakari/tws-redis-bridge-sub000/monitor"
	"github.com/faroukBakari/tws-redis-bridge-sub000/queue"
)

func quoteUpdate(sym string, ts int64, bid, ask float64, bidSize, askSize int32) market.TickUpdate {
	return market.TickUpdate{
		Kind:       market.KindQuote,
		TsMillis:   ts,
		Instrument: market.Instrument{Symbol: sym},
		Bid:        bid,
		Ask:        ask,
		BidSize:    bidSize,
		AskSize:    askSize,
	}
}

func tradeUpdate(sym string, ts int64, last float64, size int32) market.TickUpdate {
	return market.TickUpdate{
		Kind:       market.KindTrade,
		TsMillis:   ts,
		Instrument: market.Instrument{Symbol: sym},
		Last:       last,
		LastSize:   size,
	}
}

func newTestController(t *testing.T, ms *mockSink, cfg Config) (*Controller, *queue.Ring, *monitor.Counters) {
	t.Helper()
	ring := queue.NewRing(64)
	counters := &monitor.Counters{}
	pub := NewPublisher(ms, "TWS", counters, zap.NewNop())
	agg := NewAggregator(PolicyQuoteAndTrade)
	return NewController(ring, agg, pub, counters, zap.NewNop(), cfg), ring, counters
}

func TestControllerPublishesWhenQuoteAndTradeSeen(t *testing.T) {
	ms := &mockSink{}
	c, _, _ := newTestController(t, ms, DefaultConfig())

	c.handle(context.Background(), quoteUpdate("AAPL", 1000, 100.5, 100.6, 10, 20))
	require.Equal(t, 0, ms.count(), "quote alone must not publish")

	c.handle(context.Background(), tradeUpdate("AAPL", 1500, 100.55, 50))
	require.Equal(t, 1, ms.count())

	topic, payload := ms.last()
	require.Equal(t, "TWS:TICKS:AAPL", topic)
	require.Contains(t, payload, `"bid":100.5`)
	require.Contains(t, payload, `"last":100.55`)
	require.Contains(t, payload, `"quote":1000`)
	require.Contains(t, payload, `"trade":1500`)
}

func TestControllerIsolatesInstruments(t *testing.T) {
	ms := &mockSink{}
	c, _, _ := newTestController(t, ms, DefaultConfig())

	c.handle(context.Background(), quoteUpdate("AAPL", 1000, 100.5, 100.6, 10, 20))
	c.handle(context.Background(), quoteUpdate("SPY", 1001, 430.1, 430.2, 5, 5))
	require.Equal(t, 0, ms.count())

	// a trade on SPY completes SPY only
	c.handle(context.Background(), tradeUpdate("SPY", 1002, 430.15, 100))
	require.Equal(t, 1, ms.count())
	topic, _ := ms.last()
	require.Equal(t, "TWS:TICKS:SPY", topic)
}

func TestControllerBarBypassesAggregation(t *testing.T) {
	ms := &mockSink{}
	c, _, _ := newTestController(t, ms, DefaultConfig())

	c.handle(context.Background(), market.TickUpdate{
		Kind:       market.KindBar,
		TsMillis:   2000,
		Instrument: market.Instrument{Symbol: "AAPL"},
		Open:       100, High: 101, Low: 99.5, Close: 100.5, Volume: 1234,
	})
	require.Equal(t, 1, ms.count())
	topic, _ := ms.last()
	require.Equal(t, "TWS:BARS:AAPL", topic)

	// the bar must not have satisfied the quote+trade gate
	c.handle(context.Background(), tradeUpdate("AAPL", 2001, 100.5, 10))
	require.Equal(t, 1, ms.count())
}

func TestControllerDrainsQueueOnShutdown(t *testing.T) {
	ms := &mockSink{}
	c, ring, _ := newTestController(t, ms, DefaultConfig())

	require.True(t, ring.TryPush(quoteUpdate("AAPL", 1000, 100.5, 100.6, 10, 20)))
	require.True(t, ring.TryPush(tradeUpdate("AAPL", 1500, 100.55, 50)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // queued updates must still flow out during the drain
	require.NoError(t, c.Start(ctx))
	c.Wait()

	require.Equal(t, StateStopped, c.State())
	require.Equal(t, 1, ms.count())
	require.Equal(t, 0, ring.Len())
}

func TestControllerStartTwiceFails(t *testing.T) {
	ms := &mockSink{}
	c, _, _ := newTestController(t, ms, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	require.Error(t, c.Start(ctx))
	cancel()
	c.Wait()
	require.Error(t, c.Start(context.Background()))
}

func TestControllerResetInvalidatesState(t *testing.T) {
	ms := &mockSink{}
	c, ring, _ := newTestController(t, ms, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))

	require.True(t, ring.TryPush(quoteUpdate("AAPL", 1000, 100.5, 100.6, 10, 20)))
	require.True(t, ring.TryPush(tradeUpdate("AAPL", 1500, 100.55, 50)))
	require.Eventually(t, func() bool { return ms.count() == 1 },
		time.Second, time.Millisecond)

	// reconnect: stale halves must not pair with fresh ones. The idle
	// loop polls every 100µs, so the reset is long consumed by the time
	// the next update goes in.
	c.SignalReset()
	time.Sleep(50 * time.Millisecond)

	require.True(t, ring.TryPush(tradeUpdate("AAPL", 2000, 101.0, 30)))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, ms.count(), "trade after reset must wait for a fresh quote")

	require.True(t, ring.TryPush(quoteUpdate("AAPL", 2100, 100.9, 101.1, 7, 9)))
	require.Eventually(t, func() bool { return ms.count() == 2 },
		time.Second, time.Millisecond)

	_, payload := ms.last()
	require.Contains(t, payload, `"last":101`)
	require.Contains(t, payload, `"bid":100.9`)

	cancel()
	c.Wait()
}

func TestControllerBatchDrainCoalesces(t *testing.T) {
	ms := &mockSink{}
	cfg := DefaultConfig()
	cfg.BatchDrain = true
	c, ring, _ := newTestController(t, ms, cfg)

	// make AAPL publish-ready, then stack three superseding quotes
	require.True(t, ring.TryPush(quoteUpdate("AAPL", 1000, 100.5, 100.6, 10, 20)))
	require.True(t, ring.TryPush(tradeUpdate("AAPL", 1500, 100.55, 50)))
	require.True(t, c.drainBurst(context.Background()))
	require.Equal(t, 1, ms.count())

	require.True(t, ring.TryPush(quoteUpdate("AAPL", 1600, 100.7, 100.8, 1, 1)))
	require.True(t, ring.TryPush(quoteUpdate("AAPL", 1700, 100.9, 101.0, 2, 2)))
	require.True(t, ring.TryPush(quoteUpdate("AAPL", 1800, 101.1, 101.2, 3, 3)))
	require.True(t, c.drainBurst(context.Background()))

	// one publish for the burst, carrying the last quote only
	require.Equal(t, 2, ms.count())
	_, payload := ms.last()
	require.Contains(t, payload, `"bid":101.1`)
	require.NotContains(t, payload, `"bid":100.7`)

	require.False(t, c.drainBurst(context.Background()), "empty queue drains nothing")
}

func TestControllerPublishFailureDoesNotStall(t *testing.T) {
	ms := &mockSink{}
	ms.setErr(errors.New("sink down"))
	c, ring, counters := newTestController(t, ms, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))

	require.True(t, ring.TryPush(quoteUpdate("AAPL", 1000, 100.5, 100.6, 10, 20)))
	require.True(t, ring.TryPush(tradeUpdate("AAPL", 1500, 100.55, 50)))
	require.True(t, ring.TryPush(tradeUpdate("AAPL", 1600, 100.60, 25)))

	require.Eventually(t, func() bool {
		return counters.PublishFailures.Load() == 2 && ring.Len() == 0
	}, time.Second, time.Millisecond)

	cancel()
	c.Wait()
	require.Equal(t, uint64(0), counters.Published.Load())
}

func TestControllerDrainTimeout(t *testing.T) {
	ms := &mockSink{delay: 20 * time.Millisecond}
	cfg := DefaultConfig()
	cfg.DrainTimeout = 30 * time.Millisecond
	c, ring, _ := newTestController(t, ms, cfg)

	// every pair triggers a slow publish; the drain cannot finish in time
	require.True(t, ring.TryPush(quoteUpdate("AAPL", 1, 100, 101, 1, 1)))
	require.True(t, ring.TryPush(tradeUpdate("AAPL", 2, 100.5, 1)))
	for i := 0; i < 30; i++ {
		require.True(t, ring.TryPush(tradeUpdate("AAPL", int64(3+i), 100.5, 1)))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Start(ctx))

	done := make(chan struct{})
	go func() { c.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop after drain timeout")
	}
	require.Equal(t, StateStopped, c.State())
	require.Greater(t, ring.Len(), 0, "timed-out drain abandons queued updates")
}
