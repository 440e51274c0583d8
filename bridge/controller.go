// Package bridge contains the consumer side of the pipeline: the
// per-instrument aggregator, the publisher and the lifecycle controller
// that runs them on a single drain goroutine.
package bridge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/faroukBakari/tws-redis-bridge-sub000/market"
	"github.com/faroukBakari/tws-redis-bridge-sub000/monitor"
	"github.com/faroukBakari/tws-redis-bridge-sub000/queue"
)

// State is the lifecycle phase of the controller.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Config tunes the drain loop.
type Config struct {
	// DrainTimeout bounds how long shutdown waits for the queue to empty.
	DrainTimeout time.Duration
	// IdleBackoff is the sleep between polls of an empty queue.
	IdleBackoff time.Duration
	// BatchDrain enables the drain-merge-publish cycle: each burst
	// coalesces updates per instrument and publishes once. Default is
	// publish-per-merge.
	BatchDrain bool
}

func DefaultConfig() Config {
	return Config{
		DrainTimeout: 5 * time.Second,
		IdleBackoff:  100 * time.Microsecond,
	}
}

// Controller wires queue, aggregator and publisher and owns the consumer
// goroutine. Shutdown is signaled through the context passed to Start;
// reconnect invalidation through SignalReset, which the consumer honors
// at the top of its loop without blocking the producer.
type Controller struct {
	ring     *queue.Ring
	agg      *Aggregator
	pub      *Publisher
	counters *monitor.Counters
	log      *zap.Logger
	cfg      Config

	state atomic.Int32
	reset atomic.Bool
	done  chan struct{}

	// batch-drain scratch, consumer goroutine only
	pending map[string]*market.InstrumentState
	order   []string
}

func NewController(ring *queue.Ring, agg *Aggregator, pub *Publisher, counters *monitor.Counters, log *zap.Logger, cfg Config) *Controller {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = 100 * time.Microsecond
	}
	return &Controller{
		ring:     ring,
		agg:      agg,
		pub:      pub,
		counters: counters,
		log:      log,
		cfg:      cfg,
		done:     make(chan struct{}),
		pending:  make(map[string]*market.InstrumentState),
	}
}

// Counters exposes the pipeline counters this controller reports on.
func (c *Controller) Counters() *monitor.Counters { return c.counters }

// State returns the current lifecycle phase.
func (c *Controller) State() State { return State(c.state.Load()) }

// SignalReset asks the consumer to invalidate all instrument state. The
// upstream collaborator calls this after a reconnect, before fresh data
// starts flowing against stale snapshots.
func (c *Controller) SignalReset() { c.reset.Store(true) }

// Start transitions Starting→Running and launches the drain goroutine.
// Canceling ctx begins the drain; Wait blocks until Stopped.
func (c *Controller) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		return fmt.Errorf("start from state %s", c.State())
	}
	go c.run(ctx)
	return nil
}

// Wait blocks until the drain goroutine has exited.
func (c *Controller) Wait() { <-c.done }

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	defer c.state.Store(int32(StateStopped))

	// Publishes keep their own context: once ctx is canceled the loop is
	// draining, and drained snapshots still need to reach the sink.
	pubCtx := context.Background()
	var drainDeadline time.Time

	for {
		if c.reset.CompareAndSwap(true, false) {
			c.agg.ResetAll()
			c.log.Info("instrument state invalidated after reconnect",
				zap.Int("instruments", c.agg.Len()))
		}

		if c.State() == StateRunning && ctx.Err() != nil {
			c.state.Store(int32(StateDraining))
			drainDeadline = time.Now().Add(c.cfg.DrainTimeout)
			c.log.Info("draining transfer queue", zap.Int("depth", c.ring.Len()))
		}
		if c.State() == StateDraining && time.Now().After(drainDeadline) {
			c.log.Warn("drain timeout, abandoning queued updates",
				zap.Int("remaining", c.ring.Len()))
			c.logFinal()
			return
		}

		var processed bool
		if c.cfg.BatchDrain {
			processed = c.drainBurst(pubCtx)
		} else if u, ok := c.ring.TryPop(); ok {
			c.handle(pubCtx, u)
			processed = true
		}
		if processed {
			continue
		}
		if c.State() == StateDraining {
			c.logFinal()
			return
		}
		time.Sleep(c.cfg.IdleBackoff)
	}
}

func (c *Controller) handle(ctx context.Context, u market.TickUpdate) {
	if u.Kind == market.KindBar {
		_ = c.pub.PublishBar(ctx, u)
		return
	}
	if s, ready := c.agg.Apply(u); ready {
		_ = c.pub.PublishState(ctx, s)
	}
}

// drainBurst empties the queue as it stands, merging everything first and
// publishing each dirty instrument once. Intermediate states superseded
// within the burst are never externalized.
func (c *Controller) drainBurst(ctx context.Context) bool {
	n := 0
	for {
		u, ok := c.ring.TryPop()
		if !ok {
			break
		}
		n++
		if u.Kind == market.KindBar {
			_ = c.pub.PublishBar(ctx, u)
			continue
		}
		s, ready := c.agg.Apply(u)
		if !ready {
			continue
		}
		if _, seen := c.pending[s.Symbol]; !seen {
			c.pending[s.Symbol] = s
			c.order = append(c.order, s.Symbol)
		}
	}
	for _, sym := range c.order {
		_ = c.pub.PublishState(ctx, c.pending[sym])
		delete(c.pending, sym)
	}
	c.order = c.order[:0]
	return n > 0
}

func (c *Controller) logFinal() {
	snap := c.counters.Snapshot()
	c.log.Info("pipeline stopped",
		zap.Uint64("published", snap.Published),
		zap.Uint64("publish_failures", snap.PublishFailures),
		zap.Uint64("dropped_on_full", snap.DroppedOnFull),
		zap.Uint64("rejected_malformed", snap.RejectedMalformed),
		zap.Uint64("unknown_handle", snap.UnknownHandle))
}
