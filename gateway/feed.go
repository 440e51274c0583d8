// Package gateway adapts the upstream tick feed's websocket surface down
// to the narrow feed.TickSource contract the bridge core consumes.
// Protocol framing, session handling and reconnect timing live here, not
// in the core.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/faroukBakari/tws-redis-bridge-sub000/config"
	"github.com/faroukBakari/tws-redis-bridge-sub000/feed"
	"github.com/faroukBakari/tws-redis-bridge-sub000/market"
)

// Feed maintains the websocket session to the upstream source, owns the
// subscription path (the only writer of the instrument directory) and
// dispatches parsed events to the tick source, synchronously on the read
// goroutine.
type Feed struct {
	url          string
	dialer       *websocket.Dialer
	source       feed.TickSource
	dir          *market.Directory
	log          *zap.Logger
	reconnectMin time.Duration
	reconnectMax time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	desired map[int32]config.WatchEntry
}

func NewFeed(cfg config.FeedConfig, source feed.TickSource, dir *market.Directory, log *zap.Logger) *Feed {
	if cfg.ReconnectMinMs <= 0 {
		cfg.ReconnectMinMs = 500
	}
	if cfg.ReconnectMaxMs < cfg.ReconnectMinMs {
		cfg.ReconnectMaxMs = cfg.ReconnectMinMs
	}
	return &Feed{
		url:          cfg.URL,
		dialer:       websocket.DefaultDialer,
		source:       source,
		dir:          dir,
		log:          log,
		reconnectMin: time.Duration(cfg.ReconnectMinMs) * time.Millisecond,
		reconnectMax: time.Duration(cfg.ReconnectMaxMs) * time.Millisecond,
		desired:      make(map[int32]config.WatchEntry),
	}
}

// Run connects and reads until ctx is done, reconnecting with capped
// exponential backoff. After every reconnect it reports StateReconnected
// (which resets downstream state) and re-subscribes the watchlist.
func (f *Feed) Run(ctx context.Context, watchlist []config.WatchEntry) error {
	f.UpdateWatchlist(watchlist)

	backoff := f.reconnectMin
	first := true
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := f.runSession(ctx, first)
		first = false
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Warn("feed session ended", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > f.reconnectMax {
			backoff = f.reconnectMax
		}
	}
}

func (f *Feed) runSession(ctx context.Context, first bool) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.Close()

	// Close the socket when ctx ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	f.mu.Lock()
	f.conn = conn
	entries := make([]config.WatchEntry, 0, len(f.desired))
	for _, w := range f.desired {
		entries = append(entries, w)
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
	}()

	if first {
		f.source.OnConnectionState(feed.StateConnected)
	} else {
		// Fresh session: whatever was aggregated before is stale.
		f.source.OnConnectionState(feed.StateReconnected)
	}
	f.log.Info("feed connected", zap.String("url", f.url), zap.Int("instruments", len(entries)))

	for _, w := range entries {
		if err := f.subscribe(w); err != nil {
			return err
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			f.source.OnConnectionState(feed.StateDisconnected)
			return fmt.Errorf("read: %w", err)
		}
		f.handleMessage(data)
	}
}

func (f *Feed) handleMessage(data []byte) {
	msg, err := parseMessage(data)
	if err != nil {
		f.log.Debug("unparseable feed message", zap.Error(err))
		return
	}
	switch msg.Type {
	case msgBidAsk:
		f.source.OnBidAsk(msg.Handle, msg.Ts, msg.Bid, msg.Ask, msg.BidSize, msg.AskSize)
	case msgLast:
		f.source.OnAllLast(msg.Handle, msg.Ts, msg.Price, msg.Size, msg.PastLimit)
	case msgBar:
		f.source.OnBar(msg.Handle, msg.Ts, msg.Open, msg.High, msg.Low, msg.Close, msg.Volume)
	case msgSubscribed:
		// Subscription confirmed: only now does the handle resolve.
		f.mu.Lock()
		w, ok := f.desired[msg.Handle]
		f.mu.Unlock()
		if ok {
			f.dir.Put(w.Handle, market.Instrument{Symbol: w.Symbol, ConID: w.ConID, Exchange: w.Exchange})
			f.log.Info("subscribed", zap.String("symbol", w.Symbol), zap.Int32("handle", w.Handle))
		}
	case msgUnsubscribed:
		f.dir.Remove(msg.Handle)
	case msgError:
		f.log.Warn("feed error message", zap.Int32("handle", msg.Handle))
	default:
		// Upstream surfaces many event types the bridge does not consume.
	}
}

// UpdateWatchlist reconciles the desired instrument set, subscribing new
// entries and unsubscribing removed ones. Called at startup and by the
// config watcher.
func (f *Feed) UpdateWatchlist(watchlist []config.WatchEntry) {
	next := make(map[int32]config.WatchEntry, len(watchlist))
	for _, w := range watchlist {
		next[w.Handle] = w
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for handle, w := range f.desired {
		if _, keep := next[handle]; !keep {
			if f.conn != nil {
				_ = f.writeLocked(subscribeRequest{Op: "unsubscribe", Handle: handle})
			}
			f.dir.Remove(handle)
			f.log.Info("unsubscribed", zap.String("symbol", w.Symbol), zap.Int32("handle", handle))
		}
	}
	for handle, w := range next {
		if _, have := f.desired[handle]; !have && f.conn != nil {
			if err := f.writeLocked(subscribeRequest{
				Op: "subscribe", Handle: w.Handle, Symbol: w.Symbol, ConID: w.ConID, Exchange: w.Exchange,
			}); err != nil {
				f.log.Warn("subscribe failed", zap.String("symbol", w.Symbol), zap.Error(err))
			}
		}
	}
	f.desired = next
}

func (f *Feed) subscribe(w config.WatchEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeLocked(subscribeRequest{
		Op: "subscribe", Handle: w.Handle, Symbol: w.Symbol, ConID: w.ConID, Exchange: w.Exchange,
	})
}

// writeLocked marshals and sends one control message; callers hold mu.
func (f *Feed) writeLocked(req subscribeRequest) error {
	if f.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return f.conn.WriteMessage(websocket.TextMessage, payload)
}
