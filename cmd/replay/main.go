// Command replay feeds recorded ticks through the same normalizer,
// queue and aggregator as the live bridge, publishing either to Redis or
// to stdout. Useful for soak runs and payload inspection without an
// upstream session.
//
// CSV rows, one event each:
//
//	quote,<symbol>,<handle>,<ts-millis>,<bid>,<ask>,<bidSize>,<askSize>
//	trade,<symbol>,<handle>,<ts-millis>,<price>,<size>
//	bar,<symbol>,<handle>,<ts-millis>,<open>,<high>,<low>,<close>,<volume>
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/faroukBakari/tws-redis-bridge-sub000/bridge"
	"github.com/faroukBakari/tws-redis-bridge-sub000/feed"
	"github.com/faroukBakari/tws-redis-bridge-sub000/infrastructure/logger"
	"github.com/faroukBakari/tws-redis-bridge-sub000/market"
	"github.com/faroukBakari/tws-redis-bridge-sub000/monitor"
	"github.com/faroukBakari/tws-redis-bridge-sub000/queue"
	"github.com/faroukBakari/tws-redis-bridge-sub000/sink"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}

type stdoutSink struct{}

func (stdoutSink) Publish(_ context.Context, topic string, payload []byte) error {
	_, err := fmt.Printf("%s %s\n", topic, payload)
	return err
}

func run() error {
	csvPath := flag.String("csv", "", "tick CSV to replay")
	redisAddr := flag.String("redis", "", "redis address; empty prints payloads to stdout")
	prefix := flag.String("prefix", "TWS", "topic prefix")
	policyFlag := flag.String("policy", "quote_and_trade", "publish policy")
	rate := flag.Int("rate", 0, "events per second, 0 for unthrottled")
	capacity := flag.Int("capacity", 10000, "transfer queue capacity")
	flag.Parse()

	if *csvPath == "" {
		return fmt.Errorf("missing -csv")
	}

	log, err := logger.New(logger.Config{Level: "info", Format: "console", Outputs: []string{"stdout"}})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	var out sink.Sink = stdoutSink{}
	if *redisAddr != "" {
		r, err := sink.NewRedis(sink.RedisConfig{Addr: *redisAddr})
		if err != nil {
			return err
		}
		defer r.Close()
		out = r
	}

	policy, err := bridge.ParsePolicy(*policyFlag)
	if err != nil {
		return err
	}

	counters := &monitor.Counters{}
	ring := queue.NewRing(*capacity)
	agg := bridge.NewAggregator(policy)
	pub := bridge.NewPublisher(out, *prefix, counters, log)
	ctrl := bridge.NewController(ring, agg, pub, counters, log, bridge.Config{DrainTimeout: 10 * time.Second})

	dir := market.NewDirectory()
	norm := feed.NewNormalizer(dir, ring, counters, log, ctrl.SignalReset)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var throttle <-chan time.Time
	if *rate > 0 {
		t := time.NewTicker(time.Second / time.Duration(*rate))
		defer t.Stop()
		throttle = t.C
	}

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	events, line := 0, 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("csv line %d: %w", line+1, err)
		}
		line++
		if throttle != nil {
			<-throttle
		}
		if err := dispatch(norm, dir, row); err != nil {
			log.Warn("skipping row", zap.Int("line", line), zap.Error(err))
			continue
		}
		events++
	}

	// Stop accepting and drain what is queued.
	cancel()
	ctrl.Wait()

	snap := counters.Snapshot()
	log.Info("replay finished",
		zap.Int("events", events),
		zap.Uint64("published", snap.Published),
		zap.Uint64("publish_failures", snap.PublishFailures),
		zap.Uint64("dropped_on_full", snap.DroppedOnFull),
		zap.Uint64("rejected_malformed", snap.RejectedMalformed))
	return nil
}

// dispatch registers the row's handle on first sight, then replays the
// event through the normalizer as a live callback would.
func dispatch(norm *feed.Normalizer, dir *market.Directory, row []string) error {
	if len(row) < 4 {
		return fmt.Errorf("want at least 4 fields, got %d", len(row))
	}
	kind, symbol := row[0], row[1]
	handle64, err := strconv.ParseInt(row[2], 10, 32)
	if err != nil {
		return fmt.Errorf("handle: %w", err)
	}
	handle := int32(handle64)
	ts, err := strconv.ParseInt(row[3], 10, 64)
	if err != nil {
		return fmt.Errorf("ts: %w", err)
	}
	if _, ok := dir.Lookup(handle); !ok {
		dir.Put(handle, market.Instrument{Symbol: symbol})
	}

	nums := make([]float64, 0, 5)
	for _, s := range row[4:] {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("field %q: %w", s, err)
		}
		nums = append(nums, v)
	}

	switch kind {
	case "quote":
		if len(nums) != 4 {
			return fmt.Errorf("quote wants bid,ask,bidSize,askSize")
		}
		norm.OnBidAsk(handle, ts, nums[0], nums[1], int32(nums[2]), int32(nums[3]))
	case "trade":
		if len(nums) != 2 {
			return fmt.Errorf("trade wants price,size")
		}
		norm.OnAllLast(handle, ts, nums[0], int32(nums[1]), false)
	case "bar":
		if len(nums) != 5 {
			return fmt.Errorf("bar wants open,high,low,close,volume")
		}
		norm.OnBar(handle, ts, nums[0], nums[1], nums[2], nums[3], nums[4])
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
	return nil
}
