// Command bridge runs the tick-to-Redis pipeline: it subscribes the
// configured watchlist on the upstream feed, merges partial updates into
// complete snapshots and republishes them on Redis pub/sub.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"github.com/faroukBakari/tws-redis-bridge-sub000/bridge"
	"github.com/faroukBakari/tws-redis-bridge-sub000/config"
	"github.com/faroukBakari/tws-redis-bridge-sub000/feed"
	"github.com/faroukBakari/tws-redis-bridge-sub000/gateway"
	"github.com/faroukBakari/tws-redis-bridge-sub000/infrastructure/logger"
	"github.com/faroukBakari/tws-redis-bridge-sub000/market"
	"github.com/faroukBakari/tws-redis-bridge-sub000/monitor"
	"github.com/faroukBakari/tws-redis-bridge-sub000/queue"
	"github.com/faroukBakari/tws-redis-bridge-sub000/sink"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bridge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Outputs:    cfg.Log.Outputs,
		OutputFile: cfg.Log.OutputFile,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	counters := &monitor.Counters{}
	ring := queue.NewRing(cfg.Pipeline.QueueCapacity)

	mon := monitor.New(monitor.DefaultConfig(), counters, ring.Len)
	mux := http.NewServeMux()
	mux.Handle("/metrics", mon.Handler())
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server", zap.Error(err))
		}
	}()

	// Startup is the only place a sink failure is fatal.
	redisSink, err := sink.NewRedis(sink.RedisConfig{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: time.Duration(cfg.Redis.DialTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	defer redisSink.Close()
	log.Info("redis connected", zap.String("addr", cfg.Redis.Addr))

	policy, err := bridge.ParsePolicy(cfg.Pipeline.PublishPolicy)
	if err != nil {
		return err
	}
	agg := bridge.NewAggregator(policy)
	pub := bridge.NewPublisher(redisSink, cfg.Pipeline.TopicPrefix, counters, log)
	ctrl := bridge.NewController(ring, agg, pub, counters, log, bridge.Config{
		DrainTimeout: time.Duration(cfg.Pipeline.DrainTimeoutMs) * time.Millisecond,
		IdleBackoff:  time.Duration(cfg.Pipeline.IdleBackoffUs) * time.Microsecond,
		BatchDrain:   cfg.Pipeline.BatchDrain,
	})

	dir := market.NewDirectory()
	norm := feed.NewNormalizer(dir, ring, counters, log, ctrl.SignalReset)
	upstream := gateway.NewFeed(cfg.Feed, norm, dir, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	go func() {
		if err := upstream.Run(ctx, cfg.Watchlist); err != nil && ctx.Err() == nil {
			log.Error("feed terminated", zap.Error(err))
		}
	}()
	go func() {
		w := config.Watcher{Path: *configPath}
		_ = w.Start(ctx, func(next config.AppConfig) {
			log.Info("config reloaded", zap.Int("watchlist", len(next.Watchlist)))
			upstream.UpdateWatchlist(next.Watchlist)
		})
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("bridge running",
		zap.String("env", cfg.Env),
		zap.Int("queue_capacity", ring.Cap()),
		zap.String("publish_policy", cfg.Pipeline.PublishPolicy),
		zap.Int("watchlist", len(cfg.Watchlist)))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("shutdown signal received, draining")

	ctrl.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("shutdown complete", zap.String("state", ctrl.State().String()))
	return nil
}
