package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env       string         `yaml:"env"`
	Feed      FeedConfig     `yaml:"feed"`
	Redis     RedisConfig    `yaml:"redis"`
	Pipeline  PipelineConfig `yaml:"pipeline"`
	Metrics   MetricsConfig  `yaml:"metrics"`
	Log       LogConfig      `yaml:"log"`
	Watchlist []WatchEntry   `yaml:"watchlist"`
}

// FeedConfig points at the upstream tick feed.
type FeedConfig struct {
	URL            string `yaml:"url"`
	ReconnectMinMs int    `yaml:"reconnectMinMs"` // initial reconnect backoff
	ReconnectMaxMs int    `yaml:"reconnectMaxMs"` // backoff cap
}

type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	DialTimeoutMs int    `yaml:"dialTimeoutMs"`
}

// PipelineConfig tunes the transfer queue and the consumer loop.
type PipelineConfig struct {
	QueueCapacity  int    `yaml:"queueCapacity"`
	DrainTimeoutMs int    `yaml:"drainTimeoutMs"`
	IdleBackoffUs  int    `yaml:"idleBackoffUs"`
	PublishPolicy  string `yaml:"publishPolicy"` // quote_and_trade | quote_only
	BatchDrain     bool   `yaml:"batchDrain"`
	TopicPrefix    string `yaml:"topicPrefix"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig mirrors the logger setup.
type LogConfig struct {
	Level      string   `yaml:"level"`  // debug, info, warn, error
	Format     string   `yaml:"format"` // json or console
	Outputs    []string `yaml:"outputs"`
	OutputFile string   `yaml:"outputFile"`
}

// WatchEntry is one subscribed instrument. Handles are assigned here,
// not hardcoded: the directory is populated from this list at
// subscription time.
type WatchEntry struct {
	Symbol   string `yaml:"symbol"`
	Handle   int32  `yaml:"handle"`
	ConID    int32  `yaml:"conId"`
	Exchange string `yaml:"exchange"`
}

// Load reads YAML config from path, applies defaults and validates.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides connection fields from
// env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("TWSBRIDGE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TWSBRIDGE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TWSBRIDGE_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Pipeline.QueueCapacity == 0 {
		cfg.Pipeline.QueueCapacity = 10000
	}
	if cfg.Pipeline.DrainTimeoutMs == 0 {
		cfg.Pipeline.DrainTimeoutMs = 5000
	}
	if cfg.Pipeline.IdleBackoffUs == 0 {
		cfg.Pipeline.IdleBackoffUs = 100
	}
	if cfg.Pipeline.TopicPrefix == "" {
		cfg.Pipeline.TopicPrefix = "TWS"
	}
	if cfg.Pipeline.PublishPolicy == "" {
		cfg.Pipeline.PublishPolicy = "quote_and_trade"
	}
	if cfg.Redis.DialTimeoutMs == 0 {
		cfg.Redis.DialTimeoutMs = 5000
	}
	if cfg.Feed.ReconnectMinMs == 0 {
		cfg.Feed.ReconnectMinMs = 500
	}
	if cfg.Feed.ReconnectMaxMs == 0 {
		cfg.Feed.ReconnectMaxMs = 30000
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9100"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if len(cfg.Log.Outputs) == 0 {
		cfg.Log.Outputs = []string{"stdout"}
	}
}

// Validate ensures required fields are present and consistent.
func Validate(cfg AppConfig) error {
	if cfg.Feed.URL == "" {
		return errors.New("feed.url is required")
	}
	if cfg.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if cfg.Pipeline.QueueCapacity < 0 {
		return errors.New("pipeline.queueCapacity must be > 0")
	}
	switch cfg.Pipeline.PublishPolicy {
	case "quote_and_trade", "quote_only":
	default:
		return fmt.Errorf("pipeline.publishPolicy %q is not quote_and_trade or quote_only", cfg.Pipeline.PublishPolicy)
	}
	if cfg.Feed.ReconnectMinMs > cfg.Feed.ReconnectMaxMs {
		return errors.New("feed.reconnectMinMs must be <= feed.reconnectMaxMs")
	}
	if len(cfg.Watchlist) == 0 {
		return errors.New("watchlist is required")
	}
	handles := make(map[int32]string, len(cfg.Watchlist))
	symbols := make(map[string]struct{}, len(cfg.Watchlist))
	for _, w := range cfg.Watchlist {
		if w.Symbol == "" {
			return errors.New("watchlist entry missing symbol")
		}
		if w.Handle <= 0 {
			return fmt.Errorf("watchlist %s: handle must be > 0", w.Symbol)
		}
		if prev, dup := handles[w.Handle]; dup {
			return fmt.Errorf("watchlist %s: handle %d already used by %s", w.Symbol, w.Handle, prev)
		}
		if _, dup := symbols[w.Symbol]; dup {
			return fmt.Errorf("watchlist symbol %s duplicated", w.Symbol)
		}
		handles[w.Handle] = w.Symbol
		symbols[w.Symbol] = struct{}{}
	}
	return nil
}
