package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
feed:
  url: ws://localhost:8090/ticks
redis:
  addr: localhost:6379
watchlist:
  - symbol: AAPL
    handle: 1
    conId: 265598
    exchange: SMART
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 10000, cfg.Pipeline.QueueCapacity)
	assert.Equal(t, 5000, cfg.Pipeline.DrainTimeoutMs)
	assert.Equal(t, 100, cfg.Pipeline.IdleBackoffUs)
	assert.Equal(t, "TWS", cfg.Pipeline.TopicPrefix)
	assert.Equal(t, "quote_and_trade", cfg.Pipeline.PublishPolicy)
	assert.False(t, cfg.Pipeline.BatchDrain)
	assert.Equal(t, 5000, cfg.Redis.DialTimeoutMs)
	assert.Equal(t, 500, cfg.Feed.ReconnectMinMs)
	assert.Equal(t, 30000, cfg.Feed.ReconnectMaxMs)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"stdout"}, cfg.Log.Outputs)
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
env: prod
feed:
  url: ws://gateway:8090/ticks
  reconnectMinMs: 250
  reconnectMaxMs: 10000
redis:
  addr: redis:6379
  password: secret
  db: 2
pipeline:
  queueCapacity: 4096
  drainTimeoutMs: 2000
  idleBackoffUs: 50
  publishPolicy: quote_only
  batchDrain: true
  topicPrefix: MD
metrics:
  addr: ":9200"
log:
  level: debug
  format: console
watchlist:
  - symbol: AAPL
    handle: 1
    conId: 265598
    exchange: SMART
  - symbol: SPY
    handle: 2
    conId: 756733
    exchange: ARCA
`))
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, 4096, cfg.Pipeline.QueueCapacity)
	assert.Equal(t, "quote_only", cfg.Pipeline.PublishPolicy)
	assert.True(t, cfg.Pipeline.BatchDrain)
	assert.Equal(t, "MD", cfg.Pipeline.TopicPrefix)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 2, cfg.Redis.DB)
	require.Len(t, cfg.Watchlist, 2)
	assert.Equal(t, int32(2), cfg.Watchlist[1].Handle)
	assert.Equal(t, int32(756733), cfg.Watchlist[1].ConID)
	assert.Equal(t, "ARCA", cfg.Watchlist[1].Exchange)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing feed url",
			body: `
redis:
  addr: localhost:6379
watchlist:
  - {symbol: AAPL, handle: 1}
`,
			want: "feed.url",
		},
		{
			name: "missing redis addr",
			body: `
feed:
  url: ws://localhost:8090/ticks
watchlist:
  - {symbol: AAPL, handle: 1}
`,
			want: "redis.addr",
		},
		{
			name: "bad publish policy",
			body: minimalConfig + `
pipeline:
  publishPolicy: trades_only
`,
			want: "publishPolicy",
		},
		{
			name: "empty watchlist",
			body: `
feed:
  url: ws://localhost:8090/ticks
redis:
  addr: localhost:6379
`,
			want: "watchlist",
		},
		{
			name: "duplicate handle",
			body: `
feed:
  url: ws://localhost:8090/ticks
redis:
  addr: localhost:6379
watchlist:
  - {symbol: AAPL, handle: 1}
  - {symbol: SPY, handle: 1}
`,
			want: "handle 1",
		},
		{
			name: "duplicate symbol",
			body: `
feed:
  url: ws://localhost:8090/ticks
redis:
  addr: localhost:6379
watchlist:
  - {symbol: AAPL, handle: 1}
  - {symbol: AAPL, handle: 2}
`,
			want: "duplicated",
		},
		{
			name: "zero handle",
			body: `
feed:
  url: ws://localhost:8090/ticks
redis:
  addr: localhost:6379
watchlist:
  - {symbol: AAPL, handle: 0}
`,
			want: "handle must be > 0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateReconnectWindow(t *testing.T) {
	_, err := Load(writeConfig(t, `
feed:
  url: ws://localhost:8090/ticks
  reconnectMinMs: 5000
  reconnectMaxMs: 100
redis:
  addr: localhost:6379
watchlist:
  - {symbol: AAPL, handle: 1}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconnectMinMs")
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("TWSBRIDGE_REDIS_ADDR", "redis-prod:6379")
	t.Setenv("TWSBRIDGE_REDIS_PASSWORD", "hunter2")
	t.Setenv("TWSBRIDGE_FEED_URL", "ws://gateway-prod:8090/ticks")

	cfg, err := LoadWithEnvOverrides(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "redis-prod:6379", cfg.Redis.Addr)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, "ws://gateway-prod:8090/ticks", cfg.Feed.URL)
}
