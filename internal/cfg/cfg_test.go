package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, settings Settings) {
				assert.Equal(t, "ws://127.0.0.1:8000/ws", settings.WsURL)
				assert.Equal(t, "mock", settings.HistorySource)
				assert.Equal(t, "CON.F.US.EP.M25", settings.Symbol)
				assert.Equal(t, "5m", settings.Timeframe)
				assert.Equal(t, 15*time.Second, settings.Ping)
				assert.Equal(t, int64(512*1024), settings.ReadLimit)
				assert.Equal(t, 8081, settings.MetricsPort)
				assert.False(t, settings.Reconnect)
				assert.Equal(t, time.Second, settings.FeedTick)
			},
		},
		{
			name: "custom values",
			envVars: map[string]string{
				"WS_URL":         "wss://feed.example.com/ws",
				"HISTORY_SOURCE": "rest",
				"HISTORY_URL":    "https://feed.example.com",
				"SYMBOL":         "CON.F.US.ENQ.M25",
				"TIMEFRAME":      "15m",
				"RECONNECT":      "true",
				"PING_INTERVAL":  "30s",
				"READ_LIMIT":     "65536",
				"METRICS_PORT":   "9090",
				"LOG_LEVEL":      "debug",
				"LOG_PRETTY":     "true",
				"FEED_TICK":      "250ms",
			},
			validate: func(t *testing.T, settings Settings) {
				assert.Equal(t, "wss://feed.example.com/ws", settings.WsURL)
				assert.Equal(t, "rest", settings.HistorySource)
				assert.Equal(t, "https://feed.example.com", settings.HistoryURL)
				assert.Equal(t, "CON.F.US.ENQ.M25", settings.Symbol)
				assert.Equal(t, "15m", settings.Timeframe)
				assert.True(t, settings.Reconnect)
				assert.Equal(t, 30*time.Second, settings.Ping)
				assert.Equal(t, int64(65536), settings.ReadLimit)
				assert.Equal(t, 9090, settings.MetricsPort)
				assert.Equal(t, "debug", settings.LogLevel)
				assert.True(t, settings.LogPretty)
				assert.Equal(t, 250*time.Millisecond, settings.FeedTick)
			},
		},
		{
			name:    "unparseable values fall back to defaults",
			envVars: map[string]string{"PING_INTERVAL": "soon", "METRICS_PORT": "eighty"},
			validate: func(t *testing.T, settings Settings) {
				assert.Equal(t, 15*time.Second, settings.Ping)
				assert.Equal(t, 8081, settings.MetricsPort)
			},
		},
		{
			name:    "invalid timeframe",
			envVars: map[string]string{"TIMEFRAME": "2h"},
			wantErr: true,
		},
		{
			name:    "invalid scheme",
			envVars: map[string]string{"WS_URL": "https://example.com/ws"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validate(t, settings)
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearTestEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
feed:
  wsURL: ws://10.0.0.5:8000/ws
  historySource: rest
  historyURL: http://10.0.0.5:8000
  symbol: CON.F.US.MES.M25
  timeframe: 60m
  reconnect: true
system:
  dataPath: /tmp/charty
  pingInterval: 20s
  metricsPort: 9100
  restTimeout: 3s
log:
  level: warn
mockFeed:
  addr: ":9000"
  tick: 500ms
`), 0o600))
	t.Setenv("CONFIG_FILE", configPath)
	t.Setenv("TIMEFRAME", "15m") // environment overrides the file

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ws://10.0.0.5:8000/ws", settings.WsURL)
	assert.Equal(t, "rest", settings.HistorySource)
	assert.Equal(t, "http://10.0.0.5:8000", settings.HistoryURL)
	assert.Equal(t, "CON.F.US.MES.M25", settings.Symbol)
	assert.Equal(t, "15m", settings.Timeframe)
	assert.True(t, settings.Reconnect)
	assert.Equal(t, "/tmp/charty", settings.DataPath)
	assert.Equal(t, 20*time.Second, settings.Ping)
	assert.Equal(t, 10*time.Second, settings.WriteTimeout)
	assert.Equal(t, int64(512*1024), settings.ReadLimit)
	assert.Equal(t, 9100, settings.MetricsPort)
	assert.Equal(t, 3*time.Second, settings.RESTTimeout)
	assert.Equal(t, "warn", settings.LogLevel)
	assert.Equal(t, ":9000", settings.FeedAddr)
	assert.Equal(t, 500*time.Millisecond, settings.FeedTick)
}

func TestLoadFromYAML_Errors(t *testing.T) {
	clearTestEnv(t)
	dir := t.TempDir()

	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.yaml"))
	_, err := Load()
	assert.ErrorContains(t, err, "failed to read config file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("feed: [unclosed"), 0o600))
	t.Setenv("CONFIG_FILE", bad)
	_, err = Load()
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoad_DotEnv(t *testing.T) {
	clearTestEnv(t)
	envPath := filepath.Join(t.TempDir(), "charty.env")
	require.NoError(t, os.WriteFile(envPath, []byte("SYMBOL=CON.F.US.ENQ.M25\nTIMEFRAME=60m\n"), 0o600))
	t.Setenv("DOTENV_FILE", envPath)
	t.Setenv("TIMEFRAME", "15m") // already set, not overridden by the file
	// godotenv skips variables that exist, even when empty
	os.Unsetenv("SYMBOL")

	settings, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "CON.F.US.ENQ.M25", settings.Symbol)
	assert.Equal(t, "15m", settings.Timeframe)
}

func TestLoad_MissingExplicitDotEnv(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("DOTENV_FILE", filepath.Join(t.TempDir(), "nope.env"))

	_, err := Load()
	assert.ErrorContains(t, err, "failed to load env file")
}

// clearTestEnv clears potentially conflicting environment variables
func clearTestEnv(t *testing.T) {
	envVars := []string{
		"CONFIG_FILE", "DOTENV_FILE", "WS_URL", "HISTORY_URL", "HISTORY_SOURCE",
		"SYMBOL", "TIMEFRAME", "DATA_PATH", "METRICS_PORT", "PING_INTERVAL",
		"WRITE_TIMEOUT", "READ_LIMIT", "REST_TIMEOUT", "RECONNECT", "LOG_LEVEL",
		"LOG_PRETTY", "FEED_ADDR", "FEED_TICK",
	}

	for _, env := range envVars {
		t.Setenv(env, "")
	}
}
