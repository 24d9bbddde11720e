// Package cfg loads runtime settings from a YAML file or the environment.
package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"charty-feed/internal/common"
	"charty-feed/internal/marketdata"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	WsURL         string
	HistoryURL    string
	HistorySource string
	Symbol        string
	Timeframe     string
	Reconnect     bool
	DataPath      string
	MetricsPort   int
	Ping          time.Duration
	WriteTimeout  time.Duration
	ReadLimit     int64
	RESTTimeout   time.Duration
	LogLevel      string
	LogPretty     bool
	FeedAddr      string
	FeedTick      time.Duration
}

type ConfigFile struct {
	Feed struct {
		WsURL         string `yaml:"wsURL"`
		HistoryURL    string `yaml:"historyURL"`
		HistorySource string `yaml:"historySource"`
		Symbol        string `yaml:"symbol"`
		Timeframe     string `yaml:"timeframe"`
		Reconnect     bool   `yaml:"reconnect"`
	} `yaml:"feed"`

	System struct {
		DataPath     string `yaml:"dataPath"`
		PingInterval string `yaml:"pingInterval"`
		WriteTimeout string `yaml:"writeTimeout"`
		ReadLimit    int64  `yaml:"readLimit"`
		MetricsPort  int    `yaml:"metricsPort"`
		RESTTimeout  string `yaml:"restTimeout"`
	} `yaml:"system"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`

	MockFeed struct {
		Addr string `yaml:"addr"`
		Tick string `yaml:"tick"`
	} `yaml:"mockFeed"`
}

func Load() (Settings, error) {
	if err := loadDotEnv(); err != nil {
		return Settings{}, err
	}

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

// loadDotEnv populates the environment from DOTENV_FILE or ./.env.
// Variables already set are never overridden. A missing default file is fine.
func loadDotEnv() error {
	path := os.Getenv(common.EnvDotEnvFile)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings := Settings{
		WsURL:         getEnvOrDefault(common.EnvWsURL, orDefault(config.Feed.WsURL, common.DefaultWsURL)),
		HistoryURL:    getEnvOrDefault(common.EnvHistoryURL, orDefault(config.Feed.HistoryURL, common.DefaultHistoryURL)),
		HistorySource: getEnvOrDefault(common.EnvHistorySource, orDefault(config.Feed.HistorySource, common.DefaultHistorySource)),
		Symbol:        getEnvOrDefault(common.EnvSymbol, orDefault(config.Feed.Symbol, common.DefaultSymbol)),
		Timeframe:     getEnvOrDefault(common.EnvTimeframe, orDefault(config.Feed.Timeframe, common.DefaultTimeframe)),
		Reconnect:     getBoolOrDefault(common.EnvReconnect, config.Feed.Reconnect),
		DataPath:      getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		MetricsPort:   getIntOrDefault(common.EnvMetricsPort, orDefault(config.System.MetricsPort, common.DefaultMetricsPort)),
		Ping:          getDurationOrDefault(common.EnvPingInterval, parseDurationOr(config.System.PingInterval, 15*time.Second)),
		WriteTimeout:  getDurationOrDefault(common.EnvWriteTimeout, parseDurationOr(config.System.WriteTimeout, 10*time.Second)),
		ReadLimit:     getInt64OrDefault(common.EnvReadLimit, orDefault(config.System.ReadLimit, common.DefaultReadLimit)),
		RESTTimeout:   getDurationOrDefault(common.EnvRESTTimeout, parseDurationOr(config.System.RESTTimeout, 5*time.Second)),
		LogLevel:      getEnvOrDefault(common.EnvLogLevel, orDefault(config.Log.Level, common.DefaultLogLevel)),
		LogPretty:     getBoolOrDefault(common.EnvLogPretty, config.Log.Pretty),
		FeedAddr:      getEnvOrDefault(common.EnvFeedAddr, orDefault(config.MockFeed.Addr, common.DefaultFeedAddr)),
		FeedTick:      getDurationOrDefault(common.EnvFeedTick, parseDurationOr(config.MockFeed.Tick, time.Second)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		WsURL:         getEnvOrDefault(common.EnvWsURL, common.DefaultWsURL),
		HistoryURL:    getEnvOrDefault(common.EnvHistoryURL, common.DefaultHistoryURL),
		HistorySource: getEnvOrDefault(common.EnvHistorySource, common.DefaultHistorySource),
		Symbol:        getEnvOrDefault(common.EnvSymbol, common.DefaultSymbol),
		Timeframe:     getEnvOrDefault(common.EnvTimeframe, common.DefaultTimeframe),
		Reconnect:     getBoolOrDefault(common.EnvReconnect, false),
		DataPath:      os.Getenv(common.EnvDataPath), // optional, current directory when empty
		MetricsPort:   getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		Ping:          getDurationOrDefault(common.EnvPingInterval, 15*time.Second),
		WriteTimeout:  getDurationOrDefault(common.EnvWriteTimeout, 10*time.Second),
		ReadLimit:     getInt64OrDefault(common.EnvReadLimit, common.DefaultReadLimit),
		RESTTimeout:   getDurationOrDefault(common.EnvRESTTimeout, 5*time.Second),
		LogLevel:      getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogPretty:     getBoolOrDefault(common.EnvLogPretty, false),
		FeedAddr:      getEnvOrDefault(common.EnvFeedAddr, common.DefaultFeedAddr),
		FeedTick:      getDurationOrDefault(common.EnvFeedTick, time.Second),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func parseDurationOr(v string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// validateSettings performs range and consistency checks on the loaded values
func validateSettings(settings *Settings) error {
	// Validate URLs
	if settings.WsURL == "" {
		return fmt.Errorf("WebSocket URL cannot be empty")
	}
	u, err := url.Parse(settings.WsURL)
	if err != nil {
		return fmt.Errorf("invalid WebSocket URL %q: %w", settings.WsURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("WebSocket URL must use ws or wss, got %q", u.Scheme)
	}

	switch settings.HistorySource {
	case common.HistorySourceMock:
	case common.HistorySourceREST:
		if settings.HistoryURL == "" {
			return fmt.Errorf("history URL is required when history source is %q", common.HistorySourceREST)
		}
	default:
		return fmt.Errorf("history source must be %q or %q, got %q",
			common.HistorySourceMock, common.HistorySourceREST, settings.HistorySource)
	}

	// Validate chart selection
	if settings.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !marketdata.KnownTimeframe(settings.Timeframe) {
		return fmt.Errorf("unsupported timeframe %q", settings.Timeframe)
	}

	// Validate time durations
	if settings.Ping < time.Second || settings.Ping > 5*time.Minute {
		return fmt.Errorf("ping interval must be between 1s and 5m, got %v", settings.Ping)
	}
	if settings.WriteTimeout < time.Second || settings.WriteTimeout > time.Minute {
		return fmt.Errorf("write timeout must be between 1s and 1m, got %v", settings.WriteTimeout)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}
	if settings.FeedTick < 10*time.Millisecond || settings.FeedTick > time.Minute {
		return fmt.Errorf("feed tick must be between 10ms and 1m, got %v", settings.FeedTick)
	}

	// Validate integer values
	if settings.MetricsPort < common.MinMetricsPort || settings.MetricsPort > common.MaxMetricsPort {
		return fmt.Errorf("metrics port must be between %d and %d, got %d",
			common.MinMetricsPort, common.MaxMetricsPort, settings.MetricsPort)
	}
	if settings.ReadLimit < common.MinReadLimit || settings.ReadLimit > common.MaxReadLimit {
		return fmt.Errorf("read limit must be between %d and %d bytes, got %d",
			common.MinReadLimit, common.MaxReadLimit, settings.ReadLimit)
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	return nil
}
