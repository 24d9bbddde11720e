package cfg

import (
	"strings"
	"testing"
	"time"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	return &Settings{
		WsURL:         "ws://127.0.0.1:8000/ws",
		HistoryURL:    "http://127.0.0.1:8000",
		HistorySource: "mock",
		Symbol:        "CON.F.US.EP.M25",
		Timeframe:     "5m",
		MetricsPort:   8081,
		Ping:          15 * time.Second,
		WriteTimeout:  10 * time.Second,
		ReadLimit:     512 * 1024,
		RESTTimeout:   5 * time.Second,
		LogLevel:      "info",
		FeedAddr:      ":8000",
		FeedTick:      time.Second,
	}
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := createValidSettings()

	err := validateSettings(settings)
	if err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"empty ws url", func(s *Settings) { s.WsURL = "" }, "WebSocket URL cannot be empty"},
		{"http ws url", func(s *Settings) { s.WsURL = "http://127.0.0.1:8000/ws" }, "must use ws or wss"},
		{"bad ws url", func(s *Settings) { s.WsURL = "ws://[::1" }, "invalid WebSocket URL"},
		{"unknown history source", func(s *Settings) { s.HistorySource = "postgres" }, "history source must be"},
		{"rest without url", func(s *Settings) { s.HistorySource = "rest"; s.HistoryURL = "" }, "history URL is required"},
		{"empty symbol", func(s *Settings) { s.Symbol = "" }, "symbol cannot be empty"},
		{"unknown timeframe", func(s *Settings) { s.Timeframe = "7m" }, "unsupported timeframe"},
		{"ping too short", func(s *Settings) { s.Ping = 500 * time.Millisecond }, "ping interval"},
		{"ping too long", func(s *Settings) { s.Ping = 10 * time.Minute }, "ping interval"},
		{"write timeout", func(s *Settings) { s.WriteTimeout = 0 }, "write timeout"},
		{"rest timeout", func(s *Settings) { s.RESTTimeout = 2 * time.Minute }, "REST timeout"},
		{"feed tick", func(s *Settings) { s.FeedTick = time.Millisecond }, "feed tick"},
		{"metrics port low", func(s *Settings) { s.MetricsPort = 80 }, "metrics port"},
		{"metrics port high", func(s *Settings) { s.MetricsPort = 70000 }, "metrics port"},
		{"read limit", func(s *Settings) { s.ReadLimit = 10 }, "read limit"},
		{"log level", func(s *Settings) { s.LogLevel = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(settings)

			err := validateSettings(settings)
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateSettings_RESTSource(t *testing.T) {
	settings := createValidSettings()
	settings.HistorySource = "rest"

	if err := validateSettings(settings); err != nil {
		t.Errorf("Expected rest source with URL to pass, got: %v", err)
	}
}

func TestValidateSettings_Boundaries(t *testing.T) {
	settings := createValidSettings()
	settings.Ping = time.Second
	settings.RESTTimeout = time.Minute
	settings.MetricsPort = 1024
	settings.ReadLimit = 16 * 1024 * 1024
	settings.WsURL = "wss://feed.example.com/ws"

	if err := validateSettings(settings); err != nil {
		t.Errorf("Expected boundary values to pass, got: %v", err)
	}
}
