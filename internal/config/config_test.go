package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("tauth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if cfg.TAuthIssuer != defaultSessionIssuer || cfg.TAuthCookieName != defaultCookieName {
		t.Fatalf("unexpected session defaults: %#v", cfg)
	}
	if cfg.Realtime.PingInterval != 25*time.Second || cfg.Realtime.PongWait != time.Minute {
		t.Fatalf("unexpected liveness defaults: %#v", cfg.Realtime)
	}
	if cfg.Realtime.ChatMaxLength != 2000 || cfg.Realtime.MaxMessageBytes != 1<<20 {
		t.Fatalf("unexpected limits: %#v", cfg.Realtime)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("COWRITE_TAUTH_SIGNING_SECRET", "from-env")
	t.Setenv("COWRITE_REALTIME_PING_INTERVAL", "5s")
	t.Setenv("COWRITE_REALTIME_PONG_WAIT", "15s")
	t.Setenv("COWRITE_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.TAuthSigningKey != "from-env" {
		t.Fatalf("expected signing secret from env, got %q", cfg.TAuthSigningKey)
	}
	if cfg.Realtime.PingInterval != 5*time.Second || cfg.Realtime.PongWait != 15*time.Second {
		t.Fatalf("unexpected liveness settings: %#v", cfg.Realtime)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "https://a.example.com|https://b.example.com" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	testCases := []struct {
		name     string
		key      string
		value    any
		expected string
	}{
		{name: "missing secret", key: "tauth.signing_secret", value: "", expected: "tauth.signing_secret"},
		{name: "empty cookie", key: "tauth.cookie_name", value: " ", expected: "tauth.cookie_name"},
		{name: "pong shorter than ping", key: "realtime.pong_wait", value: "10s", expected: "realtime.pong_wait"},
		{name: "zero buffer", key: "realtime.send_buffer", value: 0, expected: "realtime.send_buffer"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			configViper.Set("tauth.signing_secret", "secret")
			configViper.Set(testCase.key, testCase.value)

			_, err := Load(configViper)
			if err == nil || !strings.Contains(err.Error(), testCase.expected) {
				t.Fatalf("expected error mentioning %s, got %v", testCase.expected, err)
			}
		})
	}
}
