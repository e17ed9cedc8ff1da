package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "COWRITE"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "cowrite.db"
	defaultLogLevel          = "info"
	defaultCookieName        = "app_session"
	defaultSessionIssuer     = "tauth"
	defaultSendBuffer        = 64
	defaultChatMaxLength     = 2000
	defaultChatRatePerSecond = 5.0
	defaultChatBurst         = 10
	defaultPingInterval      = 25 * time.Second
	defaultPongWait          = 60 * time.Second
	defaultMaxMessageBytes   = 1 << 20
	defaultAllowedOrigins    = "*"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	TAuthSigningKey string
	TAuthCookieName string
	TAuthIssuer     string
	DatabasePath    string
	LogLevel        string
	AllowedOrigins  []string
	Realtime        RealtimeConfig
}

// RealtimeConfig holds the limits of the websocket surface and the coordinator.
type RealtimeConfig struct {
	SendBuffer        int
	ChatMaxLength     int
	ChatRatePerSecond float64
	ChatBurst         int
	PingInterval      time.Duration
	PongWait          time.Duration
	MaxMessageBytes   int64
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", defaultSessionIssuer)
	configViper.SetDefault("realtime.send_buffer", defaultSendBuffer)
	configViper.SetDefault("realtime.chat_max_length", defaultChatMaxLength)
	configViper.SetDefault("realtime.chat_rate_per_second", defaultChatRatePerSecond)
	configViper.SetDefault("realtime.chat_burst", defaultChatBurst)
	configViper.SetDefault("realtime.ping_interval", defaultPingInterval)
	configViper.SetDefault("realtime.pong_wait", defaultPongWait)
	configViper.SetDefault("realtime.max_message_bytes", defaultMaxMessageBytes)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigins)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		TAuthSigningKey: configViper.GetString("tauth.signing_secret"),
		TAuthCookieName: configViper.GetString("tauth.cookie_name"),
		TAuthIssuer:     configViper.GetString("tauth.issuer"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		AllowedOrigins:  splitList(configViper.GetString("cors.allowed_origins")),
		Realtime: RealtimeConfig{
			SendBuffer:        configViper.GetInt("realtime.send_buffer"),
			ChatMaxLength:     configViper.GetInt("realtime.chat_max_length"),
			ChatRatePerSecond: configViper.GetFloat64("realtime.chat_rate_per_second"),
			ChatBurst:         configViper.GetInt("realtime.chat_burst"),
			PingInterval:      configViper.GetDuration("realtime.ping_interval"),
			PongWait:          configViper.GetDuration("realtime.pong_wait"),
			MaxMessageBytes:   configViper.GetInt64("realtime.max_message_bytes"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.TAuthSigningKey) == "" {
		return fmt.Errorf("tauth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.TAuthCookieName) == "" {
		return fmt.Errorf("tauth.cookie_name is required")
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("realtime.send_buffer must be positive")
	}
	if c.Realtime.ChatMaxLength <= 0 {
		return fmt.Errorf("realtime.chat_max_length must be positive")
	}
	if c.Realtime.PingInterval <= 0 || c.Realtime.PongWait <= c.Realtime.PingInterval {
		return fmt.Errorf("realtime.pong_wait must exceed realtime.ping_interval")
	}
	if c.Realtime.MaxMessageBytes <= 0 {
		return fmt.Errorf("realtime.max_message_bytes must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	values := make([]string, 0)
	for _, value := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
