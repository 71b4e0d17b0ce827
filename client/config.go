package client

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	protocolVersion = 7
	clientName      = "goreverb"
	clientVersion   = "0.1.0"
)

// Config holds the connection settings for a Reverb server.
type Config struct {
	AppKey    string
	AppSecret string
	Host      string
	Port      int
	Scheme    string // "ws" or "wss"

	ReconnectEnabled     bool
	ReconnectDelayMin    time.Duration
	ReconnectDelayMax    time.Duration
	ReconnectMultiplier  float64
	ReconnectMaxAttempts int // 0 means unbounded

	PingInterval        time.Duration
	SubscriptionTimeout time.Duration

	LogLevel slog.Level
}

// DefaultConfig returns a config with every optional setting at its default.
// AppKey, AppSecret and Host must still be filled in.
func DefaultConfig() Config {
	return Config{
		Port:                443,
		Scheme:              "wss",
		ReconnectEnabled:    true,
		ReconnectDelayMin:   1 * time.Second,
		ReconnectDelayMax:   30 * time.Second,
		ReconnectMultiplier: 2.0,
		PingInterval:        30 * time.Second,
		SubscriptionTimeout: 10 * time.Second,
		LogLevel:            slog.LevelInfo,
	}
}

// LoadConfig builds a config from REVERB_* environment variables, reading a
// .env file first when one exists.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg := DefaultConfig()
	cfg.AppKey = os.Getenv("REVERB_APP_KEY")
	cfg.AppSecret = os.Getenv("REVERB_APP_SECRET")
	cfg.Host = os.Getenv("REVERB_HOST")

	if v := os.Getenv("REVERB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, newError(KindConfiguration, "invalid REVERB_PORT %q", v)
		}
		cfg.Port = port
	}
	if v := os.Getenv("REVERB_SCHEME"); v != "" {
		cfg.Scheme = v
	}
	if v := os.Getenv("REVERB_RECONNECT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, newError(KindConfiguration, "invalid REVERB_RECONNECT_ENABLED %q", v)
		}
		cfg.ReconnectEnabled = enabled
	}
	if d, err := envSeconds("REVERB_RECONNECT_DELAY_MIN"); err != nil {
		return cfg, err
	} else if d > 0 {
		cfg.ReconnectDelayMin = d
	}
	if d, err := envSeconds("REVERB_RECONNECT_DELAY_MAX"); err != nil {
		return cfg, err
	} else if d > 0 {
		cfg.ReconnectDelayMax = d
	}
	if v := os.Getenv("REVERB_RECONNECT_MULTIPLIER"); v != "" {
		mult, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, newError(KindConfiguration, "invalid REVERB_RECONNECT_MULTIPLIER %q", v)
		}
		cfg.ReconnectMultiplier = mult
	}
	if v := os.Getenv("REVERB_RECONNECT_MAX_ATTEMPTS"); v != "" {
		attempts, err := strconv.Atoi(v)
		if err != nil {
			return cfg, newError(KindConfiguration, "invalid REVERB_RECONNECT_MAX_ATTEMPTS %q", v)
		}
		cfg.ReconnectMaxAttempts = attempts
	}
	if d, err := envSeconds("REVERB_PING_INTERVAL"); err != nil {
		return cfg, err
	} else if d > 0 {
		cfg.PingInterval = d
	}
	if d, err := envSeconds("REVERB_SUBSCRIPTION_TIMEOUT"); err != nil {
		return cfg, err
	} else if d > 0 {
		cfg.SubscriptionTimeout = d
	}
	if v := os.Getenv("REVERB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}

	return cfg, nil
}

func envSeconds(name string) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, newError(KindConfiguration, "invalid %s %q", name, v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func parseLogLevel(v string) slog.Level {
	switch strings.ToUpper(v) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks that the required settings are present.
func (c Config) Validate() error {
	if c.AppKey == "" {
		return newError(KindConfiguration, "app key is required")
	}
	if c.AppSecret == "" {
		return newError(KindConfiguration, "app secret is required")
	}
	if c.Host == "" {
		return newError(KindConfiguration, "host is required")
	}
	if c.Scheme != "ws" && c.Scheme != "wss" {
		return newError(KindConfiguration, "scheme must be ws or wss, got %q", c.Scheme)
	}
	return nil
}

// URL builds the WebSocket connection URL for this config.
func (c Config) URL() string {
	return fmt.Sprintf("%s://%s:%d/app/%s?protocol=%d&client=%s&version=%s",
		c.Scheme, c.Host, c.Port, c.AppKey, protocolVersion, clientName, clientVersion)
}

// withDefaults fills zero values so a hand-built Config behaves sanely.
// Booleans are left as the caller set them.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.Scheme == "" {
		c.Scheme = def.Scheme
	}
	if c.ReconnectDelayMin == 0 {
		c.ReconnectDelayMin = def.ReconnectDelayMin
	}
	if c.ReconnectDelayMax == 0 {
		c.ReconnectDelayMax = def.ReconnectDelayMax
	}
	if c.ReconnectMultiplier == 0 {
		c.ReconnectMultiplier = def.ReconnectMultiplier
	}
	if c.PingInterval == 0 {
		c.PingInterval = def.PingInterval
	}
	if c.SubscriptionTimeout == 0 {
		c.SubscriptionTimeout = def.SubscriptionTimeout
	}
	return c
}
