package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/neway-security/clocking-monitor/internal/model"
)

const (
	defaultServiceBaseURL  = "http://localhost:5000"
	defaultHTTPAddr        = ":8098"
	defaultDBPath          = "/data/clocking_monitor.db"
	defaultFrontendDist    = "/app/frontend/dist"
	defaultRefreshInterval = 30 * time.Second
	defaultStatusInterval  = 60 * time.Second
	defaultRetryDelay      = 2 * time.Second
	defaultRequestTimeout  = 10 * time.Second
	defaultIdleTimeout     = 15 * time.Second
	defaultMaxAttempts     = 3
	defaultFeedLimit       = 10
	defaultMQTTPort        = 1883
	defaultMQTTClientID    = "clocking-monitor"
	defaultMQTTBaseTopic   = "clocking/monitor"
)

// MQTT holds broker settings. An empty Host disables publishing.
type MQTT struct {
	Host      string
	Port      int
	Username  string
	Password  string
	ClientID  string
	BaseTopic string
}

// Enabled reports whether a broker is configured.
func (m MQTT) Enabled() bool {
	return m.Host != ""
}

// Config stores runtime settings loaded from environment variables.
type Config struct {
	Service              model.ServiceEndpoint
	RefreshInterval      time.Duration
	StatusCheckInterval  time.Duration
	ReconnectAttempts    int
	RetryDelay           time.Duration
	FeedLimit            int
	RequestTimeout       time.Duration
	StreamIdleTimeout    time.Duration
	SuspendWhenUnwatched bool
	HTTPAddr             string
	DBPath               string
	FrontendDist         string
	LogLevel             slog.Level
	MQTT                 MQTT
}

// Load builds Config from environment variables using stable defaults.
// Variables from a .env file in the working directory fill in whatever the
// environment leaves unset.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Service: model.ServiceEndpoint{
			Host:      getenv("SERVICE_BASE_URL", defaultServiceBaseURL),
			Token:     getenv("SERVICE_TOKEN", ""),
			StreamURL: getenv("STREAM_URL", ""),
		},
		RefreshInterval:      parseDuration("REFRESH_INTERVAL", defaultRefreshInterval),
		StatusCheckInterval:  parseDuration("STATUS_CHECK_INTERVAL", defaultStatusInterval),
		ReconnectAttempts:    parseInt("RECONNECT_ATTEMPTS", defaultMaxAttempts),
		RetryDelay:           parseDuration("TIMEOUT_DELAY", defaultRetryDelay),
		FeedLimit:            parseInt("FEED_LIMIT", defaultFeedLimit),
		RequestTimeout:       parseDuration("REQUEST_TIMEOUT", defaultRequestTimeout),
		StreamIdleTimeout:    parseDuration("STREAM_IDLE_TIMEOUT", defaultIdleTimeout),
		SuspendWhenUnwatched: parseBool("SUSPEND_WHEN_UNWATCHED", true),
		HTTPAddr:             getenv("HTTP_ADDR", defaultHTTPAddr),
		DBPath:               getenv("DB_PATH", defaultDBPath),
		FrontendDist:         getenv("FRONTEND_DIST", defaultFrontendDist),
		LogLevel:             parseLogLevel(getenv("LOG_LEVEL", "info")),
		MQTT: MQTT{
			Host:      getenv("MQTT_HOST", ""),
			Port:      parseInt("MQTT_PORT", defaultMQTTPort),
			Username:  getenv("MQTT_USERNAME", ""),
			Password:  getenv("MQTT_PASSWORD", ""),
			ClientID:  getenv("MQTT_CLIENT_ID", defaultMQTTClientID),
			BaseTopic: getenv("MQTT_BASE_TOPIC", defaultMQTTBaseTopic),
		},
	}
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

// parseDuration accepts Go duration syntax or a bare number of milliseconds.
func parseDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	raw = strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms <= 0 {
			return fallback
		}
		return time.Duration(ms) * time.Millisecond
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
