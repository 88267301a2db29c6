package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	Environment string
	UserID      string
	Backend     BackendConfig
	Socket      SocketConfig
	Bridge      BridgeConfig
	AMQP        AMQPConfig
	Tracing     TracingConfig
}

type BackendConfig struct {
	URL            string
	Token          string
	RequestTimeout time.Duration
}

type SocketConfig struct {
	URL               string
	HandshakeTimeout  time.Duration
	RequestTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	ReadCooldown      time.Duration
}

type BridgeConfig struct {
	Port  int
	Token string
	Debug bool
}

type AMQPConfig struct {
	URL           string
	Exchange      string
	AuditRouteKey string
}

type TracingConfig struct {
	Endpoint string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	backendURL := getEnv("BACKEND_URL", "http://localhost:5000/api")
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "marketplace-chat"),
		Environment: getEnv("ENVIRONMENT", "development"),
		UserID:      getEnv("USER_ID", ""),
		Backend: BackendConfig{
			URL:            backendURL,
			Token:          getEnv("API_TOKEN", ""),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 15*time.Second),
		},
		Socket: SocketConfig{
			URL:               getEnv("SOCKET_URL", socketURLFrom(backendURL)),
			HandshakeTimeout:  getEnvAsDuration("HANDSHAKE_TIMEOUT", 20*time.Second),
			RequestTimeout:    getEnvAsDuration("REQUEST_TIMEOUT", 15*time.Second),
			ReconnectAttempts: getEnvAsInt("RECONNECT_ATTEMPTS", 5),
			ReconnectDelay:    getEnvAsDuration("RECONNECT_DELAY", time.Second),
			ReconnectDelayMax: getEnvAsDuration("RECONNECT_DELAY_MAX", 5*time.Second),
			ReadCooldown:      getEnvAsDuration("MARK_READ_COOLDOWN", 3*time.Second),
		},
		Bridge: BridgeConfig{
			Port:  getEnvAsInt("BRIDGE_PORT", 8083),
			Token: getEnv("BRIDGE_TOKEN", ""),
			Debug: getEnvAsBool("DEBUG_ROUTES", false),
		},
		AMQP: AMQPConfig{
			URL:           getEnv("AMQP_URL", ""),
			Exchange:      getEnv("AMQP_EXCHANGE", "marketplace.events"),
			AuditRouteKey: getEnv("AMQP_AUDIT_ROUTING_KEY", "audit.chat"),
		},
		Tracing: TracingConfig{
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.UserID == "" {
		return fmt.Errorf("USER_ID must be set")
	}
	if c.Backend.URL == "" || c.Socket.URL == "" {
		return fmt.Errorf("backend and socket URLs must be set")
	}
	if c.Socket.ReconnectAttempts < 0 {
		return fmt.Errorf("RECONNECT_ATTEMPTS must not be negative")
	}
	return nil
}

// socketURLFrom derives the socket endpoint from the REST base URL by
// dropping the trailing /api and switching to a ws scheme.
func socketURLFrom(backendURL string) string {
	u := strings.TrimSuffix(strings.TrimRight(backendURL, "/"), "/api")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
