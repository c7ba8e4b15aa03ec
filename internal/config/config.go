package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string

	// AllowedOrigins restricts WebSocket upgrades. Empty means same-origin
	// only; "*" allows all (development).
	AllowedOrigins []string

	// RedisURL enables the cross-process producer bridge when set.
	RedisURL string

	// SendQueueSize bounds each connection's outbound delivery queue.
	SendQueueSize int

	// Connection limits for the WebSocket endpoint.
	MaxConnections      int64
	MaxConnectionsPerIP int
	ConnectRatePerIP    float64
	ConnectBurstPerIP   int
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		RedisURL:  getEnv("REDIS_URL", ""),
	}

	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	var err error
	if cfg.SendQueueSize, err = getEnvInt("SEND_QUEUE_SIZE", 64); err != nil {
		return nil, err
	}
	if cfg.SendQueueSize < 1 {
		return nil, fmt.Errorf("SEND_QUEUE_SIZE must be at least 1")
	}

	maxConns, err := getEnvInt("MAX_CONNECTIONS", 4096)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnections = int64(maxConns)

	if cfg.MaxConnectionsPerIP, err = getEnvInt("MAX_CONNECTIONS_PER_IP", 32); err != nil {
		return nil, err
	}
	if cfg.ConnectBurstPerIP, err = getEnvInt("CONNECT_BURST_PER_IP", 10); err != nil {
		return nil, err
	}
	if cfg.ConnectRatePerIP, err = getEnvFloat("CONNECT_RATE_PER_IP", 10); err != nil {
		return nil, err
	}

	if cfg.MaxConnections < 1 || cfg.MaxConnectionsPerIP < 1 {
		return nil, fmt.Errorf("connection limits must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}
