package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envListenAddr      = "TOOLGATE_LISTEN_ADDR"
	envUpstreamURL     = "TOOLGATE_UPSTREAM_URL"
	envAuthSecret      = "TOOLGATE_AUTH_SECRET"
	envIssuer          = "TOOLGATE_ISSUER"
	envPGDSN           = "TOOLGATE_PG_DSN"
	envRedisAddr       = "TOOLGATE_REDIS_ADDR"
	envAccessTTL       = "TOOLGATE_ACCESS_TTL"
	envRefreshTTL      = "TOOLGATE_REFRESH_TTL"
	envSessionTTL      = "TOOLGATE_SESSION_TTL"
	envUpstreamTimeout = "TOOLGATE_UPSTREAM_TIMEOUT"
	envSessionHeader   = "TOOLGATE_UPSTREAM_SESSION_HEADER"
	envRateLimit       = "TOOLGATE_RATE_LIMIT"
	envRateWindow      = "TOOLGATE_RATE_WINDOW"
	envMaxBodyBytes    = "TOOLGATE_MAX_BODY_BYTES"

	defaultListenAddr      = ":8080"
	defaultIssuer          = "toolgate"
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 14 * 24 * time.Hour
	defaultSessionTTL      = 30 * time.Minute
	defaultUpstreamTimeout = 30 * time.Second
	defaultSessionHeader   = "Mcp-Session-Id"
	defaultRateLimit       = 60
	defaultRateWindow      = time.Minute
	defaultMaxBodyBytes    = 1 << 20
)

// Config captures runtime settings for the gateway.
type Config struct {
	ListenAddr string
	Upstream   *url.URL

	AuthSecret string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	PGDSN     string
	RedisAddr string

	SessionTTL            time.Duration
	UpstreamTimeout       time.Duration
	UpstreamSessionHeader string

	RateLimit  int
	RateWindow time.Duration

	MaxBodyBytes int64
}

// Load reads configuration from environment variables and validates required values.
func Load() (Config, error) {
	upstreamRaw := strings.TrimSpace(os.Getenv(envUpstreamURL))
	if upstreamRaw == "" {
		return Config{}, errors.New("TOOLGATE_UPSTREAM_URL is required")
	}
	upstream, err := url.Parse(upstreamRaw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid TOOLGATE_UPSTREAM_URL: %w", err)
	}
	if !upstream.IsAbs() {
		return Config{}, errors.New("TOOLGATE_UPSTREAM_URL must be absolute (scheme://host)")
	}

	secret := strings.TrimSpace(os.Getenv(envAuthSecret))
	if secret == "" {
		return Config{}, errors.New("TOOLGATE_AUTH_SECRET is required")
	}

	cfg := Config{
		ListenAddr:            getString(envListenAddr, defaultListenAddr),
		Upstream:              upstream,
		AuthSecret:            secret,
		Issuer:                getString(envIssuer, defaultIssuer),
		AccessTTL:             getDuration(envAccessTTL, defaultAccessTTL),
		RefreshTTL:            getDuration(envRefreshTTL, defaultRefreshTTL),
		PGDSN:                 strings.TrimSpace(os.Getenv(envPGDSN)),
		RedisAddr:             strings.TrimSpace(os.Getenv(envRedisAddr)),
		SessionTTL:            getDuration(envSessionTTL, defaultSessionTTL),
		UpstreamTimeout:       getDuration(envUpstreamTimeout, defaultUpstreamTimeout),
		UpstreamSessionHeader: getString(envSessionHeader, defaultSessionHeader),
		RateLimit:             getInt(envRateLimit, defaultRateLimit),
		RateWindow:            getDuration(envRateWindow, defaultRateWindow),
		MaxBodyBytes:          int64(getInt(envMaxBodyBytes, defaultMaxBodyBytes)),
	}
	if cfg.RateLimit <= 0 {
		return Config{}, errors.New("TOOLGATE_RATE_LIMIT must be positive")
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
