// Package config reads settings from the environment, loading .env first
// when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	ICE      ICEConfig
	Client   ClientConfig
	LogLevel zerolog.Level
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
	StaticDir   string
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	// Path of the SQLite file. Empty keeps records in memory.
	Path string
}

type AuthConfig struct {
	Secret string
}

type ICEConfig struct {
	STUNURLs            []string
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
}

// ClientConfig is what the softphone needs to reach the server.
type ClientConfig struct {
	SignalURL     string
	APIURL        string
	Token         string
	UserID        string
	DisplayName   string
	Avatar        string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	// RingTimeout of zero rings until someone acts.
	RingTimeout time.Duration
}

var ErrMissingSecret = errors.New("JWT_SECRET is required")

func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", ""),
			Port:        port,
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*"), ","),
			StaticDir:   getEnv("STATIC_DIR", ""),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./data/calls.db"),
		},
		Auth: AuthConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		ICE: ICEConfig{
			STUNURLs: splitList(getEnv("STUN_URLS", "stun:stun.l.google.com:19302"), " "),
		},
		Client: ClientConfig{
			SignalURL:   getEnv("SIGNAL_URL", "ws://localhost:8080"),
			APIURL:      getEnv("API_URL", "http://localhost:8080"),
			Token:       getEnv("TOKEN", ""),
			UserID:      getEnv("USER_ID", ""),
			DisplayName: getEnv("DISPLAY_NAME", ""),
			Avatar:      getEnv("AVATAR_URL", ""),
		},
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"ICE_DISCONNECTED_TIMEOUT", "30s", &cfg.ICE.DisconnectedTimeout},
		{"ICE_FAILED_TIMEOUT", "120s", &cfg.ICE.FailedTimeout},
		{"RECONNECT_BASE", "3s", &cfg.Client.ReconnectBase},
		{"RECONNECT_MAX", "30s", &cfg.Client.ReconnectMax},
		{"RING_TIMEOUT", "0s", &cfg.Client.RingTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", d.key)
		}
		*d.dest = v
	}
	if cfg.Client.ReconnectMax < cfg.Client.ReconnectBase {
		return nil, fmt.Errorf("invalid RECONNECT_MAX: %s is below RECONNECT_BASE %s", cfg.Client.ReconnectMax, cfg.Client.ReconnectBase)
	}

	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	return cfg, nil
}

// ValidateServer checks the settings only the relay server needs.
func (c *Config) ValidateServer() error {
	if c.Auth.Secret == "" {
		return ErrMissingSecret
	}
	return nil
}

// ValidateClient checks the settings only the softphone needs.
func (c *Config) ValidateClient() error {
	var missing []string
	if c.Client.UserID == "" {
		missing = append(missing, "USER_ID")
	}
	if c.Client.Token == "" {
		missing = append(missing, "TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
