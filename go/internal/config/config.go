package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/planning-poker/go/internal/validation"
	"github.com/rs/zerolog/log"
)

// Config holds runtime settings for the planning poker server.
type Config struct {
	Port              string
	RedisURL          string
	RoomTTL           time.Duration
	InactivityTimeout time.Duration
	CleanupInterval   time.Duration
	HeartbeatInterval time.Duration
	DefaultRoom       string
	TeamConfigPath    string
	NATSURL           string
	NATSSubjectPrefix string
	CORSOrigins       []string
	Environment       string
	LogLevel          string
}

// Load reads .env if present, then the environment, and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := NewConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewConfigFromEnv reads settings from environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		Port:              getEnv("PORT", "3001"),
		RedisURL:          getEnv("REDIS_URL", ""),
		RoomTTL:           getEnvAsDuration("ROOM_TTL", 24*time.Hour),
		InactivityTimeout: getEnvAsDuration("INACTIVITY_TIMEOUT", 5*time.Minute),
		CleanupInterval:   getEnvAsDuration("CLEANUP_INTERVAL", time.Minute),
		HeartbeatInterval: getEnvAsDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		DefaultRoom:       strings.ToUpper(getEnv("DEFAULT_ROOM", "POKER1")),
		TeamConfigPath:    getEnv("TEAM_CONFIG", "team.config.yaml"),
		NATSURL:           getEnv("NATS_URL", ""),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "planning.rooms"),
		CORSOrigins:       getEnvAsList("CORS_ORIGINS", []string{"*"}),
		Environment:       getEnv("APP_ENV", "dev"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if !validation.IsValidRoomCode(c.DefaultRoom) {
		errs = append(errs, fmt.Errorf("DEFAULT_ROOM %q is not a valid room code", c.DefaultRoom))
	}
	for name, d := range map[string]time.Duration{
		"ROOM_TTL":           c.RoomTTL,
		"INACTIVITY_TIMEOUT": c.InactivityTimeout,
		"CLEANUP_INTERVAL":   c.CleanupInterval,
		"HEARTBEAT_INTERVAL": c.HeartbeatInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// IsProduction reports whether the server runs with production settings.
func (c Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration, using default")
		return fallback
	}
	return d
}

func getEnvAsList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
