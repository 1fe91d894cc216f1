package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string

	// KVBackend selects where accounts and notification settings live: env, redis or postgres.
	KVBackend   string
	DatabaseURL string
	RedisURL    string
	KVEncKey    []byte // optional, 32 bytes; seals postgres kv values

	// web
	ListenAddr     string
	BaseURL        string
	CookieHashKey  []byte
	CookieBlockKey []byte
	CaptureToken   string

	// run
	Location     *time.Location
	AccountDelay time.Duration
	DrawWeekday  time.Weekday

	// scheduler
	ScheduleAt   string // HH:MM local
	PollInterval time.Duration
}

// LoadDotEnv loads .env into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv() { _ = godotenv.Load() }

// LogLevel is read ahead of FromEnv so commands that need no config can log.
func LogLevel() string { return getenv("LOG_LEVEL", "info") }

// FromEnv loads .env (when present) and reads the process environment.
func FromEnv() (Config, error) {
	LoadDotEnv()

	cfg := Config{
		LogLevel:     LogLevel(),
		KVBackend:    strings.ToLower(getenv("KV_BACKEND", "env")),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:     strings.TrimSpace(os.Getenv("REDIS_URL")),
		ListenAddr:   getenv("LISTEN_ADDR", ":8080"),
		BaseURL:      getenv("BASE_URL", "http://localhost:8080"),
		CaptureToken: strings.TrimSpace(os.Getenv("CAPTURE_TOKEN")),
		ScheduleAt:   getenv("SCHEDULE_AT", "08:00"),
	}

	switch cfg.KVBackend {
	case "env":
	case "redis":
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL is required when KV_BACKEND=redis")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when KV_BACKEND=postgres")
		}
	default:
		return Config{}, fmt.Errorf("invalid KV_BACKEND %q (want env, redis or postgres)", cfg.KVBackend)
	}

	loc, err := time.LoadLocation(getenv("TIMEZONE", "Asia/Shanghai"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	delayMS, err := strconv.Atoi(getenv("ACCOUNT_DELAY_MS", "500"))
	if err != nil || delayMS < 0 {
		return Config{}, fmt.Errorf("invalid ACCOUNT_DELAY_MS")
	}
	cfg.AccountDelay = time.Duration(delayMS) * time.Millisecond

	wd, err := strconv.Atoi(getenv("DRAW_WEEKDAY", "3"))
	if err != nil || wd < 0 || wd > 6 {
		return Config{}, fmt.Errorf("invalid DRAW_WEEKDAY (0=Sunday .. 6=Saturday)")
	}
	cfg.DrawWeekday = time.Weekday(wd)

	pollSec, err := strconv.Atoi(getenv("SCHED_POLL_SECONDS", "30"))
	if err != nil || pollSec < 1 {
		return Config{}, fmt.Errorf("invalid SCHED_POLL_SECONDS")
	}
	cfg.PollInterval = time.Duration(pollSec) * time.Second

	if _, err := time.Parse("15:04", cfg.ScheduleAt); err != nil {
		return Config{}, fmt.Errorf("invalid SCHEDULE_AT (want HH:MM): %w", err)
	}

	if v := strings.TrimSpace(os.Getenv("KV_ENC_KEY")); v != "" {
		key, err := decodeB64(v)
		if err != nil {
			return Config{}, fmt.Errorf("KV_ENC_KEY: %w", err)
		}
		if len(key) != 32 {
			return Config{}, fmt.Errorf("KV_ENC_KEY must decode to 32 bytes (got %d)", len(key))
		}
		cfg.KVEncKey = key
	}

	return cfg, nil
}

// RequireWeb validates the settings only the web server needs.
func (c *Config) RequireWeb() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the web UI")
	}
	hashKey := os.Getenv("COOKIE_HASH_KEY")
	blockKey := os.Getenv("COOKIE_BLOCK_KEY")
	if hashKey == "" || blockKey == "" {
		return fmt.Errorf("COOKIE_HASH_KEY and COOKIE_BLOCK_KEY are required (32 and 32/16/24/32 bytes base64)")
	}
	var err error
	c.CookieHashKey, err = decodeB64(hashKey)
	if err != nil {
		return fmt.Errorf("COOKIE_HASH_KEY: %w", err)
	}
	c.CookieBlockKey, err = decodeB64(blockKey)
	if err != nil {
		return fmt.Errorf("COOKIE_BLOCK_KEY: %w", err)
	}
	return nil
}

func decodeB64(s string) ([]byte, error) {
	b, err := os.ReadFile(s)
	if err == nil {
		// allow pointing to file path for k8s secret mounts
		s = string(b)
	}
	s = strings.TrimSpace(s)
	if dec, err := base64.StdEncoding.DecodeString(s); err == nil {
		return dec, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
