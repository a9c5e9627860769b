package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration, read from the environment.
type Config struct {
	ListenAddr   string
	SettingsPath string
	DatabaseURL  string

	// operator auth; all three are needed to protect the control plane
	ControlPasswordHash string
	CookieHashKey       []byte
	CookieBlockKey      []byte

	// SecretKey seals the bearer token in the settings file when set.
	SecretKey []byte

	LogLevel  string
	LogFormat string
	LogFile   string

	UpstreamTimeout time.Duration
	ProxyTimeout    time.Duration
	BookingPace     time.Duration
}

func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:          getenv("LISTEN_ADDR", ":3000"),
		SettingsPath:        getenv("AUTOBOOK_CONFIG", "config.json"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		ControlPasswordHash: strings.TrimSpace(os.Getenv("CONTROL_PASSWORD_HASH")),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		LogFormat:           getenv("LOG_FORMAT", "console"),
		LogFile:             os.Getenv("LOG_FILE"),
	}

	var err error
	if cfg.UpstreamTimeout, err = seconds("UPSTREAM_TIMEOUT_SECONDS", 10); err != nil {
		return Config{}, err
	}
	if cfg.ProxyTimeout, err = seconds("PROXY_TIMEOUT_SECONDS", 120); err != nil {
		return Config{}, err
	}
	paceMS, err := strconv.Atoi(getenv("BOOKING_PACE_MS", "0"))
	if err != nil || paceMS < 0 {
		return Config{}, fmt.Errorf("invalid BOOKING_PACE_MS")
	}
	cfg.BookingPace = time.Duration(paceMS) * time.Millisecond

	if cfg.ControlPasswordHash != "" {
		hashKey := os.Getenv("COOKIE_HASH_KEY")
		blockKey := os.Getenv("COOKIE_BLOCK_KEY")
		if hashKey == "" || blockKey == "" {
			return Config{}, fmt.Errorf("COOKIE_HASH_KEY and COOKIE_BLOCK_KEY are required with CONTROL_PASSWORD_HASH (run `autobook keys`)")
		}
		if cfg.CookieHashKey, err = decodeB64(hashKey); err != nil {
			return Config{}, fmt.Errorf("COOKIE_HASH_KEY: %w", err)
		}
		if cfg.CookieBlockKey, err = decodeB64(blockKey); err != nil {
			return Config{}, fmt.Errorf("COOKIE_BLOCK_KEY: %w", err)
		}
	}

	if v := os.Getenv("SECRET_KEY"); v != "" {
		if cfg.SecretKey, err = decodeB64(v); err != nil {
			return Config{}, fmt.Errorf("SECRET_KEY: %w", err)
		}
		if len(cfg.SecretKey) != 32 {
			return Config{}, fmt.Errorf("SECRET_KEY must decode to 32 bytes, got %d", len(cfg.SecretKey))
		}
	}

	return cfg, nil
}

// AuthEnabled reports whether the control plane requires a login.
func (c Config) AuthEnabled() bool { return c.ControlPasswordHash != "" }

func seconds(key string, def int) (time.Duration, error) {
	n, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return time.Duration(n) * time.Second, nil
}

// decodeB64 accepts a base64 value or a path to a file holding one, for
// secret mounts.
func decodeB64(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		s = string(b)
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
