// Package config loads configuration from the passkey file and environment variables.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseDir is the smstools spool root used when SMS_BASE_DIR is not set.
const DefaultBaseDir = "/var/spool/sms"

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Secrets (from passkey.conf)
	SecretKey string
	AdminKey  string

	// Spool
	BaseDir string

	// Send validation
	ValidateVNPhone bool

	// Watch
	PollInterval time.Duration
}

// Load reads secrets from the passkey file and server settings from
// environment variables with defaults. The passkey file path defaults to
// ./passkey.conf and can be overridden with PASSKEY_CONF.
func Load() (*Config, error) {
	path := envOr("PASSKEY_CONF", "passkey.conf")
	secrets, err := parseKeyValueFile(path)
	if err != nil {
		return nil, fmt.Errorf("load passkey file: %w", err)
	}

	cfg := &Config{
		ListenAddr:      envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:     envOr("METRICS_ADDR", ":9090"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "json"),
		SecretKey:       secrets["SECRET_KEY"],
		AdminKey:        secrets["ADMIN_KEY"],
		BaseDir:         secrets["SMS_BASE_DIR"],
		ValidateVNPhone: envBool("VALIDATE_VN_PHONE", false),
		PollInterval:    envDuration("WATCH_POLL_INTERVAL", 2*time.Second),
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = envOr("SMS_BASE_DIR", DefaultBaseDir)
	}

	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("SECRET_KEY not found in %s", path)
	}
	if cfg.AdminKey == "" {
		return nil, fmt.Errorf("ADMIN_KEY not found in %s", path)
	}

	return cfg, nil
}

// parseKeyValueFile reads a KEY=value file. Blank lines and lines starting
// with # are ignored; the first = splits key from value.
func parseKeyValueFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out, scanner.Err()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
