package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// DefaultPort is the port the serve-mode WebSocket endpoint listens on
	DefaultPort = 32184
	// DefaultHost binds to loopback only; LAN exposure is opt-in
	DefaultHost = "127.0.0.1"
	// DefaultPollInterval is the tag presence poll interval
	DefaultPollInterval = 200 * time.Millisecond
)

// Config holds runtime configuration resolved from environment variables.
type Config struct {
	Host         string        // NFC_FLASHER_HOST
	Port         int           // NFC_FLASHER_PORT
	Reader       string        // NFC_FLASHER_READER (empty = first available)
	PollInterval time.Duration // NFC_FLASHER_POLL_INTERVAL (e.g. "200ms")
	JournalPath  string        // NFC_FLASHER_JOURNAL (empty = default location)
}

// Load resolves configuration from the environment with defaults.
func Load() *Config {
	cfg := &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		PollInterval: DefaultPollInterval,
	}

	if host := os.Getenv("NFC_FLASHER_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("NFC_FLASHER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 && p < 65536 {
			cfg.Port = p
		}
	}
	if reader := os.Getenv("NFC_FLASHER_READER"); reader != "" {
		cfg.Reader = reader
	}
	if interval := os.Getenv("NFC_FLASHER_POLL_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil && d > 0 {
			cfg.PollInterval = d
		}
	}
	cfg.JournalPath = os.Getenv("NFC_FLASHER_JOURNAL")

	return cfg
}

// Address returns the host:port pair for the serve-mode listener.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JournalFile resolves the scan journal path, defaulting to the user
// config directory.
func (c *Config) JournalFile() (string, error) {
	if c.JournalPath != "" {
		return c.JournalPath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(dir, "nfc-flasher", "scans.cbor"), nil
}
