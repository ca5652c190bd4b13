package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("NFC_FLASHER_HOST", "")
	t.Setenv("NFC_FLASHER_PORT", "")
	t.Setenv("NFC_FLASHER_READER", "")
	t.Setenv("NFC_FLASHER_POLL_INTERVAL", "")
	t.Setenv("NFC_FLASHER_JOURNAL", "")

	cfg := Load()
	if cfg.Host != DefaultHost {
		t.Errorf("Host = %q, want %q", cfg.Host, DefaultHost)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", cfg.PollInterval, DefaultPollInterval)
	}
	if cfg.Reader != "" || cfg.JournalPath != "" {
		t.Errorf("Reader/JournalPath should default to empty, got %q / %q", cfg.Reader, cfg.JournalPath)
	}
	if got := cfg.Address(); got != "127.0.0.1:32184" {
		t.Errorf("Address() = %q", got)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("NFC_FLASHER_HOST", "0.0.0.0")
	t.Setenv("NFC_FLASHER_PORT", "8080")
	t.Setenv("NFC_FLASHER_READER", "ACS ACR122U PICC Interface")
	t.Setenv("NFC_FLASHER_POLL_INTERVAL", "50ms")
	t.Setenv("NFC_FLASHER_JOURNAL", "/tmp/scans.cbor")

	cfg := Load()
	if cfg.Host != "0.0.0.0" || cfg.Port != 8080 {
		t.Errorf("Host/Port = %q/%d", cfg.Host, cfg.Port)
	}
	if cfg.Reader != "ACS ACR122U PICC Interface" {
		t.Errorf("Reader = %q", cfg.Reader)
	}
	if cfg.PollInterval != 50*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.JournalPath != "/tmp/scans.cbor" {
		t.Errorf("JournalPath = %q", cfg.JournalPath)
	}

	path, err := cfg.JournalFile()
	if err != nil || path != "/tmp/scans.cbor" {
		t.Errorf("JournalFile() = %q, %v", path, err)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"port not a number", "NFC_FLASHER_PORT", "eighty"},
		{"port out of range", "NFC_FLASHER_PORT", "70000"},
		{"negative interval", "NFC_FLASHER_POLL_INTERVAL", "-5s"},
		{"garbage interval", "NFC_FLASHER_POLL_INTERVAL", "fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg := Load()
			if cfg.Port != DefaultPort {
				t.Errorf("Port = %d, want default %d", cfg.Port, DefaultPort)
			}
			if cfg.PollInterval != DefaultPollInterval {
				t.Errorf("PollInterval = %v, want default %v", cfg.PollInterval, DefaultPollInterval)
			}
		})
	}
}
