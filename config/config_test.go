package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"yaml", "h1ws.yaml", "max_head_size: 1024\nidle_timeout: 5s\nenable_upgrade: false\n"},
		{"toml", "h1ws.toml", "max_head_size = 1024\nidle_timeout = \"5s\"\nenable_upgrade = false\n"},
		{"json", "h1ws.json", `{"max_head_size": 1024, "idle_timeout": "5s", "enable_upgrade": false}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.body))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.MaxHeadSize != 1024 {
				t.Errorf("MaxHeadSize = %d", cfg.MaxHeadSize)
			}
			if cfg.IdleTimeout.Std() != 5*time.Second {
				t.Errorf("IdleTimeout = %v", cfg.IdleTimeout.Std())
			}
			if cfg.EnableUpgrade {
				t.Error("EnableUpgrade should be false")
			}
			// untouched options keep their defaults
			if cfg.MaxHeaderCount != Default().MaxHeaderCount {
				t.Errorf("MaxHeaderCount = %d", cfg.MaxHeaderCount)
			}
		})
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"unknown extension", "h1ws.ini", "max_head_size=1"},
		{"invalid value", "h1ws.yaml", "max_head_size: 0\n"},
		{"bad duration", "h1ws.yaml", "idle_timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, tt.file, tt.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDurationSeconds(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("30")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Std() != 30*time.Second {
		t.Fatalf("d = %v", d.Std())
	}
	b, _ := d.MarshalText()
	if string(b) != "30s" {
		t.Fatalf("MarshalText = %q", b)
	}
}
