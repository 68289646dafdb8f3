package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != DriverMemory || cfg.Server.Port != "8080" || cfg.Attempts.ExpirePolicy != "submit" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
  cors_origins: ["https://campus.example"]
storage:
  driver: sqlite
  sqlite_path: /tmp/quiz.db
attempts:
  grace: 15s
courses:
  math-101: Algebra I
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || len(cfg.Server.CORSOrigins) != 1 {
		t.Fatalf("unexpected server section %+v", cfg.Server)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.SQLitePath != "/tmp/quiz.db" {
		t.Fatalf("unexpected storage section %+v", cfg.Storage)
	}
	if cfg.Courses["math-101"] != "Algebra I" {
		t.Fatalf("expected course names, got %v", cfg.Courses)
	}
	// Untouched keys keep their defaults.
	if cfg.Quiz.TTL != "10m" || cfg.Attempts.SweepInterval != "30s" {
		t.Fatalf("expected defaults to survive, got %+v %+v", cfg.Quiz, cfg.Attempts)
	}
	if got := TTLDuration(cfg.Attempts.Grace, time.Second); got != 15*time.Second {
		t.Fatalf("expected 15s grace, got %s", got)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected a parse error")
	}
}

func TestTTLDuration(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Minute},
		{"90s", 90 * time.Second},
		{"soon", time.Minute},
	}
	for _, tt := range tests {
		if got := TTLDuration(tt.raw, time.Minute); got != tt.want {
			t.Fatalf("TTLDuration(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}
