package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"TOKEN_WINDOW", "TICK_INTERVAL", "LOW_ATTENDANCE_THRESHOLD", "QUEUE_BACKEND", "CORS_ORIGINS", "TOKEN_SIGNING"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.TokenWindow != 30*time.Second {
		t.Errorf("expected 30s token window, got %s", cfg.TokenWindow)
	}
	if cfg.TickInterval != time.Second {
		t.Errorf("expected 1s tick, got %s", cfg.TickInterval)
	}
	if cfg.LowAttendanceThreshold != 75 {
		t.Errorf("expected threshold 75, got %d", cfg.LowAttendanceThreshold)
	}
	if cfg.QueueBackend != "memory" || cfg.TokenSigning {
		t.Errorf("unexpected backend defaults: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, []string{"*"}) {
		t.Errorf("expected wildcard CORS, got %v", cfg.CORSOrigins)
	}
}

func TestLoad_EnvOverridesAndInvalidFallback(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TOKEN_WINDOW", "45s")
	t.Setenv("LOW_ATTENDANCE_THRESHOLD", "not-a-number")
	t.Setenv("TOKEN_SIGNING", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()
	if cfg.TokenWindow != 45*time.Second {
		t.Errorf("expected 45s, got %s", cfg.TokenWindow)
	}
	if cfg.LowAttendanceThreshold != 75 {
		t.Errorf("expected fallback 75, got %d", cfg.LowAttendanceThreshold)
	}
	if !cfg.TokenSigning {
		t.Error("expected token signing on")
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.CORSOrigins, want) {
		t.Errorf("expected %v, got %v", want, cfg.CORSOrigins)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	// godotenv never overrides a variable that exists, even when empty.
	t.Setenv("HTTP_PORT", "restored-after-test")
	os.Unsetenv("HTTP_PORT")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("HTTP_PORT=9191\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if got := Load().HTTPPort; got != "9191" {
		t.Errorf("expected port from .env, got %q", got)
	}
}
