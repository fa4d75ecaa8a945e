package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate keeps Load("") away from any real config.yaml in the home
// directory or working directory.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}

	if cfg.DataDir == "" {
		t.Error("data_dir default is empty")
	}
	if cfg.Sync.Interval != 30*time.Second {
		t.Errorf("sync.interval = %v, want 30s", cfg.Sync.Interval)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("server.addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Server.Driver != "sqlite" {
		t.Errorf("server.driver = %q, want sqlite", cfg.Server.Driver)
	}
	if !cfg.Server.AllowSignUp {
		t.Error("server.allow_sign_up default is off")
	}

	day, err := cfg.Sync.WeekStartDay()
	if err != nil {
		t.Fatalf("default week start invalid: %v", err)
	}
	if day != time.Sunday {
		t.Errorf("default week start = %v, want Sunday", day)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data_dir: /tmp/planner-test
sync:
  interval: 5s
  week_start: monday
remote:
  base_url: https://planner.example.com
server:
  driver: postgres
  database_url: postgres://localhost/planner
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.DataDir != "/tmp/planner-test" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if cfg.Sync.Interval != 5*time.Second {
		t.Errorf("sync.interval = %v, want 5s", cfg.Sync.Interval)
	}
	if cfg.Remote.BaseURL != "https://planner.example.com" {
		t.Errorf("remote.base_url = %q", cfg.Remote.BaseURL)
	}
	if cfg.Server.Driver != "postgres" {
		t.Errorf("server.driver = %q", cfg.Server.Driver)
	}

	day, err := cfg.Sync.WeekStartDay()
	if err != nil {
		t.Fatalf("week start invalid: %v", err)
	}
	if day != time.Monday {
		t.Errorf("week start = %v, want Monday", day)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PLANNER_REMOTE_BASE_URL", "https://env.example.com")
	t.Setenv("PLANNER_SERVER_JWT_SECRET", "env-secret")
	t.Setenv("PLANNER_SERVER_DATABASE_URL", "postgres://env/planner")
	t.Setenv("PLANNER_SYNC_WEEK_START", "monday")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Remote.BaseURL != "https://env.example.com" {
		t.Errorf("remote.base_url = %q, want the env value", cfg.Remote.BaseURL)
	}
	if cfg.Server.JWTSecret != "env-secret" {
		t.Errorf("server.jwt_secret = %q, want the env value", cfg.Server.JWTSecret)
	}
	if cfg.Server.DatabaseURL != "postgres://env/planner" {
		t.Errorf("server.database_url = %q, want the env value", cfg.Server.DatabaseURL)
	}
	if cfg.Sync.WeekStart != "monday" {
		t.Errorf("sync.week_start = %q, want the env value", cfg.Sync.WeekStart)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("remote:\n  base_url: https://file.example.com\n"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("PLANNER_REMOTE_BASE_URL", "https://env.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Remote.BaseURL != "https://env.example.com" {
		t.Errorf("remote.base_url = %q, want env to win over the file", cfg.Remote.BaseURL)
	}
}

func TestLoadRejectsBadWeekStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sync:\n  week_start: caturday\n"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("bad week_start accepted")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("explicitly named missing file accepted")
	}
}
