package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reqsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9090"
store:
  driver: mysql
  dsn: "club:secret@tcp(db:3306)/club"
github:
  token: ghp_test
  owner: clubworks
  repo: members
  webhook_secret: hook-secret
reconcile:
  interval: 5m
  startup_delay: 1s
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", s.ListenAddr)
	}
	if s.Store.Driver != DriverMySQL || s.Store.DSN == "" {
		t.Errorf("Store = %+v", s.Store)
	}
	if !s.SyncConfigured() {
		t.Error("SyncConfigured() = false with full github block")
	}
	if s.Reconcile.Interval != 5*time.Minute {
		t.Errorf("Interval = %v", s.Reconcile.Interval)
	}
	// Unset keys keep their defaults.
	if s.Reconcile.CallDelay != 250*time.Millisecond {
		t.Errorf("CallDelay = %v, want default", s.Reconcile.CallDelay)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	s, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.Store.Driver != DriverMemory {
		t.Errorf("default driver = %q", s.Store.Driver)
	}
	if s.SyncConfigured() {
		t.Error("SyncConfigured() = true with no configuration")
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() succeeded on a missing explicit path")
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, "github:\n  owner: clubworks\n  repo: members\n")
	t.Setenv("REQSYNC_GITHUB_TOKEN", "from-env")
	t.Setenv("REQSYNC_LISTEN_ADDR", ":7070")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.GitHub.Token != "from-env" {
		t.Errorf("Token = %q, want env override", s.GitHub.Token)
	}
	if s.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q, want env override", s.ListenAddr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults valid", func(*Settings) {}, false},
		{"mysql without dsn", func(s *Settings) { s.Store.Driver = DriverMySQL }, true},
		{"unknown driver", func(s *Settings) { s.Store.Driver = "sqlite" }, true},
		{"empty listen addr", func(s *Settings) { s.ListenAddr = "" }, true},
		{"zero interval", func(s *Settings) { s.Reconcile.Interval = 0 }, true},
		{"negative delay", func(s *Settings) { s.Reconcile.CallDelay = -time.Second }, true},
		{"partial github is fine", func(s *Settings) { s.GitHub.Token = "tok" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestManagerReload(t *testing.T) {
	path := writeConfig(t, "listen_addr: \":8080\"\n")

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	if mgr.Current().ListenAddr != ":8080" {
		t.Fatalf("initial ListenAddr = %q", mgr.Current().ListenAddr)
	}

	if err := os.WriteFile(path, []byte("listen_addr: \":9090\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	if mgr.Current().ListenAddr != ":9090" {
		t.Errorf("ListenAddr after reload = %q", mgr.Current().ListenAddr)
	}
}

// A broken edit must not displace the last good settings.
func TestManagerReloadKeepsLastGood(t *testing.T) {
	path := writeConfig(t, "listen_addr: \":8080\"\n")

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("store:\n  driver: sqlite\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Reload(); err == nil {
		t.Error("Reload() accepted an invalid config")
	}
	if mgr.Current().ListenAddr != ":8080" {
		t.Errorf("settings replaced by invalid reload: %q", mgr.Current().ListenAddr)
	}
}
