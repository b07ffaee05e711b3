package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/thermo-dash/internal/records"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Device.Address != "192.168.1.200" {
		t.Errorf("Device.Address: got %q", cfg.Device.Address)
	}
	if cfg.Dashboard.Capacity != 20 {
		t.Errorf("Dashboard.Capacity: got %d", cfg.Dashboard.Capacity)
	}
	if cfg.Alarm.Interval != time.Second || cfg.Alarm.Burst != 300*time.Millisecond {
		t.Errorf("Alarm cadence: got %v/%v", cfg.Alarm.Interval, cfg.Alarm.Burst)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thermo.yaml")
	writeFile(t, path, `
device:
  address: 10.0.0.42
dashboard:
  threshold: 85.5
  recording: true
alarm:
  interval: 2s
  burst: 500ms
  sounder: none
mqtt:
  broker: tcp://localhost:1883
storage:
  driver: postgres
  dsn: postgres://thermo@localhost/thermo
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Device.Address != "10.0.0.42" {
		t.Errorf("Device.Address: got %q", cfg.Device.Address)
	}
	if cfg.Dashboard.Threshold != 85.5 || !cfg.Dashboard.Recording {
		t.Errorf("Dashboard: got %+v", cfg.Dashboard)
	}
	if cfg.Alarm.Interval != 2*time.Second || cfg.Alarm.Burst != 500*time.Millisecond {
		t.Errorf("Alarm cadence: got %v/%v", cfg.Alarm.Interval, cfg.Alarm.Burst)
	}
	if cfg.Alarm.Sounder != SounderNone {
		t.Errorf("Alarm.Sounder: got %q", cfg.Alarm.Sounder)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Errorf("Storage.Driver: got %q", cfg.Storage.Driver)
	}
	// Untouched sections keep their defaults.
	if cfg.Dashboard.Capacity != 20 || cfg.HTTP.Addr != ":8080" {
		t.Errorf("defaults lost: capacity=%d http=%q", cfg.Dashboard.Capacity, cfg.HTTP.Addr)
	}
	if !cfg.Device.ConnectOnStart {
		t.Error("ConnectOnStart default lost")
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty", "   \n", "empty"},
		{"bad yaml", "device: [", "parse"},
		{"burst not shorter", "alarm:\n  interval: 1s\n  burst: 1s\n", "Burst"},
		{"bad sounder", "alarm:\n  sounder: siren\n", "Sounder"},
		{"bad driver", "storage:\n  driver: oracle\n", "Driver"},
		{"nan threshold", "dashboard:\n  threshold: .nan\n", "threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			writeFile(t, path, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thermo.yaml")
	writeFile(t, path, "dashboard:\n  threshold: 50\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	if err := Watch(ctx, path, func(c *Config) { got <- c }); err != nil {
		t.Fatalf("watch: %v", err)
	}

	// An invalid edit is skipped.
	writeFile(t, path, "alarm:\n  sounder: siren\n")
	select {
	case c := <-got:
		t.Fatalf("invalid config delivered: %+v", c)
	case <-time.After(400 * time.Millisecond):
	}

	writeFile(t, path, "dashboard:\n  threshold: 72.5\n")
	select {
	case c := <-got:
		if c.Dashboard.Threshold != 72.5 {
			t.Errorf("threshold: got %v, want 72.5", c.Dashboard.Threshold)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thermo.yaml")
	writeFile(t, path, "dashboard:\n  threshold: 50\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	if err := Watch(ctx, path, func(c *Config) { got <- c }); err != nil {
		t.Fatalf("watch: %v", err)
	}

	writeFile(t, filepath.Join(dir, "other.yaml"), "dashboard:\n  threshold: 1\n")
	select {
	case c := <-got:
		t.Fatalf("unexpected reload: %+v", c)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestLoadPicksDSNForDriver(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no storage section", "dashboard:\n  threshold: 90\n", records.DefaultSQLiteDSN},
		{"postgres without dsn", "storage:\n  driver: postgres\n", records.DefaultPostgresDSN},
		{"explicit dsn", "storage:\n  driver: postgres\n  dsn: postgres://db/thermo\n", "postgres://db/thermo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			writeFile(t, path, tt.content)
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.Storage.DSN != tt.want {
				t.Errorf("DSN: got %q, want %q", cfg.Storage.DSN, tt.want)
			}
		})
	}

	if got := DefaultConfig().Storage.DSN; got != records.DefaultSQLiteDSN {
		t.Errorf("default DSN: got %q, want %q", got, records.DefaultSQLiteDSN)
	}
}
