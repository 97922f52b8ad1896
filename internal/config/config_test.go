package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Stealing.GracePeriodMinutes != 5 {
		t.Errorf("Stealing.GracePeriodMinutes = %d, want 5", cfg.Stealing.GracePeriodMinutes)
	}
	if cfg.Stealing.MinProgressToProtect != 50 {
		t.Errorf("Stealing.MinProgressToProtect = %d, want 50", cfg.Stealing.MinProgressToProtect)
	}
	if len(cfg.Stealing.CrossTypeStealRules) != 3 {
		t.Errorf("Stealing.CrossTypeStealRules has %d rules, want 3", len(cfg.Stealing.CrossTypeStealRules))
	}
	if cfg.LoadBalance.OverloadThreshold != 90 {
		t.Errorf("LoadBalance.OverloadThreshold = %v, want 90", cfg.LoadBalance.OverloadThreshold)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, DriverMemory)
	}
	if cfg.Events.HistorySize != 1000 {
		t.Errorf("Events.HistorySize = %d, want 1000", cfg.Events.HistorySize)
	}
	if cfg.Maintenance.Interval() != time.Minute {
		t.Errorf("Maintenance.Interval() = %v, want 1m", cfg.Maintenance.Interval())
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default config should validate, got %v", errs)
	}
}

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	v, err := NewViper("")
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Stealing.StaleThresholdMinutes != 30 {
		t.Errorf("Stealing.StaleThresholdMinutes = %d, want 30", cfg.Stealing.StaleThresholdMinutes)
	}
	if !cfg.Stealing.PairAllowed("tester", "coder") {
		t.Error("default cross-type rules should survive unmarshalling")
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
stealing:
  gracePeriodMinutes: 10
  crossTypeStealRules:
    - [coder, reviewer]
loadbalance:
  maxMovesPerRun: 3
storage:
  driver: sqlite
  path: /tmp/claims.db
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	v, err := NewViper(path)
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Stealing.GracePeriodMinutes != 10 {
		t.Errorf("Stealing.GracePeriodMinutes = %d, want 10", cfg.Stealing.GracePeriodMinutes)
	}
	if cfg.Stealing.ContestWindowMinutes != 30 {
		t.Errorf("unset keys should keep defaults, ContestWindowMinutes = %d", cfg.Stealing.ContestWindowMinutes)
	}
	if !cfg.Stealing.PairAllowed("reviewer", "coder") || cfg.Stealing.PairAllowed("coder", "tester") {
		t.Errorf("CrossTypeStealRules = %v, want only coder/reviewer", cfg.Stealing.CrossTypeStealRules)
	}
	if cfg.LoadBalance.MaxMovesPerRun != 3 {
		t.Errorf("LoadBalance.MaxMovesPerRun = %d, want 3", cfg.LoadBalance.MaxMovesPerRun)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.Path != "/tmp/claims.db" {
		t.Errorf("Storage = %+v, want sqlite at /tmp/claims.db", cfg.Storage)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CLAIMFLOW_STEALING_OVERLOADTHRESHOLD", "8")
	t.Setenv("CLAIMFLOW_EVENTS_HISTORYSIZE", "50")

	v, err := NewViper("")
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Stealing.OverloadThreshold != 8 {
		t.Errorf("Stealing.OverloadThreshold = %d, want 8", cfg.Stealing.OverloadThreshold)
	}
	if cfg.Events.HistorySize != 50 {
		t.Errorf("Events.HistorySize = %d, want 50", cfg.Events.HistorySize)
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  driver: mongo
events:
  historySize: 0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	v, err := NewViper(path)
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}
	_, err = Load(v)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Load() error = %v, want ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d validation errors, want 2: %v", len(verrs), verrs)
	}
}

func TestNewViper_MissingExplicitFile(t *testing.T) {
	if _, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("NewViper() should fail for an explicit file that does not exist")
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/xdg")
	if got := ConfigDir(); got != filepath.Join("/custom/xdg", "claimflow") {
		t.Errorf("ConfigDir() = %q, want /custom/xdg/claimflow", got)
	}
	if got := ConfigFile(); !strings.HasSuffix(got, filepath.Join("claimflow", "config.yaml")) {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestWatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file watch test in short mode")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("stealing:\n  gracePeriodMinutes: 5\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	v, err := NewViper(path)
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}

	changes := make(chan *Config, 4)
	Watch(v, func(cfg *Config, err error) {
		if err != nil {
			return
		}
		select {
		case changes <- cfg:
		default:
		}
	})

	if err := os.WriteFile(path, []byte("stealing:\n  gracePeriodMinutes: 7\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Stealing.GracePeriodMinutes == 7 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for config reload")
		}
	}
}
