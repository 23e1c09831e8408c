package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig() should validate cleanly, got %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load of missing file should not error, got %v", err)
	}
	if cfg.Source.Kind != DefaultConfig().Source.Kind {
		t.Errorf("expected default source kind, got %v", cfg.Source.Kind)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	const doc = `
[source]
kind = "fake"
read_bytes = 256

[windows]
sizes = [128, 512]
chunk_bits = 1024
analysis_interval_ms = 500
history_length = 100

[alert]
gdi_z = 4.0
sustained_z = 3.0
sustained_ticks = 3
min_significant_tests = 2
fdr_q = 0.05

[storage]
snapshot_dir = "/tmp/snap"

[notify]
enabled = false

[log]
level = "debug"
format = "json"
`
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Kind != "fake" {
		t.Errorf("source.kind = %v, want fake", cfg.Source.Kind)
	}
	if cfg.Windows.Sizes[0] != 128 || cfg.Windows.Sizes[1] != 512 {
		t.Errorf("windows.sizes = %v", cfg.Windows.Sizes)
	}
	if cfg.Alert.GDIThreshold != 4.0 {
		t.Errorf("alert.gdi_z = %v, want 4.0", cfg.Alert.GDIThreshold)
	}
	if cfg.Notify.Enabled {
		t.Error("notify.enabled should be false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate, got %v", err)
	}
}

func TestValidateRejectsBadSourceKind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source.Kind = "quantum"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid source.kind")
	}
}

func TestValidateRejectsEmptyWindowSizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Windows.Sizes = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty windows.sizes")
	}
}

func TestValidateConfigCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source.Kind = "bogus"
	cfg.Windows.Sizes = nil
	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) < 2 {
		t.Errorf("expected at least 2 collected errors, got %d: %v", len(verrs), verrs)
	}
}

func TestSaveConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.Source.Kind = "fake"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Source.Kind != "fake" {
		t.Errorf("round-tripped source.kind = %v, want fake", loaded.Source.Kind)
	}
}

func TestLoaderWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := SaveConfig(DefaultConfig(), path); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(path)
	defer loader.Close()

	if _, err := loader.Load(); err != nil {
		t.Fatalf("initial Load: %v", err)
	}

	changed := make(chan *Config, 1)
	loader.OnChange(func(c *Config) { changed <- c })

	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	updated := DefaultConfig()
	updated.Source.Kind = "fake"
	if err := SaveConfig(updated, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changed:
		if cfg.Source.Kind != "fake" {
			t.Errorf("reloaded source.kind = %v, want fake", cfg.Source.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload notification")
	}
}
