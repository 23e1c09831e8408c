// Package config handles configuration loading and validation for the
// entropy-analysis kiosk.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// SourceConfig selects and configures the Bit Source.
type SourceConfig struct {
	// Kind is one of "hardware", "tpm", or "fake".
	Kind      string `toml:"kind"`
	Primary   string `toml:"primary"`
	Fallback  string `toml:"fallback"`
	ReadBytes int    `toml:"read_bytes"`
	FakeSeed  int64  `toml:"fake_seed"`
	Bias      float64 `toml:"bias"`
}

// WindowsConfig configures the rolling window sizes and analysis cadence.
type WindowsConfig struct {
	Sizes              []int `toml:"sizes"`
	ChunkBits          int   `toml:"chunk_bits"`
	AnalysisIntervalMs int   `toml:"analysis_interval_ms"`
	HistoryLength      int   `toml:"history_length"`
}

// AlertConfig configures the detector's thresholds.
type AlertConfig struct {
	GDIThreshold        float64 `toml:"gdi_z"`
	SustainedThreshold  float64 `toml:"sustained_z"`
	SustainedTicks      int     `toml:"sustained_ticks"`
	MinSignificantTests int     `toml:"min_significant_tests"`
	FDRQThreshold       float64 `toml:"fdr_q"`
}

// ExportConfig configures USB export behavior.
type ExportConfig struct {
	SnapshotCount int    `toml:"snapshot_count"`
	USBMount      string `toml:"usb_mount"`
}

// StorageConfig configures the Metrics Store.
// SnapshotBits is a trailing-bit count: when it is > 0, the Metrics Store
// persists the trailing SnapshotBits bits of the history buffer on every
// EVENT transition. A value of 0 disables bit-snapshot persistence.
type StorageConfig struct {
	SnapshotDir   string       `toml:"snapshot_dir"`
	SnapshotBits  int          `toml:"snapshot_bits"`
	LogCSV        string       `toml:"log_csv"`
	HistoryDBPath string       `toml:"history_db"`
	Export        ExportConfig `toml:"export"`
}

// NotifyConfig configures the desktop notifier.
type NotifyConfig struct {
	Enabled bool `toml:"enabled"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Path   string `toml:"path"`
}

// Config holds the kiosk's full configuration.
type Config struct {
	Source  SourceConfig  `toml:"source"`
	Windows WindowsConfig `toml:"windows"`
	Alert   AlertConfig   `toml:"alert"`
	Storage StorageConfig `toml:"storage"`
	Notify  NotifyConfig  `toml:"notify"`
	Log     LogConfig     `toml:"log"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := KioskDir()

	return &Config{
		Source: SourceConfig{
			Kind:      "hardware",
			Primary:   "/dev/hwrng",
			Fallback:  "/dev/urandom",
			ReadBytes: 512,
			FakeSeed:  1,
			Bias:      0,
		},
		Windows: WindowsConfig{
			Sizes:              []int{256, 1024, 4096},
			ChunkBits:          4096,
			AnalysisIntervalMs: 1000,
			HistoryLength:      600,
		},
		Alert: AlertConfig{
			GDIThreshold:        3.0,
			SustainedThreshold:  2.5,
			SustainedTicks:      5,
			MinSignificantTests: 2,
			FDRQThreshold:       0.01,
		},
		Storage: StorageConfig{
			SnapshotDir:   filepath.Join(dir, "snapshots"),
			SnapshotBits:  16,
			LogCSV:        filepath.Join(dir, "metrics.csv"),
			HistoryDBPath: filepath.Join(dir, "history.db"),
			Export: ExportConfig{
				SnapshotCount: 20,
			},
		},
		Notify: NotifyConfig{Enabled: true},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Path:   filepath.Join(dir, "rngkiosk.log"),
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(KioskDir(), "config.toml")
}

// KioskDir returns the base kiosk state directory.
func KioskDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".rngkiosk")
}

// Load reads configuration from path, merging over DefaultConfig. If the
// file doesn't exist, the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors field-group by field-group.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case "hardware", "tpm", "fake":
	default:
		return fmt.Errorf("config: source.kind must be hardware, tpm, or fake, got %q", c.Source.Kind)
	}
	if c.Source.ReadBytes < 1 {
		return errors.New("config: source.read_bytes must be positive")
	}
	if c.Source.Bias < 0 || c.Source.Bias > 0.5 {
		return errors.New("config: source.bias must be in [0, 0.5]")
	}

	if len(c.Windows.Sizes) == 0 {
		return errors.New("config: windows.sizes must not be empty")
	}
	for _, size := range c.Windows.Sizes {
		if size <= 0 {
			return errors.New("config: windows.sizes must all be positive")
		}
	}
	if c.Windows.ChunkBits < 1 {
		return errors.New("config: windows.chunk_bits must be positive")
	}
	if c.Windows.AnalysisIntervalMs < 1 {
		return errors.New("config: windows.analysis_interval_ms must be positive")
	}
	if c.Windows.HistoryLength < 1 {
		return errors.New("config: windows.history_length must be positive")
	}

	if c.Alert.GDIThreshold <= 0 {
		return errors.New("config: alert.gdi_z must be positive")
	}
	if c.Alert.SustainedThreshold <= 0 {
		return errors.New("config: alert.sustained_z must be positive")
	}
	if c.Alert.SustainedTicks < 1 {
		return errors.New("config: alert.sustained_ticks must be positive")
	}
	if c.Alert.MinSignificantTests < 1 {
		return errors.New("config: alert.min_significant_tests must be positive")
	}
	if c.Alert.FDRQThreshold <= 0 || c.Alert.FDRQThreshold > 1 {
		return errors.New("config: alert.fdr_q must be in (0, 1]")
	}

	if c.Storage.SnapshotDir == "" {
		return errors.New("config: storage.snapshot_dir is required")
	}
	if c.Storage.Export.SnapshotCount < 0 {
		return errors.New("config: storage.export.snapshot_count must not be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates all necessary directories for the kiosk.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.SnapshotDir,
		filepath.Dir(c.Storage.LogCSV),
		filepath.Dir(c.Storage.HistoryDBPath),
		filepath.Dir(c.Log.Path),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}

	return nil
}
