package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every field error found by ValidateConfig,
// rather than stopping at the first one.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig checks source kind, read_bytes and bias, window sizes and
// analysis interval, the GDI and FDR thresholds, and the snapshot directory,
// and returns all failures at once, unlike Config.Validate which returns on
// the first failure. It does not check chunk_bits, history_length, the
// sustained and min-significant alert fields, or the log settings. CLI
// tooling uses this to show a user every problem in one pass.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	switch c.Source.Kind {
	case "hardware", "tpm", "fake":
	default:
		errs = append(errs, ValidationError{"source.kind", "must be hardware, tpm, or fake"})
	}
	if c.Source.ReadBytes < 1 {
		errs = append(errs, ValidationError{"source.read_bytes", "must be positive"})
	}
	if c.Source.Bias < 0 || c.Source.Bias > 0.5 {
		errs = append(errs, ValidationError{"source.bias", "must be in [0, 0.5]"})
	}

	if len(c.Windows.Sizes) == 0 {
		errs = append(errs, ValidationError{"windows.sizes", "must not be empty"})
	}
	for _, size := range c.Windows.Sizes {
		if size <= 0 {
			errs = append(errs, ValidationError{"windows.sizes", "must all be positive"})
			break
		}
	}
	if c.Windows.AnalysisIntervalMs < 1 {
		errs = append(errs, ValidationError{"windows.analysis_interval_ms", "must be positive"})
	}

	if c.Alert.GDIThreshold <= 0 {
		errs = append(errs, ValidationError{"alert.gdi_z", "must be positive"})
	}
	if c.Alert.FDRQThreshold <= 0 || c.Alert.FDRQThreshold > 1 {
		errs = append(errs, ValidationError{"alert.fdr_q", "must be in (0, 1]"})
	}

	if c.Storage.SnapshotDir == "" {
		errs = append(errs, ValidationError{"storage.snapshot_dir", "is required"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SaveConfig writes cfg to path as TOML, creating parent directories as
// needed.
func SaveConfig(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(dirOf(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func dirOf(path string) string {
	idx := strings.LastIndexAny(path, "/\\")
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
