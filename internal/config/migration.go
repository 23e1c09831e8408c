package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// legacyYAMLConfig mirrors the flat YAML shape used by the kiosk's earlier
// Python prototype, before the TOML configuration in this package existed.
type legacyYAMLConfig struct {
	SourceKind   string  `yaml:"source_kind"`
	SourcePath   string  `yaml:"source_path"`
	FallbackPath string  `yaml:"fallback_path"`
	ReadBytes    int     `yaml:"read_bytes"`
	WindowSizes  []int   `yaml:"window_sizes"`
	IntervalMs   int     `yaml:"interval_ms"`
	GDIThreshold float64 `yaml:"gdi_threshold"`
	SnapshotDir  string  `yaml:"snapshot_dir"`
	CSVPath      string  `yaml:"csv_path"`
}

// MigrationResult describes one legacy-YAML-to-TOML migration.
type MigrationResult struct {
	FromPath string
	ToPath   string
	Warnings []string
}

// MigrateLegacyYAML reads a legacy YAML config from yamlPath, translates it
// into the current Config shape, and writes it as TOML to tomlPath. It does
// not overwrite an existing TOML file.
func MigrateLegacyYAML(yamlPath, tomlPath string) (*MigrationResult, error) {
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("read legacy config: %w", err)
	}

	var legacy legacyYAMLConfig
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("parse legacy config: %w", err)
	}

	if fileExists(tomlPath) {
		return nil, fmt.Errorf("migrate: %s already exists, refusing to overwrite", tomlPath)
	}

	result := &MigrationResult{FromPath: yamlPath, ToPath: tomlPath}
	cfg := DefaultConfig()

	if legacy.SourceKind != "" {
		cfg.Source.Kind = legacy.SourceKind
	} else {
		result.Warnings = append(result.Warnings, "source_kind not set in legacy config, defaulting to hardware")
	}
	if legacy.SourcePath != "" {
		cfg.Source.Primary = legacy.SourcePath
	}
	if legacy.FallbackPath != "" {
		cfg.Source.Fallback = legacy.FallbackPath
	}
	if legacy.ReadBytes > 0 {
		cfg.Source.ReadBytes = legacy.ReadBytes
	}
	if len(legacy.WindowSizes) > 0 {
		cfg.Windows.Sizes = legacy.WindowSizes
	}
	if legacy.IntervalMs > 0 {
		cfg.Windows.AnalysisIntervalMs = legacy.IntervalMs
	}
	if legacy.GDIThreshold > 0 {
		cfg.Alert.GDIThreshold = legacy.GDIThreshold
	}
	if legacy.SnapshotDir != "" {
		cfg.Storage.SnapshotDir = legacy.SnapshotDir
	}
	if legacy.CSVPath != "" {
		cfg.Storage.LogCSV = legacy.CSVPath
	}

	if err := validate(cfg); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("migrated config failed validation: %v", err))
	}

	if err := SaveConfig(cfg, tomlPath); err != nil {
		return result, fmt.Errorf("write migrated config: %w", err)
	}

	return result, nil
}

// backupConfig copies the file at path to path+".bak.<unix-timestamp>" and
// returns the backup's path. Unused until a TOML-to-TOML migration path
// exists, but kept here as the established pattern for any future one.
func backupConfig(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	backupPath := fmt.Sprintf("%s.bak.%d", path, time.Now().UnixNano())
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return "", err
	}
	return backupPath, nil
}
