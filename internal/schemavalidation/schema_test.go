package schemavalidation

import "testing"

type fakeSourceCfg struct {
	Kind      string
	Primary   string
	Fallback  string
	ReadBytes int
	FakeSeed  int64
	Bias      float64
}

type fakeWindowsCfg struct {
	Sizes              []int
	ChunkBits          int
	AnalysisIntervalMs int
	HistoryLength      int
}

type fakeAlertCfg struct {
	GDIThreshold        float64
	SustainedThreshold  float64
	SustainedTicks      int
	MinSignificantTests int
	FDRQThreshold       float64
}

type fakeExportCfg struct {
	SnapshotCount int
	USBMount      string
}

type fakeStorageCfg struct {
	SnapshotDir  string
	SnapshotBits int
	LogCSV       string
	Export       fakeExportCfg
}

type fakeNotifyCfg struct{ Enabled bool }
type fakeLogCfg struct {
	Level  string
	Format string
	Path   string
}

type fakeConfig struct {
	Source  fakeSourceCfg
	Windows fakeWindowsCfg
	Alert   fakeAlertCfg
	Storage fakeStorageCfg
	Notify  fakeNotifyCfg
	Log     fakeLogCfg
}

func validConfig() fakeConfig {
	return fakeConfig{
		Source:  fakeSourceCfg{Kind: "hardware", Primary: "/dev/hwrng", Fallback: "/dev/urandom", ReadBytes: 512},
		Windows: fakeWindowsCfg{Sizes: []int{256, 1024}, ChunkBits: 4096, AnalysisIntervalMs: 1000, HistoryLength: 600},
		Alert:   fakeAlertCfg{GDIThreshold: 3, SustainedThreshold: 2.5, SustainedTicks: 5, MinSignificantTests: 2, FDRQThreshold: 0.01},
		Storage: fakeStorageCfg{SnapshotDir: "/tmp/snap"},
		Notify:  fakeNotifyCfg{Enabled: true},
		Log:     fakeLogCfg{Level: "info", Format: "text"},
	}
}

func TestValidateKioskConfigAccepts(t *testing.T) {
	if err := ValidateKioskConfig(validConfig()); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}

func TestValidateKioskConfigRejectsBadSourceKind(t *testing.T) {
	cfg := validConfig()
	cfg.Source.Kind = "quantum"
	if err := ValidateKioskConfig(cfg); err == nil {
		t.Fatal("expected validation error for invalid source.kind")
	}
}

func TestValidateKioskConfigRejectsEmptyWindowSizes(t *testing.T) {
	cfg := validConfig()
	cfg.Windows.Sizes = nil
	if err := ValidateKioskConfig(cfg); err == nil {
		t.Fatal("expected validation error for empty windows.sizes")
	}
}

func TestValidateKioskConfigRejectsOutOfRangeBias(t *testing.T) {
	cfg := validConfig()
	cfg.Source.Bias = 0.9
	if err := ValidateKioskConfig(cfg); err == nil {
		t.Fatal("expected validation error for out-of-range bias")
	}
}
