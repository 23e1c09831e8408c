package pipeline

import (
	"testing"

	"rngkiosk/internal/analysis"
)

func TestSettingsPayloadToSettingsOmittedFieldsAreNoOps(t *testing.T) {
	payload := SettingsPayload{WindowSizes: []int{256}}

	s := payload.ToSettings()
	if len(s.WindowSizes) != 1 || s.WindowSizes[0] != 256 {
		t.Errorf("WindowSizes = %v, want [256]", s.WindowSizes)
	}
	if s.AnalysisInterval != 0 {
		t.Errorf("AnalysisInterval = %v, want 0 (no-op sentinel)", s.AnalysisInterval)
	}
	if s.Detector != (analysis.DetectorConfig{}) {
		t.Errorf("Detector = %+v, want zero value (no-op sentinel)", s.Detector)
	}
	if s.Bias != -1 {
		t.Errorf("Bias = %v, want -1 (no-op sentinel)", s.Bias)
	}
}

func TestSettingsPayloadToSettingsBiasZeroIsApplied(t *testing.T) {
	zero := 0.0
	payload := SettingsPayload{Bias: &zero}

	s := payload.ToSettings()
	if s.Bias != 0 {
		t.Errorf("Bias = %v, want 0 explicitly applied", s.Bias)
	}
}
