package pipeline

import (
	"time"

	"rngkiosk/internal/analysis"
	"rngkiosk/internal/config"
)

// Settings is the live-tunable subset of the kiosk configuration: the
// pieces the analyser and producer re-read from the settings queue instead
// of a fixed construction-time value. Everything else (store paths, log
// destination, source device paths) requires a restart to change.
type Settings struct {
	WindowSizes      []int
	AnalysisInterval time.Duration
	Detector         analysis.DetectorConfig
	Bias             float64
}

// SettingsFromConfig projects the live-tunable fields out of a full Config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		WindowSizes:      append([]int(nil), cfg.Windows.Sizes...),
		AnalysisInterval: time.Duration(cfg.Windows.AnalysisIntervalMs) * time.Millisecond,
		Detector: analysis.DetectorConfig{
			GDIThreshold:        cfg.Alert.GDIThreshold,
			SustainedThreshold:  cfg.Alert.SustainedThreshold,
			SustainedTicks:      cfg.Alert.SustainedTicks,
			MinSignificantTests: cfg.Alert.MinSignificantTests,
			FDRQThreshold:       cfg.Alert.FDRQThreshold,
		},
		Bias: cfg.Source.Bias,
	}
}

// SettingsPayload is the wire shape accepted by the settings HTTP endpoint:
// every field optional, so a caller can post just the one knob it wants to
// change. Bias is a pointer because 0 is itself a valid bias; the other
// fields already have an unambiguous "leave alone" zero value that
// applySettings treats the same way.
type SettingsPayload struct {
	WindowSizes        []int                    `json:"window_sizes,omitempty"`
	AnalysisIntervalMs int                      `json:"analysis_interval_ms,omitempty"`
	Detector           *analysis.DetectorConfig `json:"detector,omitempty"`
	Bias               *float64                 `json:"bias,omitempty"`
}

// ToSettings converts a (possibly partial) payload into a Settings value
// ready for UpdateSettings. Omitted fields are translated into whatever
// sentinel applySettings already treats as "keep the current value".
func (p SettingsPayload) ToSettings() Settings {
	s := Settings{
		WindowSizes:      p.WindowSizes,
		AnalysisInterval: time.Duration(p.AnalysisIntervalMs) * time.Millisecond,
		Bias:             -1,
	}
	if p.Detector != nil {
		s.Detector = *p.Detector
	}
	if p.Bias != nil {
		s.Bias = *p.Bias
	}
	return s
}

// valid reports whether s is self-consistent enough to apply. Field-level
// validity is the caller's job; this only rejects the shapes that would
// otherwise panic or silently disable the analyser (e.g. an empty window
// set).
func (s Settings) valid() bool {
	if len(s.WindowSizes) == 0 {
		return false
	}
	for _, size := range s.WindowSizes {
		if size <= 0 {
			return false
		}
	}
	if s.AnalysisInterval <= 0 {
		return false
	}
	if s.Bias < 0 || s.Bias > 0.5 {
		return false
	}
	return true
}
