// Package metrics provides Prometheus-compatible metrics for rngkiosk.
package metrics

import (
	"time"
)

// KioskMetrics holds all rngkiosk-specific metrics, wired into the
// pipeline's producer and analyser goroutines.
type KioskMetrics struct {
	registry *Registry

	// Counters
	BitsTotal           *Counter
	ChunksTotal         *Counter
	DetectorEventsTotal *Counter
	SourceFailoversTotal *Counter
	ErrorsTotal         *Counter

	// Gauges
	DetectorState   *Gauge // 0 = calm, 1 = event, 2 = recover
	CurrentGDI      *Gauge
	UptimeSeconds   *Gauge
	HistoryDepth    *Gauge

	// Histograms
	AnalysisTickDuration *Histogram
	SourceReadDuration   *Histogram
}

// startTime records when metrics were initialized.
var startTime = time.Now()

// NewKioskMetrics creates and registers all rngkiosk metrics against
// registry. Pass nil to use the package default registry.
func NewKioskMetrics(registry *Registry) *KioskMetrics {
	if registry == nil {
		registry = Default()
	}

	m := &KioskMetrics{
		registry: registry,

		BitsTotal: registry.RegisterCounter(
			"entropy_bits_total",
			"Total number of bits sampled from the bit source",
			nil,
		),
		ChunksTotal: registry.RegisterCounter(
			"chunks_total",
			"Total number of chunks read from the bit source",
			nil,
		),
		DetectorEventsTotal: registry.RegisterCounter(
			"detector_events_total",
			"Total number of transitions into the EVENT state",
			nil,
		),
		SourceFailoversTotal: registry.RegisterCounter(
			"source_failover_total",
			"Total number of times the bit source failed over to its fallback",
			nil,
		),
		ErrorsTotal: registry.RegisterCounter(
			"errors_total",
			"Total number of pipeline errors",
			nil,
		),

		DetectorState: registry.RegisterGauge(
			"detector_state",
			"Current detector state: 0=calm, 1=event, 2=recover",
			nil,
		),
		CurrentGDI: registry.RegisterGauge(
			"current_gdi",
			"Most recent combined Generalized Deviation Indicator, scaled x1000",
			nil,
		),
		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds",
			"Number of seconds the pipeline has been running",
			nil,
		),
		HistoryDepth: registry.RegisterGauge(
			"history_depth",
			"Number of snapshots currently held in the metrics store's ring buffer",
			nil,
		),

		AnalysisTickDuration: registry.RegisterHistogram(
			"analysis_tick_duration_seconds",
			"Duration of one analyser tick (battery run + combine + detect)",
			nil,
			DurationBuckets,
		),
		SourceReadDuration: registry.RegisterHistogram(
			"source_read_duration_seconds",
			"Duration of one bit source ReadChunk call",
			nil,
			[]float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		),
	}

	return m
}

// RecordChunk records a chunk read from the bit source, in bits.
func (m *KioskMetrics) RecordChunk(numBits int) {
	m.ChunksTotal.Inc()
	m.BitsTotal.Add(uint64(numBits))
}

// StartSourceReadTimer returns a timer for a ReadChunk call.
func (m *KioskMetrics) StartSourceReadTimer() *HistogramTimer {
	return m.SourceReadDuration.Timer()
}

// StartAnalysisTickTimer returns a timer for one analyser tick.
func (m *KioskMetrics) StartAnalysisTickTimer() *HistogramTimer {
	return m.AnalysisTickDuration.Timer()
}

// RecordDetectorState updates the detector state gauge and, on a
// transition into the EVENT state, increments DetectorEventsTotal.
func (m *KioskMetrics) RecordDetectorState(stateCode int64, enteredEvent bool) {
	m.DetectorState.Set(stateCode)
	if enteredEvent {
		m.DetectorEventsTotal.Inc()
	}
}

// RecordGDI sets the current GDI gauge, scaled by 1000 since Gauge values
// are integer-valued.
func (m *KioskMetrics) RecordGDI(gdi float64) {
	m.CurrentGDI.Set(int64(gdi * 1000))
}

// RecordSourceFailover records a bit source failover.
func (m *KioskMetrics) RecordSourceFailover() {
	m.SourceFailoversTotal.Inc()
}

// RecordError records a pipeline error.
func (m *KioskMetrics) RecordError() {
	m.ErrorsTotal.Inc()
}

// SetHistoryDepth sets the metrics store's ring buffer depth.
func (m *KioskMetrics) SetHistoryDepth(n int64) {
	m.HistoryDepth.Set(n)
}

// UpdateUptime updates the uptime metric.
func (m *KioskMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(startTime).Seconds()))
}

// Snapshot returns a snapshot of key metrics, suitable for a /status
// endpoint.
func (m *KioskMetrics) Snapshot() map[string]interface{} {
	m.UpdateUptime()
	return map[string]interface{}{
		"entropy_bits_total":     m.BitsTotal.Value(),
		"chunks_total":           m.ChunksTotal.Value(),
		"detector_events_total":  m.DetectorEventsTotal.Value(),
		"source_failover_total":  m.SourceFailoversTotal.Value(),
		"errors_total":           m.ErrorsTotal.Value(),
		"detector_state":         m.DetectorState.Value(),
		"current_gdi":            float64(m.CurrentGDI.Value()) / 1000,
		"uptime_seconds":         m.UptimeSeconds.Value(),
		"history_depth":          m.HistoryDepth.Value(),
		"analysis_tick_avg_secs": m.AnalysisTickDuration.Mean(),
	}
}

// Global rngkiosk metrics instance.
var defaultKioskMetrics *KioskMetrics

// GetMetrics returns the global rngkiosk metrics instance.
func GetMetrics() *KioskMetrics {
	if defaultKioskMetrics == nil {
		defaultKioskMetrics = NewKioskMetrics(Default())
	}
	return defaultKioskMetrics
}

// InitMetrics initializes the global rngkiosk metrics with a custom registry.
func InitMetrics(registry *Registry) *KioskMetrics {
	defaultKioskMetrics = NewKioskMetrics(registry)
	return defaultKioskMetrics
}
