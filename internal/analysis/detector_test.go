package analysis

import "testing"

func TestDetectorCalmStaysCalm(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())
	state, reason := d.Evaluate(0, map[string]float64{})
	if state != StateCalm || reason != "calm" {
		t.Errorf("got (%v, %v), want (CALM, calm)", state, reason)
	}
}

func TestDetectorHardThresholdThenCooldownThenStabilized(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	state, reason := d.Evaluate(3.5, map[string]float64{})
	if state != StateEvent || reason != "gdi_threshold" {
		t.Fatalf("got (%v, %v), want (EVENT, gdi_threshold)", state, reason)
	}

	state, reason = d.Evaluate(1.0, map[string]float64{})
	if state != StateRecover || reason != "cooldown" {
		t.Fatalf("got (%v, %v), want (RECOVER, cooldown)", state, reason)
	}

	state, reason = d.Evaluate(0.1, map[string]float64{})
	if state != StateCalm || reason != "stabilized" {
		t.Fatalf("got (%v, %v), want (CALM, stabilized)", state, reason)
	}
}

func TestDetectorSustainedWatchThenSustainedEvent(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.SustainedThreshold = 2.0
	cfg.SustainedTicks = 2
	d := NewDetector(cfg)

	state, reason := d.Evaluate(2.5, nil)
	if state != StateRecover || reason != "watch" {
		t.Fatalf("tick 1: got (%v, %v), want (RECOVER, watch)", state, reason)
	}

	state, reason = d.Evaluate(2.5, nil)
	if state != StateEvent || reason != "sustained_gdi" {
		t.Fatalf("tick 2: got (%v, %v), want (EVENT, sustained_gdi)", state, reason)
	}
}

func TestDetectorQuietTickCollapsesSustainNonMonotone(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.SustainedThreshold = 2.0
	cfg.SustainedTicks = 3
	d := NewDetector(cfg)

	d.Evaluate(2.5, nil) // watch, sustain=1
	state, reason := d.Evaluate(0, nil)
	if state != StateCalm || reason != "stabilized" {
		t.Fatalf("quiet tick: got (%v, %v), want (CALM, stabilized)", state, reason)
	}

	// Sustain counter must have collapsed to 0: two more 2.5 ticks should not
	// immediately trigger sustained_gdi (need SustainedTicks=3 consecutive).
	state, reason = d.Evaluate(2.5, nil)
	if state != StateRecover || reason != "watch" {
		t.Fatalf("post-collapse tick 1: got (%v, %v), want (RECOVER, watch)", state, reason)
	}
	state, reason = d.Evaluate(2.5, nil)
	if state != StateRecover || reason != "watch" {
		t.Fatalf("post-collapse tick 2: got (%v, %v), want (RECOVER, watch)", state, reason)
	}
}

func TestDetectorFDRCluster(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.MinSignificantTests = 2
	cfg.FDRQThreshold = 0.01
	d := NewDetector(cfg)

	state, reason := d.Evaluate(0.1, map[string]float64{
		"a@n": 0.001,
		"b@n": 0.005,
		"c@n": 0.5,
	})
	if state != StateEvent || reason != "fdr_cluster" {
		t.Fatalf("got (%v, %v), want (EVENT, fdr_cluster)", state, reason)
	}
}

func TestDetectorEventResetsSustainCounter(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())
	d.Evaluate(3.5, nil) // EVENT via gdi_threshold
	if d.sustainCounter != 0 {
		t.Errorf("expected sustain counter reset to 0 after EVENT, got %d", d.sustainCounter)
	}
}
