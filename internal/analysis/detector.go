package analysis

// DetectorConfig holds the thresholds that drive Detector.Evaluate.
type DetectorConfig struct {
	GDIThreshold        float64
	SustainedThreshold  float64
	SustainedTicks      int
	MinSignificantTests int
	FDRQThreshold       float64
}

// DefaultDetectorConfig returns the spec's documented defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		GDIThreshold:        3.0,
		SustainedThreshold:  2.5,
		SustainedTicks:      5,
		MinSignificantTests: 2,
		FDRQThreshold:       0.01,
	}
}

// Detector is the three-state CALM/EVENT/RECOVER state machine described in
// the component design. It is not safe for concurrent use; the analyser
// goroutine is its sole owner.
type Detector struct {
	cfg            DetectorConfig
	state          DetectorState
	sustainCounter int
}

// NewDetector constructs a Detector starting in CALM with the given config.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg, state: StateCalm}
}

// Configure replaces the detector's thresholds without resetting its state
// or sustain counter.
func (d *Detector) Configure(cfg DetectorConfig) {
	d.cfg = cfg
}

// State returns the detector's current state.
func (d *Detector) State() DetectorState {
	return d.state
}

// Evaluate runs one tick of the decision in the canonical order: hard GDI
// threshold, then FDR cluster, then sustained watch, then the quiet-tick
// cooldown/stabilize/calm transition. It mutates and returns the new state
// and a short reason tag.
func (d *Detector) Evaluate(gdi float64, qValues map[string]float64) (DetectorState, string) {
	if gdi >= d.cfg.GDIThreshold {
		d.state = StateEvent
		d.sustainCounter = 0
		return d.state, "gdi_threshold"
	}

	significant := 0
	for _, q := range qValues {
		if q <= d.cfg.FDRQThreshold {
			significant++
		}
	}
	if significant >= d.cfg.MinSignificantTests {
		d.state = StateEvent
		d.sustainCounter = 0
		return d.state, "fdr_cluster"
	}

	if gdi >= d.cfg.SustainedThreshold {
		d.sustainCounter++
		if d.sustainCounter >= d.cfg.SustainedTicks {
			d.state = StateEvent
			d.sustainCounter = 0
			return d.state, "sustained_gdi"
		}
		d.state = StateRecover
		return d.state, "watch"
	}

	d.sustainCounter = 0
	switch d.state {
	case StateEvent:
		d.state = StateRecover
		return d.state, "cooldown"
	case StateRecover:
		d.state = StateCalm
		return d.state, "stabilized"
	default:
		d.state = StateCalm
		return d.state, "calm"
	}
}
