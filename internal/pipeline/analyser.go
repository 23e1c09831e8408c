package pipeline

import (
	"time"

	"rngkiosk/internal/analysis"
)

// runAnalyser pulls bits off bitCh, feeds them into the rolling windows and
// a bounded trailing history buffer, and every analysisInterval computes a
// fresh AnalysisSnapshot once the smallest window has filled. It is the
// sole owner of windows, history, and detector, so none of them need
// locking; settingsCh is the only way anything outside this goroutine
// changes their configuration.
func (p *Pipeline) runAnalyser() {
	defer p.wg.Done()
	defer p.crash.RecoverGoroutine()

	history := make([]byte, 0, p.historyCap)
	analysisInterval := analyserRecvWait
	lastTick := time.Now()
	prevState := analysis.StateCalm

	for {
		select {
		case <-p.ctx.Done():
			return

		case bit, ok := <-p.bitCh:
			if !ok {
				return
			}
			p.windows.AddBits([]byte{bit})
			history = appendHistory(history, bit, p.historyCap)

		case s := <-p.settingsCh:
			analysisInterval = p.applySettings(s, analysisInterval)

		case <-time.After(analyserRecvWait):
		}

		if time.Since(lastTick) < analysisInterval {
			continue
		}
		lastTick = time.Now()

		if !p.windows.HasEnoughData(0) {
			continue
		}

		prevState = p.runTick(history, prevState)
	}
}

// appendHistory appends bit to history, evicting from the front once cap is
// reached so history always holds at most cap bits, newest last.
func appendHistory(history []byte, bit byte, cap int) []byte {
	history = append(history, bit)
	if len(history) > cap {
		history = history[len(history)-cap:]
	}
	return history
}

// runTick runs the test battery over every window, combines the results,
// evaluates the detector, persists and publishes the snapshot, and fires
// EVENT-transition side effects. It returns the new state for the caller to
// carry into the next tick.
func (p *Pipeline) runTick(history []byte, prevState analysis.DetectorState) analysis.DetectorState {
	timer := p.metrics.StartAnalysisTickTimer()
	defer timer.Stop()

	arrays := p.windows.AsArrays()
	summaries := make(map[int][]analysis.TestResult, len(arrays))
	for window, bits := range arrays {
		summaries[window] = analysis.RunBattery(bits, window)
	}

	stats := analysis.Combine(summaries)
	state, reason := p.detector.Evaluate(stats.GDI, stats.QValues)

	snap := analysis.AnalysisSnapshot{
		TimestampMs: time.Now().UnixMilli(),
		Stats:       stats,
		State:       state,
		Reason:      reason,
	}

	p.setLastTick(time.Now())
	p.setLastSnapshot(snap)
	p.metrics.RecordGDI(stats.GDI)
	p.metrics.RecordDetectorState(detectorStateCode(state), state == analysis.StateEvent && prevState != analysis.StateEvent)

	if err := p.store.RecordSnapshot(snap); err != nil {
		p.logger.Warn("record snapshot failed", "error", &PersistError{Op: "record_snapshot", Err: err})
		p.metrics.RecordError()
	}
	p.metrics.SetHistoryDepth(int64(len(p.store.History())))

	if state == analysis.StateEvent && prevState != analysis.StateEvent {
		p.onEnterEvent(snap, history, prevState)
	}

	select {
	case p.snapshotCh <- SnapshotUpdate{Snapshot: snap, HistoryBits: trailingCopy(history, len(history))}:
	default:
		p.logger.Debug("snapshot channel full, dropping update for slow consumer")
	}

	return state
}

// onEnterEvent runs the side effects triggered by a CALM/RECOVER -> EVENT
// transition: a durable event record with a bit snapshot, a warn log line,
// an audit entry, and a best-effort desktop notification. None of these can
// fail the tick; every error is logged at debug and swallowed.
func (p *Pipeline) onEnterEvent(snap analysis.AnalysisSnapshot, history []byte, prevState analysis.DetectorState) {
	p.logger.Warn("detector entered EVENT state", "reason", snap.Reason, "gdi", snap.Stats.GDI)

	if err := p.store.RecordEvent(snap, trailingCopy(history, len(history))); err != nil {
		p.logger.Debug("record event failed", "error", &PersistError{Op: "record_event", Err: err})
	}
	if err := p.audit.LogDetectorState(p.ctx, string(prevState), string(analysis.StateEvent), snap.Reason, snap.Stats.GDI); err != nil {
		p.logger.Debug("audit log detector state failed", "error", err)
	}
	if err := p.notifier.Notify(string(snap.State), snap.Reason, snap.Stats.GDI); err != nil {
		p.logger.Debug("notifier failed", "error", err)
	}
}

func trailingCopy(bits []byte, n int) []byte {
	if n > len(bits) {
		n = len(bits)
	}
	out := make([]byte, n)
	copy(out, bits[len(bits)-n:])
	return out
}

func detectorStateCode(state analysis.DetectorState) int64 {
	switch state {
	case analysis.StateEvent:
		return 1
	case analysis.StateRecover:
		return 2
	default:
		return 0
	}
}

// applySettings validates each field of s independently and applies only
// the ones that pass, preserving whatever was in effect before for the
// rest. It returns the analysis interval to use going forward.
func (p *Pipeline) applySettings(s Settings, currentInterval time.Duration) time.Duration {
	if sizes := positiveSizes(s.WindowSizes); len(sizes) > 0 {
		p.windows.Reconfigure(sizes)
	} else if len(s.WindowSizes) > 0 {
		p.logger.Debug("ignoring window sizes update with no positive entries", "sizes", s.WindowSizes)
	}

	if s.Detector != (analysis.DetectorConfig{}) {
		p.detector.Configure(s.Detector)
	}

	nextInterval := currentInterval
	if s.AnalysisInterval > 0 {
		nextInterval = s.AnalysisInterval
	} else {
		p.logger.Debug("ignoring non-positive analysis interval in settings update", "interval", s.AnalysisInterval)
	}

	if s.Bias >= 0 && s.Bias <= 0.5 {
		p.setBias(s.Bias)
	} else {
		p.logger.Debug("ignoring out-of-range bias in settings update", "bias", s.Bias)
	}

	return nextInterval
}

// positiveSizes drops non-positive entries, leaving any positive subset to
// replace the window set wholesale.
func positiveSizes(sizes []int) []int {
	out := make([]int, 0, len(sizes))
	for _, s := range sizes {
		if s > 0 {
			out = append(out, s)
		}
	}
	return out
}
