package pipeline

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"rngkiosk/internal/analysis"
	"rngkiosk/internal/logging"
	"rngkiosk/internal/metrics"
	"rngkiosk/internal/source"
	"rngkiosk/internal/store"
)

const (
	bitChannelCapacity = 8192
	snapshotChannelCap = 16
	settingsChannelCap = 4
	producerRetryDelay = 500 * time.Millisecond
	analyserRecvWait   = 100 * time.Millisecond
	primaryRetryPeriod = 10 * time.Second
	shutdownJoinBound  = 2 * time.Second
)

// SnapshotUpdate is what the analyser publishes on every completed tick: the
// scored snapshot plus a trailing window of the raw bit stream, sized for
// the UI's sparkline and for EVENT-transition bit captures.
type SnapshotUpdate struct {
	Snapshot    analysis.AnalysisSnapshot
	HistoryBits []byte
}

// Pipeline owns the Producer and Analyser goroutines and the channels that
// connect them to each other and to the rest of the kiosk.
type Pipeline struct {
	src      source.BitSource
	store    *store.MetricsStore
	metrics  *metrics.KioskMetrics
	logger   *logging.Logger
	audit    *logging.AuditLogger
	notifier Notifier
	crash    *logging.CrashHandler

	bitCh      chan byte
	snapshotCh chan SnapshotUpdate
	settingsCh chan Settings

	windows  *analysis.RollingWindows
	detector *analysis.Detector

	historyCap int

	biasBits atomic.Uint64 // math.Float64bits of the active bias

	lastTickMu sync.RWMutex
	lastTick   time.Time

	lastSnapshotMu sync.RWMutex
	lastSnapshot   analysis.AnalysisSnapshot

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Deps bundles Pipeline's collaborators so New doesn't take an
// ever-growing parameter list.
type Deps struct {
	Source   source.BitSource
	Store    *store.MetricsStore
	Metrics  *metrics.KioskMetrics
	Logger   *logging.Logger
	Audit    *logging.AuditLogger
	Notifier Notifier
	Crash    *logging.CrashHandler
}

// New builds a Pipeline with the given initial settings. Start must be
// called to actually run it.
func New(deps Deps, initial Settings) *Pipeline {
	if deps.Notifier == nil {
		deps.Notifier = NoOpNotifier{}
	}
	if deps.Crash == nil {
		deps.Crash = logging.DefaultCrashHandler()
	}

	maxWindow := 0
	for _, size := range initial.WindowSizes {
		if size > maxWindow {
			maxWindow = size
		}
	}
	historyCap := maxWindow
	if historyCap < 4096 {
		historyCap = 4096
	}

	p := &Pipeline{
		src:        deps.Source,
		store:      deps.Store,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		audit:      deps.Audit,
		notifier:   deps.Notifier,
		crash:      deps.Crash,
		bitCh:      make(chan byte, bitChannelCapacity),
		snapshotCh: make(chan SnapshotUpdate, snapshotChannelCap),
		settingsCh: make(chan Settings, settingsChannelCap),
		windows:    analysis.NewRollingWindows(initial.WindowSizes),
		detector:   analysis.NewDetector(initial.Detector),
		historyCap: historyCap,
	}
	p.setBias(initial.Bias)
	return p
}

// Start launches the Producer and Analyser goroutines.
func (p *Pipeline) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(2)
	go p.runProducer()
	go p.runAnalyser()
}

// Stop cancels both goroutines and waits up to shutdownJoinBound for them
// to exit. A failed join is logged, not fatal: the process is exiting
// anyway.
func (p *Pipeline) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownJoinBound):
		p.logger.Warn("pipeline shutdown join timed out", "bound", shutdownJoinBound)
	}

	if err := p.src.Close(); err != nil {
		p.logger.Warn("bit source close failed", "error", err)
	}
}

// UpdateSettings enqueues a settings change for the analyser to pick up at
// its next loop iteration. The send is non-blocking: a full queue drops the
// oldest pending update in favor of the newest one, since only the latest
// settings matter.
func (p *Pipeline) UpdateSettings(s Settings) {
	for {
		select {
		case p.settingsCh <- s:
			return
		default:
		}
		select {
		case <-p.settingsCh:
		default:
			return
		}
	}
}

// Snapshots returns the channel the UI and CLI drain for completed ticks.
func (p *Pipeline) Snapshots() <-chan SnapshotUpdate {
	return p.snapshotCh
}

// LastTick returns the time of the most recently completed analyser tick,
// the zero time if none has completed yet. Used by health.LastTickCheck.
func (p *Pipeline) LastTick() time.Time {
	p.lastTickMu.RLock()
	defer p.lastTickMu.RUnlock()
	return p.lastTick
}

func (p *Pipeline) setLastTick(t time.Time) {
	p.lastTickMu.Lock()
	p.lastTick = t
	p.lastTickMu.Unlock()
}

// LastSnapshot returns the most recently completed AnalysisSnapshot, the
// zero value if no tick has completed yet. Used by the status HTTP handler
// so the dashboard can show the live per-test breakdown without draining
// the Snapshots channel itself.
func (p *Pipeline) LastSnapshot() analysis.AnalysisSnapshot {
	p.lastSnapshotMu.RLock()
	defer p.lastSnapshotMu.RUnlock()
	return p.lastSnapshot
}

func (p *Pipeline) setLastSnapshot(snap analysis.AnalysisSnapshot) {
	p.lastSnapshotMu.Lock()
	p.lastSnapshot = snap
	p.lastSnapshotMu.Unlock()
}

func (p *Pipeline) setBias(bias float64) {
	p.biasBits.Store(math.Float64bits(bias))
}

func (p *Pipeline) getBias() float64 {
	return math.Float64frombits(p.biasBits.Load())
}
