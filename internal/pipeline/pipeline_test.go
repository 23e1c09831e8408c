package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"rngkiosk/internal/analysis"
	"rngkiosk/internal/logging"
	"rngkiosk/internal/metrics"
	"rngkiosk/internal/source"
	"rngkiosk/internal/store"
)

func newTestPipeline(t *testing.T, settings Settings) *Pipeline {
	t.Helper()

	dir := t.TempDir()

	logger, err := logging.New(&logging.Config{
		Level:  logging.LevelDebug,
		Format: logging.FormatText,
		Output: "stderr",
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	audit, err := logging.NewAuditLogger(&logging.AuditLoggerConfig{
		FilePath:  filepath.Join(dir, "audit.log"),
		Component: "test",
	})
	if err != nil {
		t.Fatalf("new audit logger: %v", err)
	}

	st, err := store.Open(store.StoreConfig{HistoryLength: 32})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	met := metrics.NewKioskMetrics(metrics.NewRegistry("test", ""))

	deps := Deps{
		Source:   source.NewFakeSource(1, 64),
		Store:    st,
		Metrics:  met,
		Logger:   logger,
		Audit:    audit,
		Notifier: NoOpNotifier{},
	}

	return New(deps, settings)
}

func testSettings() Settings {
	return Settings{
		WindowSizes:      []int{32, 64},
		AnalysisInterval: 20 * time.Millisecond,
		Detector:         analysis.DefaultDetectorConfig(),
		Bias:             0,
	}
}

func TestPipelineProducesSnapshots(t *testing.T) {
	p := newTestPipeline(t, testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	select {
	case update := <-p.Snapshots():
		if update.Snapshot.Stats.GDI < 0 {
			t.Errorf("expected non-negative GDI, got %v", update.Snapshot.Stats.GDI)
		}
		if len(update.HistoryBits) == 0 {
			t.Error("expected non-empty history bits in snapshot update")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
	}

	if p.LastTick().IsZero() {
		t.Error("expected LastTick to be set after a snapshot")
	}
}

func TestPipelineStopJoinsGoroutines(t *testing.T) {
	p := newTestPipeline(t, testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	p.Stop()
}

func TestUpdateSettingsAppliesNewWindowSizes(t *testing.T) {
	p := newTestPipeline(t, testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	p.UpdateSettings(Settings{
		WindowSizes:      []int{16},
		AnalysisInterval: 10 * time.Millisecond,
		Detector:         analysis.DefaultDetectorConfig(),
		Bias:             0,
	})

	select {
	case update := <-p.Snapshots():
		found := false
		for _, summary := range update.Snapshot.Stats.Summaries {
			if summary.Window == 16 {
				found = true
			}
		}
		if !found {
			t.Errorf("expected a window-16 summary after reconfigure, got %+v", update.Snapshot.Stats.Summaries)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot after settings update")
	}
}

func TestInjectBiasContinuingFlipsAcrossChunks(t *testing.T) {
	first := make([]byte, 3)
	counter := injectBiasContinuing(first, 0.5, 0)
	if counter != 3 {
		t.Fatalf("counter = %d, want 3", counter)
	}
	for i, b := range first {
		if i%2 == 0 && b != 1 {
			t.Errorf("bit %d = %d, want flipped to 1", i, b)
		}
	}

	second := make([]byte, 4)
	injectBiasContinuing(second, 0.5, counter)
	if second[0] != 0 {
		t.Errorf("continuing counter should land on an odd global index first: got %d", second[0])
	}
}

func TestAppendHistoryBounded(t *testing.T) {
	history := make([]byte, 0, 4)
	for i := byte(0); i < 10; i++ {
		history = appendHistory(history, i, 4)
	}
	if len(history) != 4 {
		t.Fatalf("len(history) = %d, want 4", len(history))
	}
	want := []byte{6, 7, 8, 9}
	for i, b := range history {
		if b != want[i] {
			t.Errorf("history[%d] = %d, want %d", i, b, want[i])
		}
	}
}
