package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rngkiosk/internal/analysis"
	"rngkiosk/internal/logging"
	"rngkiosk/internal/metrics"
	"rngkiosk/internal/pipeline"
	"rngkiosk/internal/source"
	"rngkiosk/internal/store"
)

func newTestPipelineForHandler(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	dir := t.TempDir()

	logger, err := logging.New(&logging.Config{Level: logging.LevelDebug, Format: logging.FormatText, Output: "stderr"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	audit, err := logging.NewAuditLogger(&logging.AuditLoggerConfig{FilePath: filepath.Join(dir, "audit.log"), Component: "test"})
	if err != nil {
		t.Fatalf("new audit logger: %v", err)
	}
	st, err := store.Open(store.StoreConfig{HistoryLength: 32})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	met := metrics.NewKioskMetrics(metrics.NewRegistry("test", ""))

	return pipeline.New(pipeline.Deps{
		Source:   source.NewFakeSource(1, 64),
		Store:    st,
		Metrics:  met,
		Logger:   logger,
		Audit:    audit,
		Notifier: pipeline.NoOpNotifier{},
	}, pipeline.Settings{
		WindowSizes:      []int{32, 64},
		AnalysisInterval: 20 * time.Millisecond,
		Detector:         analysis.DefaultDetectorConfig(),
		Bias:             0,
	})
}

func TestSettingsHandlerRejectsNonPost(t *testing.T) {
	p := newTestPipelineForHandler(t)
	logger, _ := logging.New(&logging.Config{Level: logging.LevelDebug, Format: logging.FormatText, Output: "stderr"})

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	rec := httptest.NewRecorder()
	settingsHandler(p, logger)(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestSettingsHandlerForwardsPartialPayload(t *testing.T) {
	p := newTestPipelineForHandler(t)
	logger, _ := logging.New(&logging.Config{Level: logging.LevelDebug, Format: logging.FormatText, Output: "stderr"})

	body := strings.NewReader(`{"window_sizes":[16]}`)
	req := httptest.NewRequest(http.MethodPost, "/settings", body)
	rec := httptest.NewRecorder()
	settingsHandler(p, logger)(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
}

func TestSettingsHandlerRejectsMalformedBody(t *testing.T) {
	p := newTestPipelineForHandler(t)
	logger, _ := logging.New(&logging.Config{Level: logging.LevelDebug, Format: logging.FormatText, Output: "stderr"})

	req := httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	settingsHandler(p, logger)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
