package store

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rngkiosk/internal/analysis"
)

func TestFlattenSnapshotOneRowPerTestResult(t *testing.T) {
	snap := analysis.AnalysisSnapshot{
		TimestampMs: 10,
		Stats: analysis.CombinedStats{
			GDI:     4.0,
			QValues: map[string]float64{"monobit@256": 0.01, "runs@256": 0.5},
			Summaries: []analysis.WindowSummary{{
				Window: 256,
				Results: []analysis.TestResult{
					{Name: analysis.TestMonobit, Window: 256, PValue: 0.001, ZScore: 3.1},
					{Name: analysis.TestRuns, Window: 256, PValue: 0.4, ZScore: 0.2},
				},
			}},
		},
		State:  analysis.StateEvent,
		Reason: "gdi_threshold",
	}

	rows := FlattenSnapshot(snap)
	if len(rows) != 2 {
		t.Fatalf("FlattenSnapshot() returned %d rows, want 2", len(rows))
	}
	if !rows[0].HasTest || rows[0].Test != string(analysis.TestMonobit) || rows[0].QValue != 0.01 {
		t.Errorf("rows[0] = %+v", rows[0])
	}
}

func TestFlattenSnapshotBlankRowWithNoResults(t *testing.T) {
	snap := analysis.AnalysisSnapshot{
		TimestampMs: 10,
		Stats:       analysis.CombinedStats{GDI: 0.2},
		State:       analysis.StateCalm,
		Reason:      "calm",
	}

	rows := FlattenSnapshot(snap)
	if len(rows) != 1 {
		t.Fatalf("FlattenSnapshot() returned %d rows, want 1", len(rows))
	}
	if rows[0].HasTest {
		t.Error("blank row should have HasTest == false")
	}
}

func TestRingWrapsAtCapacity(t *testing.T) {
	r := NewRing(3)
	for i := int64(1); i <= 5; i++ {
		r.Add(MetricRecord{TimestampMs: i})
	}
	got := r.Snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	want := []int64{3, 4, 5}
	for i, rec := range got {
		if rec.TimestampMs != want[i] {
			t.Errorf("index %d: got %d, want %d", i, rec.TimestampMs, want[i])
		}
	}
}

func TestRingBelowCapacity(t *testing.T) {
	r := NewRing(10)
	r.Add(MetricRecord{TimestampMs: 1})
	r.Add(MetricRecord{TimestampMs: 2})
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestCSVWriterCreatesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.csv")

	w, err := OpenCSVWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(TestResultRow{TimestampMs: 1, GDI: 0.5, State: analysis.StateCalm, Reason: "calm"}); err != nil {
		t.Fatal(err)
	}
	w.Close()

	w2, err := OpenCSVWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Close()
	if err := w2.Append(TestResultRow{
		TimestampMs: 2, Window: 256, Test: "monobit", ZScore: 2.1, PValue: 0.02, QValue: 0.04, HasTest: true,
		GDI: 1.5, State: analysis.StateEvent, Reason: "gdi_threshold",
	}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), strings.Join(csvHeader, ",")); n != 1 {
		t.Errorf("header written %d times, want 1", n)
	}
}

func TestMetricsStoreRecordSnapshotUpdatesRing(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(StoreConfig{
		HistoryLength: 10,
		CSVPath:       filepath.Join(dir, "metrics.csv"),
		HistoryDBPath: filepath.Join(dir, "history.db"),
		SnapshotDir:   filepath.Join(dir, "snapshots"),
		SnapshotBits:  16,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	snap := analysis.AnalysisSnapshot{
		TimestampMs: 1000,
		Stats:       analysis.CombinedStats{GDI: 1.2},
		State:       analysis.StateCalm,
		Reason:      "calm",
	}
	if err := s.RecordSnapshot(snap); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}

	hist := s.History()
	if len(hist) != 1 || hist[0].GDI != 1.2 {
		t.Errorf("History() = %+v", hist)
	}
}

func TestMetricsStoreRecordEventWritesSnapshotFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(StoreConfig{
		HistoryLength: 10,
		HistoryDBPath: filepath.Join(dir, "history.db"),
		SnapshotDir:   filepath.Join(dir, "snapshots"),
		SnapshotBits:  16,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	snap := analysis.AnalysisSnapshot{
		TimestampMs: 2000,
		Stats:       analysis.CombinedStats{GDI: 5.0},
		State:       analysis.StateEvent,
		Reason:      "gdi_threshold",
	}
	bits := []byte{1, 0, 1, 1, 0, 0, 1, 0}
	if err := s.RecordEvent(snap, bits); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	events, err := s.RecentEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].SnapshotPath == "" {
		t.Error("expected a snapshot path to be recorded")
	}
}

func TestExportCopiesCSVAndSnapshots(t *testing.T) {
	dir := t.TempDir()
	snapDir := filepath.Join(dir, "snapshots")
	csvPath := filepath.Join(dir, "metrics.csv")
	mountDir := filepath.Join(dir, "usb")

	w, err := OpenCSVWriter(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	w.Append(TestResultRow{TimestampMs: 1})
	w.Close()

	if _, err := WriteBitSnapshot(snapDir, 111, []byte{1, 0, 1, 0}); err != nil {
		t.Fatal(err)
	}

	dest, err := Export(mountDir, snapDir, csvPath, 5, 999)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if dest == "" {
		t.Error("expected non-empty export destination")
	}

	base := filepath.Base(dest)
	if !strings.HasPrefix(base, "pi_rng_export_") {
		t.Errorf("export dir %q does not match pi_rng_export_<stamp> naming", base)
	}
	if _, err := os.Stat(filepath.Join(dest, "metrics.csv")); err != nil {
		t.Errorf("csv log not copied into export dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "snapshots", "snapshot_111.bits")); err != nil {
		t.Errorf("snapshot file not copied into export snapshots/ subdir: %v", err)
	}
}

func TestWriteBitSnapshotWritesOneBytePerBit(t *testing.T) {
	dir := t.TempDir()
	bits := []byte{1, 0, 1, 1, 0, 0, 1, 0}

	path, err := WriteBitSnapshot(dir, 5, bits)
	if err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, bits) {
		t.Errorf("WriteBitSnapshot wrote %v, want raw unpacked bits %v", got, bits)
	}
}
