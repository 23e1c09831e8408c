// Package store implements the Metrics Store: a bounded in-memory ring of
// recent MetricRecords, an append-only event log, an optional CSV mirror,
// a durable SQLite mirror, and snapshot-file persistence on EVENT
// transitions.
package store

import "rngkiosk/internal/analysis"

// MetricRecord is the analysis package's record type, re-exported so
// store's callers don't need to import analysis directly for this shape.
type MetricRecord = analysis.MetricRecord

// EventRecord is a durable row describing one detector state transition.
type EventRecord struct {
	ID           int64
	TimestampMs  int64
	State        string
	Reason       string
	GDI          float64
	SnapshotPath string
}

// TestResultRow is one persisted row of the per-test metrics log: either one
// TestResult from a tick's CombinedStats, or, when a tick produced none, a
// single placeholder row carrying only the tick-level fields with blank
// per-test columns.
type TestResultRow struct {
	TimestampMs int64
	Window      int
	Test        string
	ZScore      float64
	PValue      float64
	QValue      float64
	HasTest     bool
	GDI         float64
	State       analysis.DetectorState
	Reason      string
}

// FlattenSnapshot expands an AnalysisSnapshot into the rows its persisted
// metrics log wants: one row per TestResult across every window, in the
// order of snap.Stats.Summaries and of each summary's Results (no sorting is
// done here), or a single blank-test row if the tick produced no results at
// all.
func FlattenSnapshot(snap analysis.AnalysisSnapshot) []TestResultRow {
	var rows []TestResultRow
	for _, summary := range snap.Stats.Summaries {
		for _, r := range summary.Results {
			rows = append(rows, TestResultRow{
				TimestampMs: snap.TimestampMs,
				Window:      r.Window,
				Test:        string(r.Name),
				ZScore:      r.ZScore,
				PValue:      r.PValue,
				QValue:      snap.Stats.QValues[r.Key()],
				HasTest:     true,
				GDI:         snap.Stats.GDI,
				State:       snap.State,
				Reason:      snap.Reason,
			})
		}
	}
	if len(rows) == 0 {
		rows = append(rows, TestResultRow{
			TimestampMs: snap.TimestampMs,
			GDI:         snap.Stats.GDI,
			State:       snap.State,
			Reason:      snap.Reason,
		})
	}
	return rows
}

func analysisState(s string) analysis.DetectorState {
	return analysis.DetectorState(s)
}
