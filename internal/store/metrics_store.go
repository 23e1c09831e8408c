package store

import (
	"fmt"

	"rngkiosk/internal/analysis"
)

// MetricsStore is the Metrics Store component: a bounded in-memory ring of
// recent MetricRecords (the fast path the UI reads), an optional CSV
// mirror, a durable SQLite mirror, and snapshot-file persistence for
// EVENT-transition bit captures. All writes originate from the analyser
// goroutine; reads (UI, CLI export) may come from any goroutine.
type MetricsStore struct {
	ring         *Ring
	csv          *CSVWriter
	mirror       *SQLiteMirror
	snapshotDir  string
	snapshotBits int
}

// StoreConfig bundles MetricsStore's construction parameters.
type StoreConfig struct {
	HistoryLength int
	CSVPath       string // empty disables CSV logging
	HistoryDBPath string // empty disables the SQLite mirror
	SnapshotDir   string
	SnapshotBits  int // trailing-bit count; 0 disables bit-snapshot persistence
}

// Open builds a MetricsStore per cfg. CSV logging and the SQLite mirror are
// each optional; the in-memory ring is always present.
func Open(cfg StoreConfig) (*MetricsStore, error) {
	s := &MetricsStore{
		ring:         NewRing(cfg.HistoryLength),
		snapshotDir:  cfg.SnapshotDir,
		snapshotBits: cfg.SnapshotBits,
	}

	if cfg.CSVPath != "" {
		w, err := OpenCSVWriter(cfg.CSVPath)
		if err != nil {
			return nil, err
		}
		s.csv = w
	}

	if cfg.HistoryDBPath != "" {
		m, err := OpenSQLiteMirror(cfg.HistoryDBPath)
		if err != nil {
			if s.csv != nil {
				s.csv.Close()
			}
			return nil, err
		}
		s.mirror = m
	}

	return s, nil
}

// Close releases the CSV and SQLite handles. The in-memory ring needs no
// cleanup.
func (s *MetricsStore) Close() error {
	var firstErr error
	if s.csv != nil {
		if err := s.csv.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RecordSnapshot appends the snapshot's MetricRecord to the ring (the path
// the live UI depends on), and the snapshot's per-TestResult rows to the
// CSV mirror (if enabled) and the SQLite mirror (if enabled). CSV and
// SQLite errors are returned but do not prevent the ring append.
func (s *MetricsStore) RecordSnapshot(snap analysis.AnalysisSnapshot) error {
	s.ring.Add(analysis.MetricRecord{
		TimestampMs: snap.TimestampMs,
		GDI:         snap.Stats.GDI,
		State:       snap.State,
		Reason:      snap.Reason,
	})

	rows := FlattenSnapshot(snap)

	var firstErr error
	if s.csv != nil {
		for _, row := range rows {
			if err := s.csv.Append(row); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("csv mirror: %w", err)
			}
		}
	}
	if s.mirror != nil {
		for _, row := range rows {
			if err := s.mirror.InsertTestResultRow(row); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("sqlite mirror: %w", err)
			}
		}
	}
	return firstErr
}

// RecordEvent persists an EVENT transition: optionally a bit snapshot file
// holding the trailing snapshotBits bits of history (if snapshotBits > 0
// and bits are non-empty), then a durable row referencing it.
func (s *MetricsStore) RecordEvent(snap analysis.AnalysisSnapshot, bits []byte) error {
	var snapshotPath string
	if s.snapshotBits > 0 && len(bits) > 0 && s.snapshotDir != "" {
		trailing := bits
		if len(trailing) > s.snapshotBits {
			trailing = trailing[len(trailing)-s.snapshotBits:]
		}
		path, err := WriteBitSnapshot(s.snapshotDir, snap.TimestampMs, trailing)
		if err != nil {
			return fmt.Errorf("write bit snapshot: %w", err)
		}
		snapshotPath = path
	}

	if s.mirror == nil {
		return nil
	}
	_, err := s.mirror.InsertEvent(EventRecord{
		TimestampMs:  snap.TimestampMs,
		State:        string(snap.State),
		Reason:       snap.Reason,
		GDI:          snap.Stats.GDI,
		SnapshotPath: snapshotPath,
	})
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// History returns every MetricRecord currently held in the in-memory ring,
// oldest first.
func (s *MetricsStore) History() []analysis.MetricRecord {
	return s.ring.Snapshot()
}

// RecentEvents delegates to the SQLite mirror, or returns an empty slice if
// no mirror is configured.
func (s *MetricsStore) RecentEvents(limit int) ([]EventRecord, error) {
	if s.mirror == nil {
		return nil, nil
	}
	return s.mirror.RecentEvents(limit)
}
