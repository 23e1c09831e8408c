package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Schema for the kiosk's durable SQLite mirror.
const schema = `
CREATE TABLE IF NOT EXISTS metric_records (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp_ms   INTEGER NOT NULL,
    window         INTEGER,
    test           TEXT,
    z_score        REAL,
    p_value        REAL,
    q_value        REAL,
    gdi            REAL NOT NULL,
    state          TEXT NOT NULL,
    reason         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metric_records_timestamp ON metric_records(timestamp_ms);

CREATE TABLE IF NOT EXISTS events (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp_ms    INTEGER NOT NULL,
    state           TEXT NOT NULL,
    reason          TEXT NOT NULL,
    gdi             REAL NOT NULL,
    snapshot_path   TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp_ms);
`

// SQLiteMirror is the Metrics Store's durable mirror: every MetricRecord
// and EventRecord the in-memory ring drops is still queryable here. It is
// written from the analyser goroutine's own thread; sql.DB pools its own
// connections so no extra locking is needed.
type SQLiteMirror struct {
	db *sql.DB
}

// OpenSQLiteMirror opens or creates the mirror database at path, in WAL
// mode, and applies the schema.
func OpenSQLiteMirror(path string) (*SQLiteMirror, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history db schema: %w", err)
	}

	return &SQLiteMirror{db: db}, nil
}

// Close closes the underlying database connection.
func (m *SQLiteMirror) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// InsertTestResultRow appends one TestResultRow. Per-test columns are
// stored as SQL NULL for a placeholder row (HasTest == false).
func (m *SQLiteMirror) InsertTestResultRow(r TestResultRow) error {
	var window sql.NullInt64
	var test sql.NullString
	var zScore, pValue, qValue sql.NullFloat64
	if r.HasTest {
		window = sql.NullInt64{Int64: int64(r.Window), Valid: true}
		test = sql.NullString{String: r.Test, Valid: true}
		zScore = sql.NullFloat64{Float64: r.ZScore, Valid: true}
		pValue = sql.NullFloat64{Float64: r.PValue, Valid: true}
		qValue = sql.NullFloat64{Float64: r.QValue, Valid: true}
	}

	_, err := m.db.Exec(
		`INSERT INTO metric_records (timestamp_ms, window, test, z_score, p_value, q_value, gdi, state, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TimestampMs, window, test, zScore, pValue, qValue, r.GDI, string(r.State), r.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert metric record: %w", err)
	}
	return nil
}

// InsertEvent appends one EventRecord row and returns its assigned ID.
func (m *SQLiteMirror) InsertEvent(e EventRecord) (int64, error) {
	result, err := m.db.Exec(
		`INSERT INTO events (timestamp_ms, state, reason, gdi, snapshot_path) VALUES (?, ?, ?, ?, ?)`,
		e.TimestampMs, e.State, e.Reason, e.GDI, e.SnapshotPath,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return result.LastInsertId()
}

// RecentMetricRecords returns up to limit of the most recent ticks, oldest
// first, collapsed to one MetricRecord per timestamp_ms regardless of how
// many per-test rows that tick produced.
func (m *SQLiteMirror) RecentMetricRecords(limit int) ([]MetricRecord, error) {
	rows, err := m.db.Query(
		`SELECT DISTINCT timestamp_ms, gdi, state, reason FROM metric_records ORDER BY timestamp_ms DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent metric records: %w", err)
	}
	defer rows.Close()

	var records []MetricRecord
	for rows.Next() {
		var r MetricRecord
		var state string
		if err := rows.Scan(&r.TimestampMs, &r.GDI, &state, &r.Reason); err != nil {
			return nil, fmt.Errorf("scan metric record: %w", err)
		}
		r.State = analysisState(state)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric records: %w", err)
	}

	// Reverse to oldest-first to match the in-memory ring's ordering.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// RecentEvents returns up to limit of the most recent events, newest first.
func (m *SQLiteMirror) RecentEvents(limit int) ([]EventRecord, error) {
	rows, err := m.db.Query(
		`SELECT id, timestamp_ms, state, reason, gdi, snapshot_path FROM events ORDER BY timestamp_ms DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		var snapshotPath sql.NullString
		if err := rows.Scan(&e.ID, &e.TimestampMs, &e.State, &e.Reason, &e.GDI, &snapshotPath); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.SnapshotPath = snapshotPath.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
