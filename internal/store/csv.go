package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

var csvHeader = []string{
	"timestamp_ms", "timestamp_iso", "window", "test",
	"z_score", "p_value", "q_value", "gdi", "state", "reason",
}

// CSVWriter appends TestResultRow rows to a CSV file, writing the header
// once when the file is first created.
type CSVWriter struct {
	f *os.File
	w *csv.Writer
}

// OpenCSVWriter opens path for appending, creating it (with header) if it
// does not exist.
func OpenCSVWriter(path string) (*CSVWriter, error) {
	_, statErr := os.Stat(path)
	needsHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open csv log: %w", err)
	}

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.Flush()
	}

	return &CSVWriter{f: f, w: w}, nil
}

// Append writes one TestResultRow and flushes it to disk. Per-test columns
// (window, test, z_score, p_value, q_value) are left blank for a
// placeholder row (HasTest == false).
func (c *CSVWriter) Append(r TestResultRow) error {
	window, test, zScore, pValue, qValue := "", "", "", "", ""
	if r.HasTest {
		window = strconv.Itoa(r.Window)
		test = r.Test
		zScore = strconv.FormatFloat(r.ZScore, 'f', 6, 64)
		pValue = strconv.FormatFloat(r.PValue, 'g', -1, 64)
		qValue = strconv.FormatFloat(r.QValue, 'g', -1, 64)
	}

	row := []string{
		strconv.FormatInt(r.TimestampMs, 10),
		time.UnixMilli(r.TimestampMs).UTC().Format(time.RFC3339),
		window,
		test,
		zScore,
		pValue,
		qValue,
		strconv.FormatFloat(r.GDI, 'f', 6, 64),
		string(r.State),
		r.Reason,
	}
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	return c.f.Close()
}
