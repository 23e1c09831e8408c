// Package pipeline wires the Bit Source, the rolling-window test battery,
// and the CALM/EVENT/RECOVER detector into two long-running goroutines: a
// Producer that reads and expands entropy chunks, and an Analyser that
// scores them and emits AnalysisSnapshots.
package pipeline

import "fmt"

// ConfigError wraps a failure to apply a configuration value, whether from
// the initial load or a hot-reload delivered through the settings queue.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("pipeline: config %s: %v", e.Field, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// PersistError wraps a failure in the metrics store: a CSV append, a
// SQLite insert, or a bit snapshot write. Persist failures never stop the
// pipeline; they are logged and counted.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string { return fmt.Sprintf("pipeline: persist %s: %v", e.Op, e.Err) }
func (e *PersistError) Unwrap() error { return e.Err }

// ExportError wraps a failure to export snapshots or history to removable
// media.
type ExportError struct {
	Dest string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("pipeline: export to %s: %v", e.Dest, e.Err)
}
func (e *ExportError) Unwrap() error { return e.Err }
