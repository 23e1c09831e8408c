package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteBitSnapshot persists the raw bit stream observed at an EVENT
// transition to snapshot_dir/snapshot_<timestamp_ms>.bits, as an
// unsigned-byte sequence with one byte (0 or 1) per bit, matching the
// original kiosk's capture format. It returns the written path.
func WriteBitSnapshot(snapshotDir string, timestampMs int64, bits []byte) (string, error) {
	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}

	path := filepath.Join(snapshotDir, fmt.Sprintf("snapshot_%d.bits", timestampMs))
	if err := os.WriteFile(path, bits, 0644); err != nil {
		return "", fmt.Errorf("write bit snapshot: %w", err)
	}
	return path, nil
}
