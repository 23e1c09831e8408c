package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Export copies the CSV log (if present) and the most recent snapshotCount
// bit-snapshot files from snapshotDir into a fresh timestamped directory
// under mountPath, and returns that directory's path. This is the backing
// implementation for the "export to USB" CLI subcommand.
func Export(mountPath, snapshotDir, csvPath string, snapshotCount int, timestampMs int64) (string, error) {
	stamp := time.UnixMilli(timestampMs).UTC().Format("20060102_150405Z")
	destDir := filepath.Join(mountPath, fmt.Sprintf("pi_rng_export_%s", stamp))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	if csvPath != "" {
		if err := copyFileIfExists(csvPath, filepath.Join(destDir, filepath.Base(csvPath))); err != nil {
			return "", fmt.Errorf("export csv log: %w", err)
		}
	}

	if snapshotCount > 0 {
		snapshotsDir := filepath.Join(destDir, "snapshots")
		if err := os.MkdirAll(snapshotsDir, 0755); err != nil {
			return "", fmt.Errorf("create export snapshots directory: %w", err)
		}
		files, err := recentSnapshotFiles(snapshotDir, snapshotCount)
		if err != nil {
			return "", fmt.Errorf("list snapshot files: %w", err)
		}
		for _, f := range files {
			if err := copyFileIfExists(f, filepath.Join(snapshotsDir, filepath.Base(f))); err != nil {
				return "", fmt.Errorf("export snapshot %s: %w", f, err)
			}
		}
	}

	return destDir, nil
}

func recentSnapshotFiles(snapshotDir string, count int) ([]string, error) {
	entries, err := os.ReadDir(snapshotDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if len(names) > count {
		names = names[len(names)-count:]
	}

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(snapshotDir, n)
	}
	return paths, nil
}

func copyFileIfExists(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
