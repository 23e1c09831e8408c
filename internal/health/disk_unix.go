//go:build darwin || linux
// +build darwin linux

package health

import "syscall"

// freeBytes returns the number of bytes free on the filesystem containing
// path.
func freeBytes(path string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
