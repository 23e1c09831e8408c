//go:build !linux
// +build !linux

package pipeline

import "errors"

// NewDBusNotifier is unavailable outside Linux; callers fall back to
// NoOpNotifier.
func NewDBusNotifier() (*NoOpNotifier, error) {
	return nil, errors.New("dbus notifier is only available on linux")
}
