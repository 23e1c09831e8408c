//go:build linux
// +build linux

package pipeline

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// DBusNotifier sends desktop notifications via the freedesktop.org
// Notifications spec (org.freedesktop.Notifications.Notify) over the
// session bus.
type DBusNotifier struct {
	conn *dbus.Conn
}

// NewDBusNotifier connects to the session bus. The connection is kept open
// for the life of the pipeline; callers should fall back to NoOpNotifier if
// this returns an error (e.g. no session bus, such as a headless kiosk).
func NewDBusNotifier() (*DBusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &DBusNotifier{conn: conn}, nil
}

// Notify sends a transient notification describing the detector's new
// state, reason, and current GDI.
func (n *DBusNotifier) Notify(state, reason string, gdi float64) error {
	obj := n.conn.Object("org.freedesktop.Notifications", dbus.ObjectPath("/org/freedesktop/Notifications"))
	summary := fmt.Sprintf("RNG kiosk: %s", state)
	body := fmt.Sprintf("%s (GDI=%.2f)", reason, gdi)
	call := obj.Call("org.freedesktop.Notifications.Notify", 0,
		"rngkiosk",       // app_name
		uint32(0),        // replaces_id
		"",               // app_icon
		summary,          // summary
		body,             // body
		[]string{},       // actions
		map[string]dbus.Variant{}, // hints
		int32(5000),      // expire_timeout (ms)
	)
	return call.Err
}

// Close releases the session bus connection.
func (n *DBusNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}
