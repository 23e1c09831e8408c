// Command rngkiosk-gui is the kiosk's on-screen dashboard: it polls a
// running rngkiosk daemon's status HTTP server for the latest
// AnalysisSnapshot and reads the durable SQLite mirror directly for
// sparkline history and the event log, then renders all three with Gio.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"gioui.org/app"
	"gioui.org/op"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"rngkiosk/cmd/rngkiosk-gui/internal/theme"
	"rngkiosk/cmd/rngkiosk-gui/internal/ui"
	"rngkiosk/internal/analysis"
	"rngkiosk/internal/config"
	"rngkiosk/internal/store"
)

const pollInterval = 1 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	healthAddr := flag.String("health-addr", "127.0.0.1:9090", "address of the rngkiosk daemon's status server")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("rngkiosk-gui: load config: %v (history and events will be unavailable)", err)
		cfg = config.DefaultConfig()
	}

	var mirror *store.SQLiteMirror
	if cfg.Storage.HistoryDBPath != "" {
		m, err := store.OpenSQLiteMirror(cfg.Storage.HistoryDBPath)
		if err != nil {
			log.Printf("rngkiosk-gui: open history db: %v (history and events will be unavailable)", err)
		} else {
			mirror = m
		}
	}

	dashboard := ui.NewDashboard(theme.NewTheme(material.NewTheme()))

	go func() {
		w := new(app.Window)
		w.Option(app.Title("RNG Kiosk"))
		w.Option(app.Size(unit.Dp(1024), unit.Dp(768)))

		go pollStatus(w, dashboard, *healthAddr, mirror)

		if err := loop(w, dashboard); err != nil {
			log.Fatal(err)
		}
		os.Exit(0)
	}()
	app.Main()
}

func loop(w *app.Window, dashboard *ui.Dashboard) error {
	var ops op.Ops
	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			dashboard.Layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}

// pollStatus fetches the daemon's latest snapshot over HTTP and its
// persisted history/events straight from the SQLite mirror, on a fixed
// interval, pushing every update into the dashboard and waking the window.
func pollStatus(w *app.Window, dashboard *ui.Dashboard, healthAddr string, mirror *store.SQLiteMirror) {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		state := ui.State{}

		snap, err := fetchSnapshot(client, healthAddr)
		if err != nil {
			state.ConnectError = err.Error()
		} else {
			state.Snapshot = snap
			state.Connected = true
		}

		if mirror != nil {
			if recs, err := mirror.RecentMetricRecords(300); err == nil {
				state.History = recs
			}
			if events, err := mirror.RecentEvents(20); err == nil {
				state.Events = events
			}
		}

		dashboard.Update(state)
		w.Invalidate()
	}
}

func fetchSnapshot(client *http.Client, healthAddr string) (analysis.AnalysisSnapshot, error) {
	resp, err := client.Get(fmt.Sprintf("http://%s/snapshot", healthAddr))
	if err != nil {
		return analysis.AnalysisSnapshot{}, err
	}
	defer resp.Body.Close()

	var snap analysis.AnalysisSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return analysis.AnalysisSnapshot{}, err
	}
	return snap, nil
}
