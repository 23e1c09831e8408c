// Command rngkiosk runs the entropy-analysis kiosk daemon: it reads raw
// bits from a hardware RNG, a TPM, or a deterministic fake source, scores
// them against a rolling-window randomness test battery, and raises a
// detector EVENT when the stream looks non-random.
//
// Usage:
//
//	rngkiosk run [flags]
//	rngkiosk status [flags]
//	rngkiosk export [flags]
//	rngkiosk migrate-config [flags]
//
// Flags for run:
//
//	-config string
//	    path to config.toml (default ~/.rngkiosk/config.toml)
//	-fake int
//	    force a fake bit source with this seed (0 disables)
//	-inject-bias float
//	    override source.bias for this run (-1 leaves config.toml alone)
//	-log-level string
//	    override log.level for this run
//	-tpm-device string
//	    force source.kind=tpm, pinned to this device path (auto-detected if omitted)
//	-health-addr string
//	    address to serve /healthz, /readyz, and /metrics on
//	-daemonize
//	    detach and run in the background
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"rngkiosk/internal/config"
	"rngkiosk/internal/health"
	"rngkiosk/internal/logging"
	"rngkiosk/internal/metrics"
	"rngkiosk/internal/pipeline"
	"rngkiosk/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		runCmd(nil)
		return
	}

	switch os.Args[1] {
	case "run":
		runCmd(os.Args[2:])
	case "status":
		statusCmd(os.Args[2:])
	case "export":
		exportCmd(os.Args[2:])
	case "migrate-config":
		migrateConfigCmd(os.Args[2:])
	case "-h", "-help", "--help":
		flag.Usage()
	default:
		runCmd(os.Args[1:])
	}
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	fakeSeed := fs.Int64("fake", 0, "force a fake bit source with this seed (0 disables)")
	injectBias := fs.Float64("inject-bias", -1, "override source.bias for this run")
	logLevel := fs.String("log-level", "", "override log.level for this run")
	tpmDevice := fs.String("tpm-device", "", "force source.kind=tpm, pinned to this device path")
	healthAddr := fs.String("health-addr", "127.0.0.1:9090", "address for /healthz, /readyz, and /metrics")
	dropUID := fs.Int("drop-uid", -1, "after opening the bit source, drop privileges to this uid")
	dropGID := fs.Int("drop-gid", -1, "after opening the bit source, drop privileges to this gid")
	daemonize := fs.Bool("daemonize", false, "detach and run in the background")
	fs.Parse(args)

	if *daemonize && os.Getenv("RNGKIOSK_DAEMONIZED") == "" {
		if err := reexecDetached(); err != nil {
			fmt.Fprintf(os.Stderr, "rngkiosk: daemonize: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _, err := config.LoadOrCreate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rngkiosk: load config: %v\n", err)
		os.Exit(1)
	}
	if *fakeSeed != 0 {
		cfg.Source.Kind = "fake"
		cfg.Source.FakeSeed = *fakeSeed
	}
	if *tpmDevice != "" {
		cfg.Source.Kind = "tpm"
		cfg.Source.Primary = *tpmDevice
	}
	if *injectBias >= 0 {
		cfg.Source.Bias = *injectBias
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "rngkiosk: invalid config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "rngkiosk: create directories: %v\n", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	format := logging.FormatText
	if cfg.Log.Format == "json" {
		format = logging.FormatJSON
	}
	logger, err := logging.New(&logging.Config{
		Level:     level,
		Format:    format,
		Output:    "both",
		FilePath:  cfg.Log.Path,
		Component: "rngkiosk",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rngkiosk: create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	auditCfg := logging.DefaultAuditConfig()
	auditLogger, err := logging.NewAuditLogger(auditCfg)
	if err != nil {
		logger.Error("create audit logger failed", "error", err)
		os.Exit(1)
	}
	defer auditLogger.Close()

	crashHandler := logging.DefaultCrashHandler()
	crashHandler.SetVersion("dev")

	registry := metrics.NewRegistry("rngkiosk", "")
	kioskMetrics := metrics.InitMetrics(registry)

	st, err := store.Open(store.StoreConfig{
		HistoryLength: cfg.Windows.HistoryLength,
		CSVPath:       cfg.Storage.LogCSV,
		HistoryDBPath: cfg.Storage.HistoryDBPath,
		SnapshotDir:   cfg.Storage.SnapshotDir,
		SnapshotBits:  cfg.Storage.SnapshotBits,
	})
	if err != nil {
		logger.Error("open metrics store failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	var notifier pipeline.Notifier = pipeline.NoOpNotifier{}
	if cfg.Notify.Enabled {
		if n, err := pipeline.NewDBusNotifier(); err != nil {
			logger.Warn("desktop notifier unavailable, falling back to no-op", "error", err)
		} else {
			notifier = n
		}
	}

	bitSource, err := pipeline.BuildSource(cfg.Source, pipeline.DefaultFailoverHandler(logger, kioskMetrics, auditLogger))
	if err != nil {
		logger.Error("build bit source failed", "error", err)
		os.Exit(1)
	}

	if *dropUID >= 0 && os.Getuid() == 0 {
		gid := *dropGID
		if gid < 0 {
			gid = os.Getgid()
		}
		if err := dropPrivileges(*dropUID, gid); err != nil {
			logger.Error("drop privileges failed", "error", err)
			os.Exit(1)
		}
		logger.Info("dropped privileges", "uid", *dropUID, "gid", gid)
	}
	lockMemory()

	p := pipeline.New(pipeline.Deps{
		Source:   bitSource,
		Store:    st,
		Metrics:  kioskMetrics,
		Logger:   logger,
		Audit:    auditLogger,
		Notifier: notifier,
		Crash:    crashHandler,
	}, pipeline.SettingsFromConfig(cfg))

	checker := health.NewChecker()
	checker.RegisterFunc("snapshot_disk", false, health.DiskSpaceCheck(cfg.Storage.SnapshotDir, 10<<20))
	checker.RegisterFunc("heap", false, health.MemoryCheck(512<<20))
	checker.RegisterFunc("config_file", true, health.FileExistsCheck(config.ConfigPath()))
	checker.RegisterFunc("analyser_tick", true, health.LastTickCheck(p.LastTick, 30*time.Second))

	loaderPath := *configPath
	if loaderPath == "" {
		loaderPath = config.ConfigPath()
	}
	loader := config.NewLoader(loaderPath)
	if _, err := loader.Load(); err != nil {
		logger.Warn("initial config reload check failed", "error", err)
	}
	loader.OnChange(func(newCfg *config.Config) {
		p.UpdateSettings(pipeline.SettingsFromConfig(newCfg))
		if err := auditLogger.LogConfigReload(context.Background(), loaderPath, true, ""); err != nil {
			logger.Debug("audit log config reload failed", "error", err)
		}
		logger.Info("config reloaded", "path", loaderPath)
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}
	defer loader.Close()

	mux := http.NewServeMux()
	mux.Handle("/healthz", checker.HealthHandler())
	mux.Handle("/readyz", checker.ReadinessHandler())
	mux.Handle("/metrics", registry.HTTPHandler())
	mux.HandleFunc("/snapshot", snapshotHandler(p))
	mux.HandleFunc("/settings", settingsHandler(p, logger))
	httpServer := &http.Server{Addr: *healthAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("health/metrics server stopped", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	checker.SetReady(true)

	go drainSnapshots(p, logger)

	if err := auditLogger.LogStartup(context.Background(), "dev", map[string]interface{}{
		"source_kind": cfg.Source.Kind,
	}); err != nil {
		logger.Debug("audit log startup failed", "error", err)
	}
	logger.Info("rngkiosk started", "source_kind", cfg.Source.Kind, "health_addr", *healthAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	checker.SetReady(false)
	if err := auditLogger.LogShutdown(context.Background(), "signal received"); err != nil {
		logger.Debug("audit log shutdown failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	httpServer.Shutdown(shutdownCtx)
	shutdownCancel()

	cancel()
	p.Stop()
	logger.Info("rngkiosk stopped")
}

// snapshotHandler serves the most recently completed AnalysisSnapshot as
// JSON, for the dashboard's live GDI gauge and per-test result table.
func snapshotHandler(p *pipeline.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(p.LastSnapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// settingsHandler accepts a POST body holding a (possibly partial)
// pipeline.SettingsPayload and forwards it verbatim into the pipeline's
// settings queue, the same path config hot-reload already uses.
func settingsHandler(p *pipeline.Pipeline, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var payload pipeline.SettingsPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, fmt.Sprintf("decode settings payload: %v", err), http.StatusBadRequest)
			return
		}

		p.UpdateSettings(payload.ToSettings())
		logger.Info("settings update received over http", "window_sizes", payload.WindowSizes)
		w.WriteHeader(http.StatusAccepted)
	}
}

// drainSnapshots logs detector state transitions so a foreground run
// without a GUI attached still shows activity. Persistence to the metrics
// store already happens inside the pipeline itself.
func drainSnapshots(p *pipeline.Pipeline, logger *logging.Logger) {
	lastState := ""
	for update := range p.Snapshots() {
		state := string(update.Snapshot.State)
		if state != lastState {
			logger.Info("detector state", "state", state, "reason", update.Snapshot.Reason, "gdi", update.Snapshot.Stats.GDI)
			lastState = state
		}
	}
}

// reexecDetached re-runs the current command with the same arguments minus
// -daemonize, detached from the controlling terminal, and exits the parent
// once the child is launched. RNGKIOSK_DAEMONIZED marks the child so it
// doesn't try to detach again.
func reexecDetached() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	args := make([]string, 0, len(os.Args)-1)
	for _, a := range os.Args[1:] {
		if a != "-daemonize" && a != "--daemonize" {
			args = append(args, a)
		}
	}

	cmd := exec.Command(self, args...)
	cmd.Env = append(os.Environ(), "RNGKIOSK_DAEMONIZED=1")
	cmd.SysProcAttr = getDaemonSysProcAttr()
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open devnull: %w", err)
	}
	defer devnull.Close()
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start detached process: %w", err)
	}
	fmt.Printf("rngkiosk daemonized, pid %d\n", cmd.Process.Pid)
	return nil
}

func statusCmd(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	healthAddr := fs.String("health-addr", "127.0.0.1:9090", "address the running daemon's health server listens on")
	fs.Parse(args)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz?full=true", *healthAddr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "rngkiosk: status: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintf(os.Stderr, "rngkiosk: status: decode response: %v\n", err)
		os.Exit(1)
	}
	pretty, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(pretty))
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	dest := fs.String("dest", "", "destination mount path (default storage.export.usb_mount)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rngkiosk: export: load config: %v\n", err)
		os.Exit(1)
	}

	destPath := *dest
	if destPath == "" {
		destPath = cfg.Storage.Export.USBMount
	}
	if destPath == "" {
		fmt.Fprintln(os.Stderr, "rngkiosk: export: no destination configured (set storage.export.usb_mount or pass -dest)")
		os.Exit(1)
	}

	outDir, err := store.Export(destPath, cfg.Storage.SnapshotDir, cfg.Storage.LogCSV, cfg.Storage.Export.SnapshotCount, time.Now().UnixMilli())
	if err != nil {
		fmt.Fprintf(os.Stderr, "rngkiosk: export failed: %v\n", &pipeline.ExportError{Dest: destPath, Err: err})
		os.Exit(1)
	}
	fmt.Printf("exported to %s\n", outDir)
}

func migrateConfigCmd(args []string) {
	fs := flag.NewFlagSet("migrate-config", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	legacyYAML := fs.String("legacy-yaml", "", "legacy YAML config to import into a new config.toml")
	fs.Parse(args)

	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}

	if *legacyYAML != "" {
		result, err := config.MigrateLegacyYAML(*legacyYAML, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rngkiosk: migrate-config: %v\n", err)
			os.Exit(1)
		}
		for _, w := range result.Warnings {
			fmt.Fprintf(os.Stderr, "rngkiosk: migrate-config: warning: %s\n", w)
		}
		fmt.Printf("migrated %s to %s\n", result.FromPath, result.ToPath)
		return
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rngkiosk: migrate-config: %v\n", err)
		os.Exit(1)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "rngkiosk: migrate-config: config has errors after merge: %v\n", err)
		os.Exit(1)
	}
	if err := config.SaveConfig(cfg, path); err != nil {
		fmt.Fprintf(os.Stderr, "rngkiosk: migrate-config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("rewrote %s with every field at its current default or loaded value\n", path)
}
