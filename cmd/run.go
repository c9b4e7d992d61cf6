package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"shiftscale/internal/config"
	"shiftscale/internal/controller"
	"shiftscale/internal/database"
	"shiftscale/internal/edit"
	"shiftscale/internal/events"
	"shiftscale/internal/layer"
	"shiftscale/internal/metrics"
	"shiftscale/internal/queue"
)

var (
	runLayers      []string
	runTables      []string
	runSystem      string
	runTarget      string
	runMetricsAddr string
	runAutoSave    bool
	runScreen      []float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive editing session",
	Long: `Open point layers from shapefiles and/or database tables and start an
interactive console session. Type "help" inside the session for commands.

Flags override the SHIFTSCALE_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := applyRunFlags(cmd, &cfg); err != nil {
			return err
		}
		return runSession(cmd.Context(), cfg)
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runLayers, "layer", nil, "shapefile to open (repeatable)")
	runCmd.Flags().StringSliceVar(&runTables, "table", nil, "database point table to open (repeatable)")
	runCmd.Flags().StringVar(&runSystem, "system", "", "working coordinate system of the map (svy21, webmercator)")
	runCmd.Flags().StringVar(&runTarget, "target-system", "", "coordinate system of entered targets (svy21, geodetic, ...)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	runCmd.Flags().BoolVar(&runAutoSave, "autosave", false, "write edited layers back inside every edit")
	runCmd.Flags().Float64SliceVar(&runScreen, "screen", []float64{800, 600}, "virtual screen size in pixels for click")
	rootCmd.AddCommand(runCmd)
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("layer") {
		cfg.Layers = runLayers
	}
	if flags.Changed("table") {
		cfg.OracleTables = runTables
	}
	if flags.Changed("system") {
		s, err := parseSystem(runSystem)
		if err != nil {
			return err
		}
		cfg.System = s
		if !flags.Changed("target-system") {
			cfg.TargetSystem = s
		}
	}
	if flags.Changed("target-system") {
		s, err := parseSystem(runTarget)
		if err != nil {
			return err
		}
		cfg.TargetSystem = s
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = runMetricsAddr
	}
	if flags.Changed("autosave") {
		cfg.AutoSave = runAutoSave
	}
	if !cfg.System.Planar() {
		return fmt.Errorf("map system must be planar, got %s", cfg.System)
	}
	if len(runScreen) != 2 || runScreen[0] <= 0 || runScreen[1] <= 0 {
		return fmt.Errorf("--screen wants two positive numbers, got %v", runScreen)
	}
	return nil
}

// openMap loads every configured layer into a map. The returned close func
// releases the database connection, if one was opened.
func openMap(ctx context.Context, cfg config.Config) (*layer.Map, func(), error) {
	m := layer.NewMap(cfg.System)
	closeFn := func() {}

	for _, path := range cfg.Layers {
		l, err := layer.LoadShapefile(path, cfg.System)
		if err != nil {
			return nil, closeFn, err
		}
		if err := m.Add(l); err != nil {
			return nil, closeFn, err
		}
	}

	if len(cfg.OracleTables) > 0 {
		db, err := database.NewDatabase(database.LoadDatabaseConfig())
		if err != nil {
			return nil, closeFn, err
		}
		closeFn = func() {
			if err := db.Close(); err != nil {
				log.WithError(err).Warn("closing database")
			}
		}
		for _, table := range cfg.OracleTables {
			l, err := db.LoadPointLayer(ctx, table, cfg.System)
			if err != nil {
				return nil, closeFn, err
			}
			if err := m.Add(l); err != nil {
				return nil, closeFn, err
			}
		}
	}

	if len(m.PointLayers()) == 0 {
		log.Warn("no point layers loaded; selections will be ignored")
	}
	return m, closeFn, nil
}

// extentOf is the union of every layer's bounds, padded so edge points are
// clickable.
func extentOf(m *layer.Map) orb.Bound {
	var b orb.Bound
	first := true
	for _, l := range m.Layers() {
		bounded, ok := l.(interface{ Bound() orb.Bound })
		if !ok {
			continue
		}
		lb := bounded.Bound()
		if first {
			b, first = lb, false
			continue
		}
		b = b.Union(lb)
	}
	if first {
		return orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1000, 1000}}
	}
	return b.Pad(1)
}

func serveMetrics(addr string, collector *metrics.Collector) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("metrics server exited")
		}
	}()

	log.WithField("addr", addr).Info("serving Prometheus metrics")
	return srv
}

func runSession(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	m, closeDB, err := openMap(ctx, cfg)
	defer closeDB()
	if err != nil {
		return err
	}

	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	if srv := serveMetrics(cfg.MetricsAddr, collector); srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	worker := queue.NewWorker(64)
	worker.Start(ctx)
	defer worker.Close()

	var opts []edit.Option
	if cfg.AutoSave {
		opts = append(opts, edit.WithSaver(edit.PersistLayer))
	}

	con := newConsole(os.Stdin, os.Stdout)
	defer con.Close()

	vm := controller.NewViewModel(cfg.TargetSystem)
	bus := events.NewBus()
	viewport := layer.Viewport{Extent: extentOf(m), Width: runScreen[0], Height: runScreen[1], System: cfg.System}
	exec := edit.NewExecutor(m, opts...)
	ctrl, err := controller.New(controller.Config{
		Map:       m,
		Scheduler: worker,
		Executor:  exec,
		Bus:       bus,
		Viewport:  viewport,
		Reporter:  con,
		ViewModel: vm,
		Metrics:   collector,
	})
	if err != nil {
		return err
	}

	s := &session{
		ctrl:     ctrl,
		vm:       vm,
		bus:      bus,
		m:        m,
		exec:     exec,
		sched:    worker,
		viewport: viewport,
		out:      con,
	}
	vm.OnChange(func(f controller.Field) {
		if f == controller.FieldPrompt {
			con.SetPrompt(vm.Prompt())
		}
	})

	ctrl.Activate()
	defer ctrl.Deactivate()

	log.WithFields(log.Fields{
		"layers":   len(m.Layers()),
		"system":   cfg.System,
		"target":   cfg.TargetSystem,
		"autosave": cfg.AutoSave,
	}).Info("session started")
	return con.Loop(ctx, s.handle)
}
