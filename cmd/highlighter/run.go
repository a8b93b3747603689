package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/kitchenlens/highlighter/internal/bridge"
	"github.com/kitchenlens/highlighter/internal/config"
	"github.com/kitchenlens/highlighter/internal/dispatcher"
	"github.com/kitchenlens/highlighter/internal/effects"
	"github.com/kitchenlens/highlighter/internal/engine"
	"github.com/kitchenlens/highlighter/internal/handlers"
	"github.com/kitchenlens/highlighter/internal/influx"
	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/monitor"
	intotel "github.com/kitchenlens/highlighter/internal/otel"
	"github.com/kitchenlens/highlighter/internal/procedure"
	"github.com/kitchenlens/highlighter/internal/registry"
	"github.com/kitchenlens/highlighter/internal/scene"
	"github.com/kitchenlens/highlighter/internal/session"
	"github.com/kitchenlens/highlighter/internal/statusserver"
	"github.com/kitchenlens/highlighter/internal/storage"
	"github.com/kitchenlens/highlighter/internal/timer"
	"github.com/kitchenlens/highlighter/internal/worker"
)

// Scene handles of the fixed collaborator visuals.
const (
	timerPanelHandle = "timer_panel"
	timerTextHandle  = "timer_text"
	videoPopupHandle = "video_popup"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the engine and serve commands on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := newApp(time.Now())
			a.setupLogging(dir)

			if err := a.start(ctx); err != nil {
				a.logger.Error("Startup failed", "error", err)
				a.shutdown()
				return err
			}

			err := a.serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			a.shutdown()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// app owns every long-lived component of one run.
type app struct {
	startedAt time.Time

	slogs   *logging.SlogManager
	logger  logging.Logger
	zlog    zerolog.Logger
	logFile *os.File
	otel    *intotel.Provider

	scene      *scene.MemoryScene
	tracker    *scene.MemoryTracker
	engine     atomic.Pointer[engine.Engine]
	dispatcher *dispatcher.Dispatcher
	backend    storage.Backend
	influx     *influx.Manager
	timer      *timer.Timer
	nav        *procedure.Navigator
	monitor    *monitor.Service
	server     *statusserver.Server

	sessCtx *session.Context
	saveMu  sync.Mutex
}

func newApp(startedAt time.Time) *app {
	a := &app{
		startedAt: startedAt,
		slogs:     logging.NewSlogManager(),
		zlog:      zerolog.Nop(),
	}
	// stdout carries command responses, so early logs go to stderr.
	a.slogs.Setup(os.Stderr, "info", nil)
	a.logger = a.slogs.Logger()
	return a
}

// setupLogging loads the configuration and rebuilds the logger on top of the
// log file, the OTel provider and Graylog.
func (a *app) setupLogging(configDir string) {
	if err := config.Load(configDir); err != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", err)
		config.LoadDefaults()
	} else {
		a.logger.Info("Loaded config", "dir", configDir)
	}

	level := viper.GetString("logLevel")
	logPath := logging.LogFilePath(viper.GetString("logsDir"), appName, a.startedAt)

	// fileWriter stays a nil interface when the file cannot be opened.
	var fileWriter io.Writer
	logWriter := io.Writer(os.Stderr)
	if f, err := logging.OpenLogFile(logPath); err != nil {
		a.logger.Error("Failed to create/open log file!", "error", err, "path", logPath)
	} else {
		a.logFile = f
		fileWriter, logWriter = f, f
		a.logger.Info("Begin logging in logs directory", "path", logPath)
	}

	if viper.GetString("logBackend") == "zerolog" {
		rep := logging.NewZerologConsole(os.Stderr, fileWriter, level)
		a.logger = rep
		a.zlog = rep.Zerolog()
		a.logger.Info("Logging to file", "path", logPath, "backend", "zerolog")
		return
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		p, err := intotel.New(intotel.Config{
			Enabled:        true,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: version,
			SessionID:      a.startedAt.Format("20060102_150405"),
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      fileWriter,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			a.logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			a.otel = p
			a.logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var extra []slog.Handler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGraylogWriter(gl.Address)
		if err != nil {
			a.logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			extra = append(extra, logging.NewGelfHandler(w, gl.Level, gl.Facility))
		}
	}

	a.slogs.SetContextProvider(a.logAttrs)
	a.slogs.Setup(logWriter, level, a.otelLogProvider(), extra...)
	a.logger = a.slogs.Logger()
	a.zlog = zerolog.New(logWriter).With().Timestamp().Logger()
	a.logger.Info("Logging to file", "path", logPath)
}

func (a *app) otelLogProvider() *sdklog.LoggerProvider {
	if a.otel == nil {
		return nil
	}
	return a.otel.LoggerProvider()
}

// logAttrs feeds engine counters into every log record once the engine exists.
func (a *app) logAttrs() []slog.Attr {
	if e := a.engine.Load(); e != nil {
		return e.LogAttrs()
	}
	return nil
}

// start builds the engine and its collaborators.
func (a *app) start(ctx context.Context) error {
	specs, err := loadCatalogue(viper.GetString("catalogueFile"))
	if err != nil {
		return fmt.Errorf("loading catalogue: %w", err)
	}

	a.scene = scene.NewMemoryScene()
	reg, err := registry.New(specs, a.scene.Resolve)
	if err != nil {
		return err
	}
	sess := session.New(viper.GetString("sessionName"), len(specs))
	a.sessCtx = session.NewContext(sess)
	a.logger.Info("Catalogue loaded", "objects", len(specs), "session", sess.ID)

	if a.dispatcher, err = dispatcher.New(a.logger); err != nil {
		return err
	}

	a.backend = a.newBackend()
	if err := a.backend.StartSession(&sess); err != nil {
		a.logger.Error("Failed to start session in storage backend", "error", err)
	}

	var points worker.PointWriter
	if m := a.connectInflux(ctx); m != nil {
		a.influx = m
		points = m
	}

	journal := worker.NewJournal(worker.Dependencies{
		Dispatcher: a.dispatcher,
		Backend:    a.backend,
		Influx:     points,
		Logger:     a.logger,
	})

	eff := config.GetEffectsConfig()
	a.tracker = scene.NewMemoryTracker()
	sched := effects.NewScheduler(nil)
	eng, err := engine.New(engine.Config{FlashDuration: eff.FlashDuration}, reg, a.tracker,
		engine.WithLogger(a.logger),
		engine.WithBeam(func() (scene.Beam, error) { return &scene.MemoryBeam{}, nil }),
		engine.WithJournal(journal),
		engine.WithSession(sess),
		engine.WithScheduler(sched),
		engine.OnComplete(func(total int) {
			a.logger.Info("All objects registered", "total", total)
		}),
	)
	if err != nil {
		return err
	}
	a.engine.Store(eng)
	if err := eng.Start(ctx); err != nil {
		return err
	}

	timerCfg := config.GetTimerConfig()
	a.timer, err = timer.New(timerCfg, timer.Dependencies{
		Scheduler:     sched,
		Panel:         a.scene.Visual(timerPanelHandle),
		Display:       scene.NewMemoryText(timerTextHandle),
		Audio:         &scene.MemoryAudio{},
		Logger:        a.logger,
		BlinkInterval: eff.BlinkInterval,
	})
	if err != nil {
		return err
	}

	a.nav = procedure.NewNavigator(eng, procedure.NewMemoryPopup(a.scene.Visual(videoPopupHandle)), a.logger)
	a.loadProcedure(ctx)

	handlers.NewService(handlers.Dependencies{
		Engine:  eng,
		Tracker: a.tracker,
		Timer:   a.timer,
		Steps:   a.nav,
		Logger:  a.logger,
		Version: []string{version, date},
		Keyword: timerCfg.Keyword,
		Save:    a.save,
	}).RegisterHandlers(a.dispatcher)

	status := config.GetStatusConfig()
	a.monitor = monitor.NewService(monitor.Dependencies{
		Engine:   eng,
		Timer:    a.timer,
		Steps:    a.nav,
		Influx:   points,
		Logger:   a.logger,
		Path:     status.File,
		Interval: status.FileInterval,
	})
	if status.File != "" || points != nil {
		if err := a.monitor.Start(); err != nil {
			a.logger.Warn("Failed to start status monitor", "error", err)
		}
	}

	if status.Address != "" {
		srv, err := statusserver.New(statusserver.Dependencies{Reporter: a.monitor, Logger: a.logger})
		if err != nil {
			return err
		}
		addr, err := srv.Start(status.Address)
		if err != nil {
			a.logger.Error("Failed to start status server", "error", err, "address", status.Address)
		} else {
			a.server = srv
			a.logger.Info("Status server listening", "address", addr)
		}
	}

	a.logger.Info("Highlighter ready", "version", version, "commands", len(a.dispatcher.Commands()))
	return nil
}

func (a *app) connectInflux(ctx context.Context) *influx.Manager {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return nil
	}
	backup := filepath.Join(viper.GetString("logsDir"),
		fmt.Sprintf("influx_backup_%s.lp.gz", a.startedAt.Format("20060102_150405")))
	m := influx.NewManager(a.zlog, backup)
	if err := m.Connect(ctx, cfg); err != nil {
		a.logger.Warn("InfluxDB disabled", "error", err)
		return nil
	}
	return m
}

func (a *app) loadProcedure(ctx context.Context) {
	src, err := procedure.NewSource(config.GetProcedureConfig())
	if err != nil {
		a.logger.Warn("No procedure source", "error", err)
		return
	}
	if err := a.nav.Load(ctx, src); err != nil {
		a.logger.Warn("Procedure not loaded", "error", err)
		return
	}
	if pos, err := a.nav.Current(); err == nil {
		a.logger.Info("Procedure loaded", "recipe", pos.RecipeID, "steps", pos.Total)
	}
}

// serve answers commands until in is exhausted or ctx is cancelled.
func (a *app) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	b := bridge.New(a.dispatcher, a.logger)
	b.MaxResponse = config.GetBridgeConfig().MaxResponse
	return b.Serve(ctx, in, out)
}

// save ends the session in the storage backend. Later calls are no-ops.
func (a *app) save() error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	if a.backend == nil || a.sessCtx == nil || a.sessCtx.Ended() {
		return nil
	}
	if err := a.backend.EndSession(); err != nil {
		a.logger.Error("Failed to end session in storage backend", "error", err)
		return err
	}
	a.sessCtx.End()
	a.logger.Info("Session saved", "elapsed", a.sessCtx.Elapsed())

	a.uploadExport()

	if a.otel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otel.Flush(ctx); err != nil {
			a.logger.Warn("Failed to flush OTel data", "error", err)
		}
	}
	return nil
}

// shutdown stops everything start built, in dependency order.
func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("Status server shutdown", "error", err)
		}
	}
	if e := a.engine.Load(); e != nil {
		e.Stop()
	}
	// Drains the journal queues before the session is closed.
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if err := a.save(); err != nil {
		a.logger.Error("Final save failed", "error", err)
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("Failed to close storage backend", "error", err)
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.logger.Warn("Failed to close InfluxDB", "error", err)
		}
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			a.logger.Warn("OTel shutdown", "error", err)
		}
	}
	_ = a.slogs.Flush(ctx)

	a.logger.Info("Shutdown complete")
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
