// Package app wires all overhear subsystems into a running daemon.
//
// New creates and connects the subsystems (archive, recovery controller,
// session manager, dispatcher, capture pipeline, control surface), Run serves
// the control and metrics listeners until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithArchiver,
// WithProviderFactory, WithMetrics). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/cadewatson/overhear/internal/archive"
	"github.com/cadewatson/overhear/internal/capture"
	"github.com/cadewatson/overhear/internal/config"
	"github.com/cadewatson/overhear/internal/control"
	"github.com/cadewatson/overhear/internal/dispatch"
	"github.com/cadewatson/overhear/internal/health"
	"github.com/cadewatson/overhear/internal/observe"
	"github.com/cadewatson/overhear/internal/resilience"
	"github.com/cadewatson/overhear/internal/session"
	"github.com/cadewatson/overhear/pkg/audio"
	"github.com/cadewatson/overhear/pkg/vad"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	metrics    *observe.Metrics
	archiver   archive.Archiver
	recovery   *resilience.Controller
	manager    *session.Manager
	dispatcher *dispatch.Dispatcher
	control    *control.Server
	runner     *capture.Runner

	factory session.ProviderFactory

	mu         sync.Mutex
	proc       *vad.Processor // nil unless capture is running with VAD
	capturing  bool
	hasSession bool

	// turnStart is the unix-nano start time of the most recent send; the
	// archive callback uses it to approximate turn latency.
	turnStart atomic.Int64

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithArchiver injects an archiver instead of creating one from config.
func WithArchiver(a archive.Archiver) Option {
	return func(app *App) { app.archiver = a }
}

// WithProviderFactory injects a provider factory for the session manager.
func WithProviderFactory(f session.ProviderFactory) Option {
	return func(app *App) { app.factory = f }
}

// WithMetrics injects a Metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(app *App) { app.metrics = m }
}

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Transcript archive ────────────────────────────────────────────
	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	// ── 2. Control surface ───────────────────────────────────────────────
	a.control = control.NewServer(a)

	// ── 3. Recovery controller ───────────────────────────────────────────
	rec, err := resilience.NewController(resilience.ControllerConfig{
		Publish: a.control.PublishStatus,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init recovery: %w", err)
	}
	a.recovery = rec

	// ── 4. Session manager ───────────────────────────────────────────────
	a.manager = session.NewManager(session.ManagerConfig{
		GeminiAPIKey:     cfg.Backends.GeminiAPIKey,
		GroqAPIKey:       cfg.Backends.GroqAPIKey,
		KindRules:        cfg.Backends.KindRules(),
		MaxTurns:         cfg.Session.MaxTurns,
		MaxImageTurns:    cfg.Session.MaxImageTurns,
		Generation:       cfg.Generation.ToLLM(),
		CapRules:         cfg.Generation.CapRules,
		EnableSearch:     cfg.Backends.SearchGrounding,
		SnapshotInterval: cfg.Session.SnapshotInterval(),
		OnAnswer:         a.publishAnswer,
		OnStatus:         a.control.PublishStatus,
		OnTurn:           a.archiveTurn,
		OnFailure:        a.recordFailure,
		Recovery:         a.recovery,
		Factory:          a.factory,
	})

	// ── 5. Speech dispatcher ─────────────────────────────────────────────
	disp, err := dispatch.NewDispatcher(dispatch.Config{
		Sender:             dispatch.SenderFunc(a.sendUtterance),
		FlushDelay:         cfg.Dispatch.FlushDelay(),
		DuplicateThreshold: cfg.Dispatch.DuplicateThreshold,
		Classify:           a.classify,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init dispatcher: %w", err)
	}
	a.dispatcher = disp

	// ── 6. Capture runner ────────────────────────────────────────────────
	framer, err := audio.NewFramer(audio.FramerConfig{
		SampleRate:    cfg.Audio.SampleRate,
		Channels:      cfg.Audio.Channels,
		FrameDuration: cfg.Audio.FrameDuration(),
		MaxBacklog:    cfg.Audio.MaxBacklog(),
	})
	if err != nil {
		return nil, fmt.Errorf("app: init framer: %w", err)
	}
	runner, err := capture.NewRunner(capture.Config{
		Command: cfg.Audio.CaptureCommand,
		Framer:  framer,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}
	a.runner = runner

	return a, nil
}

// initArchive sets up the Postgres archive or falls back to a no-op.
func (a *App) initArchive(ctx context.Context) error {
	if a.archiver != nil {
		return nil // injected
	}
	dsn := a.cfg.Archive.PostgresDSN
	if dsn == "" {
		a.archiver = archive.Noop{}
		slog.Info("app: no archive DSN configured, turns are not persisted")
		return nil
	}
	pg, err := archive.NewPostgres(ctx, dsn)
	if err != nil {
		return err
	}
	a.archiver = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	return nil
}

// Run serves the control and metrics listeners and blocks until ctx is
// cancelled or a listener fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	ctlMux := http.NewServeMux()
	a.control.Register(ctlMux)
	g.Go(func() error {
		return serve(ctx, &http.Server{Addr: a.cfg.Server.ControlAddr, Handler: ctlMux}, "control")
	})

	if addr := a.cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		health.New(
			health.Probe{Name: "archive", Check: a.archiver.Ping},
			health.Probe{Name: "capture", Check: a.captureProbe},
		).Register(mux)
		g.Go(func() error {
			return serve(ctx, &http.Server{Addr: addr, Handler: mux}, "metrics")
		})
	}

	slog.Info("overhear running",
		"control_addr", a.cfg.Server.ControlAddr,
		"metrics_addr", a.cfg.Server.MetricsAddr,
	)
	return g.Wait()
}

// captureProbe fails when a started capture subprocess has died underneath us.
func (a *App) captureProbe(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.capturing && !a.runner.Running() {
		return errors.New("capture subprocess exited unexpectedly")
	}
	return nil
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: %s listener: %w", name, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("app: listener shutdown incomplete", "listener", name, "error", err)
		}
		return nil
	}
}

// Shutdown tears down capture, dispatcher, session and archive in order.
// Safe to call repeatedly.
func (a *App) Shutdown() {
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down")
		a.StopCapture()
		a.dispatcher.Close()
		a.recovery.Cancel()
		a.CloseSession()
		for i, closer := range a.closers {
			if err := closer(); err != nil {
				slog.Warn("app: closer failed", "index", i, "error", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
}
