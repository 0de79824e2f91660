package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"InvSight/internal/middleware"
	"InvSight/internal/service/ratelimit"
	"InvSight/internal/usecase"
	"InvSight/pkg/config"
	xhttp "InvSight/pkg/http"
	pkgkafka "InvSight/pkg/kafka"
	applogger "InvSight/pkg/logger"
	"InvSight/pkg/queue"
)

// Closer is a named resource released on shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// Deps are the components the App drives. Optional parts are nil when disabled.
type Deps struct {
	Logger       *applogger.Logger
	Handlers     []xhttp.Handler
	Snapshots    *usecase.SnapshotManager
	Dispatcher   *usecase.Dispatcher
	Pipeline     *middleware.ResultPipeline
	Consumer     *pkgkafka.Consumer
	EntityEvents *usecase.KafkaEntityEventsHandler
	Queue        *queue.RedisQueue
	Limiter      *ratelimit.Limiter
	Closers      []Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	deps       Deps
	l          *applogger.Logger
	httpServer *xhttp.Server
	cron       *cron.Cron
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, deps Deps) *App {
	l := deps.Logger
	if l == nil {
		l = applogger.Nop()
	}
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path))
	}
	return &App{
		cfg:        cfg,
		deps:       deps,
		l:          l,
		httpServer: xhttp.NewServer(deps.Handlers, opts...),
		cron:       cron.New(cron.WithSeconds()),
	}
}

// Snapshots exposes the snapshot manager to one-shot commands.
func (a *App) Snapshots() *usecase.SnapshotManager { return a.deps.Snapshots }

// Dispatcher exposes the job dispatcher to one-shot commands.
func (a *App) Dispatcher() *usecase.Dispatcher { return a.deps.Dispatcher }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.cfg.Snapshot.RefreshOnStart {
		if snap, err := a.deps.Snapshots.Refresh(ctx); err != nil {
			// serving continues; requests build the snapshot lazily
			a.l.Warn("initial snapshot refresh failed", applogger.Error(err))
		} else {
			a.l.Info("initial snapshot built",
				applogger.String("version", snap.Version),
				applogger.Int("rows", snap.Frame.Len()))
		}
	}

	if a.deps.Pipeline != nil {
		a.deps.Pipeline.Start(ctx)
	}

	if a.deps.Queue != nil {
		if err := a.deps.Queue.Start(); err != nil {
			return fmt.Errorf("start queue: %w", err)
		}
	}

	if err := a.schedule(ctx); err != nil {
		return err
	}
	a.cron.Start()

	if a.deps.Consumer != nil && a.deps.EntityEvents != nil {
		a.deps.Consumer.WithConsumerHook(pkgkafka.TraceHook())
		a.deps.Consumer.RegisterHandler(a.deps.EntityEvents)
		go func() {
			if err := a.deps.Consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.deps.EntityEvents.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background())
}

// schedule registers the periodic jobs. Specs use the six-field cron format.
func (a *App) schedule(ctx context.Context) error {
	if spec := a.cfg.Snapshot.RefreshCron; spec != "" {
		if _, err := a.cron.AddFunc(spec, func() {
			if err := a.deps.Dispatcher.RequestRefresh(ctx, "cron"); err != nil {
				a.l.Error("scheduled snapshot refresh failed", applogger.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule snapshot refresh %q: %w", spec, err)
		}
		a.l.Info("snapshot refresh scheduled", applogger.String("cron", spec))
	}
	if a.deps.Limiter != nil {
		if _, err := a.cron.AddFunc("0 */5 * * * *", func() {
			if n := a.deps.Limiter.Sweep(); n > 0 {
				a.l.Debug("rate limiter swept", applogger.Int("keys", n))
			}
		}); err != nil {
			return fmt.Errorf("schedule limiter sweep: %w", err)
		}
	}
	return nil
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.l.Info("shutting down...")

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	cronCtx := a.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(a.cfg.Server.ShutdownTimeout + time.Second):
		a.l.Warn("cron jobs still running at shutdown")
	}

	stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout+time.Second)
	defer cancel()

	if a.deps.Consumer != nil {
		if err := a.deps.Consumer.Stop(stopCtx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.deps.Queue != nil {
		if err := a.deps.Queue.Stop(stopCtx); err != nil {
			a.l.Warn("queue stop error", applogger.Error(err))
		}
	}
	if a.deps.Pipeline != nil {
		a.deps.Pipeline.Stop()
	}

	a.release()
	a.l.Info("shutdown complete")
	return nil
}

// Close releases infrastructure clients without running the serving loop.
func (a *App) Close() error {
	a.release()
	return nil
}

func (a *App) release() {
	for _, c := range a.deps.Closers {
		if err := c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
		}
	}
}
