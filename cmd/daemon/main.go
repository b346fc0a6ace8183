package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/genricoloni/inkframe/internal/app"
	"github.com/genricoloni/inkframe/internal/config"
	"github.com/genricoloni/inkframe/internal/daemon"
	"github.com/genricoloni/inkframe/internal/display"
	"github.com/genricoloni/inkframe/internal/engine"
	"github.com/genricoloni/inkframe/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// AppOptions is the dependency graph of the frame daemon
var AppOptions = fx.Options(
	// Logger configuration
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log}
	}),

	// Provide dependencies
	fx.Provide(
		newLogger,
		config.NewAppConfig,
		newDaemon,
		newHTTPServer,
	),
	app.Core,

	// Lifecycle hooks
	fx.Invoke(registerHooks),
)

func main() {
	fxApp := fx.New(AppOptions)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start the application; a panel that fails to initialize is fatal
	if err := fxApp.Start(ctx); err != nil {
		os.Exit(1)
	}

	// Wait for interrupt signal
	<-ctx.Done()

	// Stop the application gracefully
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		os.Exit(1)
	}
}

// newLogger creates a new zap logger instance from LOG_LEVEL and LOG_FILE_PATH
func newLogger() (*zap.Logger, error) {
	_ = config.LoadEnvFiles()
	return logging.New(logging.Options{
		Level:    os.Getenv("LOG_LEVEL"),
		FilePath: os.Getenv("LOG_FILE_PATH"),
	})
}

// newDaemon creates the request daemon around the engine
func newDaemon(logger *zap.Logger, cfg *config.AppConfig, device *display.Device, eng *engine.Engine) *daemon.Daemon {
	return daemon.New(logger.Named("daemon"), daemon.Options{
		Addr:           cfg.DaemonAddr,
		QueueSize:      cfg.QueueSize,
		RequestTimeout: cfg.RequestTimeout,
		Model:          cfg.DisplayModel,
	}, device.Sink, eng)
}

// newHTTPServer serves /metrics and, with the emulator, the live panel view
func newHTTPServer(cfg *config.AppConfig, device *display.Device) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	if device.View != nil {
		r.Mount("/", device.View)
	}
	return &http.Server{
		Addr:              cfg.EmulatorAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// registerHooks sets up application lifecycle hooks
func registerHooks(lc fx.Lifecycle, logger *zap.Logger, d *daemon.Daemon, srv *http.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := d.Start(ctx); err != nil {
				logger.Error("Failed to start daemon", zap.Error(err))
				return err
			}

			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				logger.Error("Failed to start HTTP server", zap.Error(err))
				return errors.Join(err, d.Stop(ctx))
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server failed", zap.Error(err))
				}
			}()

			logger.Info("Frame daemon started",
				zap.String("daemonAddr", d.Addr().String()),
				zap.String("httpAddr", ln.Addr().String()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			return errors.Join(srv.Shutdown(ctx), d.Stop(ctx))
		},
	})
}
