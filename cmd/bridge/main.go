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

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/genricoloni/inkframe/internal/app"
	"github.com/genricoloni/inkframe/internal/config"
	"github.com/genricoloni/inkframe/internal/daemon"
	"github.com/genricoloni/inkframe/internal/displaylog"
	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/genricoloni/inkframe/internal/logging"
	"github.com/genricoloni/inkframe/internal/system"
	"github.com/genricoloni/inkframe/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// daemonTimeout bounds one forwarded command when DAEMON_REQUEST_TIMEOUT_SECONDS is unset
const daemonTimeout = 2 * time.Minute

// AppOptions is the dependency graph of the telemetry bridge
var AppOptions = fx.Options(
	// Logger configuration
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log}
	}),

	// Provide dependencies
	fx.Provide(
		newLogger,
		config.NewAppConfig,
		app.NewFs,
		app.NewClock,
		app.NewRecorder,
		newSystemControl,
		newPiSugar,
		newHostSensor,
		newPublisher,
		newListener,
		newMQTTClient,
		newPoller,
		newWatcher,
		newBridge,
		newMetricsServer,
	),

	// Lifecycle hooks
	fx.Invoke(registerHooks),
)

func main() {
	fxApp := fx.New(AppOptions)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := fxApp.Start(ctx); err != nil {
		os.Exit(1)
	}

	// Wait for interrupt signal or a fatal bridge error
	code := 0
	select {
	case <-ctx.Done():
	case sig := <-fxApp.Wait():
		code = sig.ExitCode
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		code = 1
	}
	os.Exit(code)
}

// newLogger creates a new zap logger instance from LOG_LEVEL and LOG_FILE_PATH
func newLogger() (*zap.Logger, error) {
	_ = config.LoadEnvFiles()
	return logging.New(logging.Options{
		Level:    os.Getenv("LOG_LEVEL"),
		FilePath: os.Getenv("LOG_FILE_PATH"),
	})
}

// newSystemControl opens logind, or the command fallback, for the shutdown command
func newSystemControl(lc fx.Lifecycle, logger *zap.Logger) domain.SystemControl {
	ctl, closeFn := system.New(logger.Named("system"))
	lc.Append(fx.StopHook(closeFn))
	return ctl
}

func newPiSugar(logger *zap.Logger, cfg *config.AppConfig) *telemetry.PiSugarSensor {
	return telemetry.NewPiSugarSensor(logger.Named("pisugar"), cfg.Telemetry.PiSugarAddr)
}

func newHostSensor(logger *zap.Logger, cfg *config.AppConfig) *telemetry.HostSensor {
	return telemetry.NewHostSensor(logger.Named("host"), cfg.LocalImageDir)
}

func newPublisher(logger *zap.Logger, cfg *config.AppConfig) *telemetry.Publisher {
	return telemetry.NewPublisher(logger.Named("publisher"), nil, cfg.MQTT.TopicPrefix)
}

func newListener(
	logger *zap.Logger,
	cfg *config.AppConfig,
	fs afero.Fs,
	ctl domain.SystemControl,
	pisugar *telemetry.PiSugarSensor,
) *telemetry.Listener {
	return telemetry.NewListener(
		logger.Named("listener"),
		cfg.MQTT.TopicPrefix,
		cfg.LocalImageDir,
		fs,
		newSendFunc(cfg.DaemonAddr, cfg.RequestTimeout),
		ctl,
		pisugar,
	)
}

// newSendFunc forwards display commands to the frame daemon
func newSendFunc(addr string, timeout time.Duration) telemetry.SendFunc {
	if timeout <= 0 {
		timeout = daemonTimeout
	}
	return func(ctx context.Context, command string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return daemon.Send(ctx, addr, command)
	}
}

// newMQTTClient builds the shared connection. The publisher and the listener
// both refresh their state on every (re)connect.
func newMQTTClient(
	logger *zap.Logger,
	cfg *config.AppConfig,
	publisher *telemetry.Publisher,
	listener *telemetry.Listener,
) mqtt.Client {
	opts := telemetry.NewClientOptions(logger.Named("mqtt"), cfg.MQTT, publisher.OnConnect, listener.OnConnect)
	client := mqtt.NewClient(opts)
	publisher.SetClient(client)
	listener.SetClient(client)
	return client
}

func newPoller(
	logger *zap.Logger,
	cfg *config.AppConfig,
	pisugar *telemetry.PiSugarSensor,
	host *telemetry.HostSensor,
	publisher *telemetry.Publisher,
	recorder *displaylog.Record,
	clock clockwork.Clock,
) *telemetry.Poller {
	return telemetry.NewPoller(
		logger.Named("poller"),
		[]domain.Sensor{pisugar, host},
		publisher,
		recorder,
		clock,
		cfg.Telemetry.Interval,
		cfg.Telemetry.ResyncEvery,
	)
}

// newWatcher republishes last_image as soon as the display record changes
func newWatcher(logger *zap.Logger, recorder *displaylog.Record, poller *telemetry.Poller) *telemetry.LogWatcher {
	return telemetry.NewLogWatcher(logger.Named("watcher"), recorder.Path(), poller.Trigger)
}

func newBridge(
	logger *zap.Logger,
	client mqtt.Client,
	poller *telemetry.Poller,
	watcher *telemetry.LogWatcher,
	listener *telemetry.Listener,
) *telemetry.Bridge {
	return telemetry.NewBridge(logger.Named("bridge"), client, poller, watcher, listener)
}

// newMetricsServer serves /metrics when BRIDGE_METRICS_ADDR is set; nil otherwise
func newMetricsServer(cfg *config.AppConfig) *http.Server {
	if cfg.BridgeMetrics == "" {
		return nil
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              cfg.BridgeMetrics,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// registerHooks runs the bridge in the background for the lifetime of the app
func registerHooks(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	logger *zap.Logger,
	bridge *telemetry.Bridge,
	srv *http.Server,
) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if srv != nil {
				ln, err := net.Listen("tcp", srv.Addr)
				if err != nil {
					logger.Error("Failed to start metrics server", zap.Error(err))
					return err
				}
				go func() {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("Metrics server failed", zap.Error(err))
					}
				}()
			}

			go func() {
				err := bridge.Run(ctx)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Telemetry bridge failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
				done <- err
			}()
			logger.Info("Telemetry bridge started")
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			logger.Info("Shutting down")
			cancel()
			var err error
			if srv != nil {
				err = srv.Shutdown(stopCtx)
			}
			select {
			case <-done:
				return err
			case <-stopCtx.Done():
				return errors.Join(err, stopCtx.Err())
			}
		},
	})
}
