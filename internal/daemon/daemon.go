package daemon

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"go.uber.org/zap"
)

// Options configures a Daemon
type Options struct {
	Addr           string
	QueueSize      int
	RequestTimeout time.Duration
	Model          string
}

// Daemon owns the display for the life of the process: it initializes the
// panel, serves requests one at a time and puts the panel to sleep on stop.
type Daemon struct {
	logger *zap.Logger
	opts   Options
	sink   domain.DisplaySink
	worker *Worker
	server *Server
}

// New creates a daemon around an updater and the sink it drives
func New(logger *zap.Logger, opts Options, sink domain.DisplaySink, updater domain.Updater) *Daemon {
	worker := NewWorker(logger.Named("worker"), updater, opts.QueueSize, opts.RequestTimeout)
	return &Daemon{
		logger: logger,
		opts:   opts,
		sink:   sink,
		worker: worker,
		server: NewServer(logger.Named("server"), opts.Addr, worker),
	}
}

// Start initializes the display before accepting any connection.
// A failed init is reported as a *domain.DeviceInitError.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.sink.Init(ctx); err != nil {
		var initErr *domain.DeviceInitError
		if !errors.As(err, &initErr) {
			err = &domain.DeviceInitError{Model: d.opts.Model, Err: err}
		}
		return err
	}
	d.logger.Info("Display initialized", zap.String("model", d.opts.Model))

	d.worker.Start()
	if err := d.server.Start(ctx); err != nil {
		d.worker.Stop()
		return err
	}
	return nil
}

// Addr returns the address the daemon listens on
func (d *Daemon) Addr() net.Addr {
	return d.server.Addr()
}

// Stop stops accepting, lets the running request finish, then sleeps and
// releases the display
func (d *Daemon) Stop(ctx context.Context) error {
	var errs []error
	if err := d.server.Stop(ctx); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}
	d.worker.Stop()

	if err := d.sink.Sleep(context.WithoutCancel(ctx)); err != nil {
		d.logger.Warn("Failed to put display to sleep", zap.Error(err))
		errs = append(errs, err)
	}
	if err := d.sink.Close(); err != nil {
		errs = append(errs, err)
	}
	d.logger.Info("Daemon stopped")
	return errors.Join(errs...)
}
