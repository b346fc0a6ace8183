package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/genricoloni/inkframe/internal/metrics"
	"go.uber.org/zap"
)

var (
	// ErrRequestTimeout is returned for a request that waited in the queue past the configured limit
	ErrRequestTimeout = errors.New("request timed out")
	// ErrShuttingDown is returned for requests still queued when the daemon stops
	ErrShuttingDown = errors.New("daemon shutting down")
)

const (
	jobQueued int32 = iota
	jobRunning
	jobAbandoned
)

// Job is one request waiting for the display
type Job struct {
	Request  domain.DaemonRequest
	Result   chan error
	enqueued time.Time
	state    atomic.Int32
}

// Worker owns the display. A single goroutine drains a FIFO queue so at
// most one hardware operation is in flight, in arrival order.
type Worker struct {
	logger   *zap.Logger
	updater  domain.Updater
	jobQueue chan *Job
	timeout  time.Duration
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewWorker creates a worker with a queue of queueSize pending requests.
// A zero timeout lets requests wait indefinitely.
func NewWorker(logger *zap.Logger, updater domain.Updater, queueSize int, timeout time.Duration) *Worker {
	if queueSize <= 0 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		logger:   logger,
		updater:  updater,
		jobQueue: make(chan *Job, queueSize),
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutine
func (w *Worker) Start() {
	w.logger.Info("Starting display worker",
		zap.Int("queueSize", cap(w.jobQueue)),
		zap.Duration("requestTimeout", w.timeout))

	w.wg.Add(1)
	go w.run()
}

// Stop waits for the running request to finish. Requests still queued are answered with ErrShuttingDown.
func (w *Worker) Stop() {
	w.logger.Info("Stopping display worker")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("Display worker stopped")
}

// Submit queues a request and waits for its outcome. It blocks while the
// queue is full. Once queued, a request runs even if ctx is cancelled; only
// the acknowledgment is lost.
func (w *Worker) Submit(ctx context.Context, req domain.DaemonRequest) error {
	job := &Job{
		Request:  req,
		Result:   make(chan error, 1),
		enqueued: time.Now(),
	}

	var expired <-chan time.Time
	if w.timeout > 0 {
		timer := time.NewTimer(w.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case w.jobQueue <- job:
		metrics.DaemonQueueDepth.Set(float64(len(w.jobQueue)))
	case <-expired:
		w.abandoned(req, ErrRequestTimeout)
		return ErrRequestTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return ErrShuttingDown
	}

	stopping := w.ctx.Done()
	for {
		select {
		case err := <-job.Result:
			return err
		case <-expired:
			expired = nil
			if job.state.CompareAndSwap(jobQueued, jobAbandoned) {
				w.abandoned(req, ErrRequestTimeout)
				return ErrRequestTimeout
			}
		case <-stopping:
			stopping = nil
			if job.state.CompareAndSwap(jobQueued, jobAbandoned) {
				w.abandoned(req, ErrShuttingDown)
				return ErrShuttingDown
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// run is the main loop of the worker goroutine
func (w *Worker) run() {
	defer w.wg.Done()

	for {
		if w.ctx.Err() != nil {
			return
		}
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Display worker loop stopped")
			return
		case job := <-w.jobQueue:
			metrics.DaemonQueueDepth.Set(float64(len(w.jobQueue)))
			if !job.state.CompareAndSwap(jobQueued, jobRunning) {
				w.logger.Debug("Skipping abandoned request", zap.String("verb", string(job.Request.Verb)))
				continue
			}
			w.processJob(job)
		}
	}
}

// processJob runs one request against the display
func (w *Worker) processJob(job *Job) {
	req := job.Request
	w.logger.Info("Processing request",
		zap.String("verb", string(req.Verb)),
		zap.String("argument", req.Argument),
		zap.Duration("queued", time.Since(job.enqueued)))

	// requests are not cancelled mid-render, even during shutdown
	err := w.execute(context.WithoutCancel(w.ctx), req)

	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
		w.logger.Error("Request failed", zap.String("verb", string(req.Verb)), zap.Error(err))
	} else {
		w.logger.Info("Request completed", zap.String("verb", string(req.Verb)))
	}
	metrics.DaemonRequests.WithLabelValues(string(req.Verb), result).Inc()
	metrics.DaemonRequestDuration.WithLabelValues(string(req.Verb)).Observe(time.Since(job.enqueued).Seconds())

	job.Result <- err
	close(job.Result)
}

func (w *Worker) execute(ctx context.Context, req domain.DaemonRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while handling %s: %v", req.Verb, r)
		}
	}()

	switch req.Verb {
	case domain.VerbUpdate:
		return w.updater.Update(ctx, req.Argument)
	case domain.VerbClear:
		return w.updater.Clear(ctx)
	default:
		return domain.ErrUnknownCommand
	}
}

func (w *Worker) abandoned(req domain.DaemonRequest, reason error) {
	w.logger.Warn("Request abandoned before running", zap.String("verb", string(req.Verb)), zap.Error(reason))
	label := metrics.ResultTimeout
	if errors.Is(reason, ErrShuttingDown) {
		label = metrics.ResultError
	}
	metrics.DaemonRequests.WithLabelValues(string(req.Verb), label).Inc()
}
