package telemetry

import (
	"context"
	"sort"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Poller collects sensor readings on a fixed interval and publishes the keys
// whose value changed. Every resyncEvery ticks all keys are published again.
type Poller struct {
	logger      *zap.Logger
	sensors     []domain.Sensor
	publisher   domain.TelemetryPublisher
	recorder    domain.LastImageRecorder
	clock       clockwork.Clock
	interval    time.Duration
	resyncEvery int

	last    map[string]string
	ticks   int
	trigger chan struct{}
}

// NewPoller creates a poller. recorder may be nil.
func NewPoller(
	logger *zap.Logger,
	sensors []domain.Sensor,
	publisher domain.TelemetryPublisher,
	recorder domain.LastImageRecorder,
	clock clockwork.Clock,
	interval time.Duration,
	resyncEvery int,
) *Poller {
	if resyncEvery < 1 {
		resyncEvery = 1
	}
	return &Poller{
		logger:      logger,
		sensors:     sensors,
		publisher:   publisher,
		recorder:    recorder,
		clock:       clock,
		interval:    interval,
		resyncEvery: resyncEvery,
		last:        make(map[string]string),
		trigger:     make(chan struct{}, 1),
	}
}

// Trigger requests an immediate poll; calls while one is pending are coalesced
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run polls once immediately, then on every tick or trigger until ctx is done
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx, true)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			p.ticks++
			p.Poll(ctx, p.ticks%p.resyncEvery == 0)
		case <-p.trigger:
			p.Poll(ctx, false)
		}
	}
}

// Poll collects every sensor and publishes changed keys, or all keys when full is set.
// It returns the number of keys published.
func (p *Poller) Poll(ctx context.Context, full bool) int {
	snapshot := p.collect(ctx)

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	published := 0
	for _, key := range keys {
		value := snapshot[key]
		if prev, ok := p.last[key]; ok && prev == value && !full {
			continue
		}
		if err := p.publisher.Publish(ctx, key, value); err != nil {
			p.logger.Warn("Failed to publish telemetry", zap.String("key", key), zap.Error(err))
			continue
		}
		p.last[key] = value
		published++
	}

	p.logger.Debug("Telemetry poll complete",
		zap.Bool("full", full),
		zap.Int("keys", len(keys)),
		zap.Int("published", published))
	return published
}

func (p *Poller) collect(ctx context.Context) domain.TelemetrySnapshot {
	snapshot := make(domain.TelemetrySnapshot)
	for _, s := range p.sensors {
		values, err := s.Collect(ctx)
		if err != nil {
			p.logger.Warn("Sensor collection failed", zap.String("sensor", s.Name()), zap.Error(err))
		}
		for k, v := range values {
			snapshot[k] = v
		}
	}

	if p.recorder != nil {
		name, err := p.recorder.Read()
		if err != nil {
			p.logger.Warn("Failed to read last image", zap.Error(err))
		}
		snapshot["last_image"] = name
	}
	return snapshot
}
