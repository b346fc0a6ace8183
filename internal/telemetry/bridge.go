package telemetry

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Bridge runs the telemetry side of the frame: periodic state publishing,
// display log watching and remote commands, over one MQTT connection.
type Bridge struct {
	logger   *zap.Logger
	client   mqtt.Client
	poller   *Poller
	watcher  *LogWatcher
	listener *Listener
}

// NewBridge creates a bridge. watcher may be nil.
func NewBridge(logger *zap.Logger, client mqtt.Client, poller *Poller, watcher *LogWatcher, listener *Listener) *Bridge {
	return &Bridge{
		logger:   logger,
		client:   client,
		poller:   poller,
		watcher:  watcher,
		listener: listener,
	}
}

// Run connects and blocks until ctx is done or a loop fails. The client
// keeps retrying the first connection until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	token := b.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
	case <-ctx.Done():
		b.client.Disconnect(0)
		return nil
	}
	defer b.client.Disconnect(250)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.poller.Run(ctx) })
	g.Go(func() error { return b.listener.Run(ctx) })
	if b.watcher != nil {
		g.Go(func() error { return b.watcher.Run(ctx) })
	}

	b.logger.Info("Telemetry bridge running")
	err := g.Wait()
	b.logger.Info("Telemetry bridge stopped")
	return err
}
