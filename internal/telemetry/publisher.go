package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/genricoloni/inkframe/internal/config"
	"github.com/genricoloni/inkframe/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const publishTimeout = 10 * time.Second

// NewClientOptions builds paho options for the configured broker. Every
// handler in onConnect runs after each (re)connection.
func NewClientOptions(logger *zap.Logger, cfg config.MQTTConfig, onConnect ...func(mqtt.Client)) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(cfg.TopicPrefix + "-" + uuid.New().String()[:8])
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	// handlers run on their own goroutines so a slow one never holds back acks
	opts.SetOrderMatters(false)
	opts.SetConnectTimeout(10 * time.Second)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.BrokerURL()))
		for _, fn := range onConnect {
			fn(client)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}
	return opts
}

// Publisher implements domain.TelemetryPublisher for Home Assistant: each key
// is announced once per connection, then its JSON encoded state is retained.
type Publisher struct {
	logger    *zap.Logger
	client    mqtt.Client
	prefix    string
	mu        sync.Mutex
	announced map[string]string
}

// NewPublisher creates a publisher for topics under prefix
func NewPublisher(logger *zap.Logger, client mqtt.Client, prefix string) *Publisher {
	return &Publisher{
		logger:    logger,
		client:    client,
		prefix:    prefix,
		announced: make(map[string]string),
	}
}

// SetClient attaches the client once it has been built
func (p *Publisher) SetClient(client mqtt.Client) {
	p.client = client
}

// OnConnect forgets past announcements so they are repeated on the new session
func (p *Publisher) OnConnect(_ mqtt.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.announced)
}

// Publish implements domain.TelemetryPublisher
func (p *Publisher) Publish(ctx context.Context, key, value string) error {
	component := Component(value)

	p.mu.Lock()
	needsDiscovery := p.announced[key] != component
	p.mu.Unlock()

	if needsDiscovery {
		payload, err := json.Marshal(NewDiscoveryConfig(p.prefix, key, value))
		if err != nil {
			return fmt.Errorf("failed to encode discovery for %s: %w", key, err)
		}
		if err := p.send(ctx, DiscoveryTopic(p.prefix, key, value), payload); err != nil {
			metrics.TelemetryPublishes.WithLabelValues(metrics.ResultError).Inc()
			return fmt.Errorf("failed to publish discovery for %s: %w", key, err)
		}
		p.mu.Lock()
		p.announced[key] = component
		p.mu.Unlock()
	}

	state, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", key, err)
	}
	if err := p.send(ctx, StateTopic(p.prefix, key), state); err != nil {
		metrics.TelemetryPublishes.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}

	metrics.TelemetryPublishes.WithLabelValues(metrics.ResultOK).Inc()
	p.logger.Debug("Published telemetry", zap.String("key", key), zap.String("value", value))
	return nil
}

// send publishes a retained message and waits for the broker
func (p *Publisher) send(ctx context.Context, topic string, payload []byte) error {
	return waitToken(ctx, p.client.Publish(topic, 0, true, payload))
}

// waitToken waits for a paho token, bounded by ctx and publishTimeout
func waitToken(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out waiting for broker")
	case <-ctx.Done():
		return ctx.Err()
	}
}
