package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/genricoloni/inkframe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewDiscoveryConfig(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		wantTopic string
		wantName  string
		wantOn    string
	}{
		{
			name:      "numeric sensor",
			key:       "battery",
			value:     "87",
			wantTopic: "homeassistant/sensor/epaper_frame_battery/config",
			wantName:  "Battery Level (%)",
		},
		{
			name:      "boolean becomes binary sensor",
			key:       "battery_charging",
			value:     "false",
			wantTopic: "homeassistant/binary_sensor/epaper_frame_battery_charging/config",
			wantName:  "Battery Charging",
			wantOn:    "true",
		},
		{
			name:      "unlabelled key is title cased",
			key:       "wifi_signal_strength",
			value:     "-61",
			wantTopic: "homeassistant/sensor/epaper_frame_wifi_signal_strength/config",
			wantName:  "Wifi Signal Strength",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDiscoveryConfig("epaper_frame", tt.key, tt.value)
			assert.Equal(t, tt.wantTopic, DiscoveryTopic("epaper_frame", tt.key, tt.value))
			assert.Equal(t, tt.wantName, cfg.Name)
			assert.Equal(t, "epaper_frame/"+tt.key, cfg.StateTopic)
			assert.Equal(t, "epaper_frame_"+tt.key, cfg.UniqueID)
			assert.Equal(t, tt.wantOn, cfg.PayloadOn)
			assert.Equal(t, []string{"epaper_frame"}, cfg.Device.Identifiers)
			assert.Equal(t, "Mscrnt LLC", cfg.Device.Manufacturer)
		})
	}
}

func TestDiscoveryConfig_OmitsPayloadsForSensors(t *testing.T) {
	data, err := json.Marshal(NewDiscoveryConfig("frame", "battery", "50"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "payload_on")
}

func TestPublisher_AnnouncesOncePerConnection(t *testing.T) {
	client := newMockMQTTClient()
	p := NewPublisher(zap.NewNop(), client, "epaper_frame")
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, "battery", "87"))
	require.NoError(t, p.Publish(ctx, "battery", "86"))
	assert.Equal(t, []string{
		"homeassistant/sensor/epaper_frame_battery/config",
		"epaper_frame/battery",
		"epaper_frame/battery",
	}, client.topics())

	msgs := client.published()
	assert.True(t, msgs[0].retained)
	assert.True(t, msgs[1].retained)
	assert.Equal(t, `"87"`, string(msgs[1].payload))

	p.OnConnect(client)
	require.NoError(t, p.Publish(ctx, "battery", "85"))
	assert.Len(t, client.published(), 5)
	assert.Equal(t, "homeassistant/sensor/epaper_frame_battery/config", client.published()[3].topic)
}

func TestPublisher_ReannouncesWhenComponentChanges(t *testing.T) {
	client := newMockMQTTClient()
	p := NewPublisher(zap.NewNop(), client, "frame")

	require.NoError(t, p.Publish(context.Background(), "soft_poweroff", Unknown))
	require.NoError(t, p.Publish(context.Background(), "soft_poweroff", "true"))

	assert.Equal(t, []string{
		"homeassistant/sensor/frame_soft_poweroff/config",
		"frame/soft_poweroff",
		"homeassistant/binary_sensor/frame_soft_poweroff/config",
		"frame/soft_poweroff",
	}, client.topics())
}

func TestPublisher_Error(t *testing.T) {
	client := newMockMQTTClient()
	client.publishError = errors.New("not connected")
	p := NewPublisher(zap.NewNop(), client, "frame")

	err := p.Publish(context.Background(), "battery", "50")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery")

	// discovery is retried on the next attempt
	client.publishError = nil
	require.NoError(t, p.Publish(context.Background(), "battery", "50"))
	assert.Len(t, client.published(), 2)
}

func TestNewClientOptions(t *testing.T) {
	calls := 0
	cfg := config.MQTTConfig{Broker: "broker.local", Port: 1884, Username: "frame", Password: "secret", TopicPrefix: "epaper_frame"}
	opts := NewClientOptions(zap.NewNop(), cfg, func(_ mqtt.Client) { calls++ }, func(_ mqtt.Client) { calls++ })

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://broker.local:1884", opts.Servers[0].String())
	assert.Equal(t, "frame", opts.Username)
	assert.Contains(t, opts.ClientID, "epaper_frame-")
	assert.False(t, opts.Order, "handlers must not block the router")

	opts.OnConnect(newMockMQTTClient())
	assert.Equal(t, 2, calls)
}
