package telemetry

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mockMQTTClient implements mqtt.Client for testing
type mockMQTTClient struct {
	mu             sync.Mutex
	connectError   error
	publishError   error
	publishedMsgs  []publishedMessage
	subscriptions  map[string]mqtt.MessageHandler
	disconnectCall int
	connected      bool
	// stalled leaves every publish token pending, like a broker that never acks
	stalled        bool
}

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

func newMockMQTTClient() *mockMQTTClient {
	return &mockMQTTClient{subscriptions: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTTClient) published() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedMessage(nil), m.publishedMsgs...)
}

func (m *mockMQTTClient) topics() []string {
	var out []string
	for _, msg := range m.published() {
		out = append(out, msg.topic)
	}
	return out
}

func (m *mockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTTClient) IsConnectionOpen() bool {
	return m.IsConnected()
}

func (m *mockMQTTClient) Connect() mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectError != nil {
		return &mockToken{err: m.connectError}
	}
	m.connected = true
	return &mockToken{}
}

func (m *mockMQTTClient) Disconnect(_ uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnectCall++
}

func (m *mockMQTTClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	if m.publishError != nil {
		return &mockToken{err: m.publishError}
	}
	data, _ := payload.([]byte)
	m.mu.Lock()
	m.publishedMsgs = append(m.publishedMsgs, publishedMessage{
		topic:    topic,
		qos:      qos,
		retained: retained,
		payload:  data,
	})
	stalled := m.stalled
	m.mu.Unlock()
	if stalled {
		return &pendingToken{done: make(chan struct{})}
	}
	return &mockToken{}
}

func (m *mockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[topic] = handler
	return &mockToken{}
}

func (*mockMQTTClient) SubscribeMultiple(_ map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	return &mockToken{}
}

func (*mockMQTTClient) Unsubscribe(_ ...string) mqtt.Token {
	return &mockToken{}
}

func (*mockMQTTClient) AddRoute(_ string, _ mqtt.MessageHandler) {}

func (*mockMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// mockToken implements mqtt.Token for testing
type mockToken struct {
	err error
}

func (*mockToken) Wait() bool {
	return true
}

func (*mockToken) WaitTimeout(_ time.Duration) bool {
	return true
}

func (*mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *mockToken) Error() error {
	return t.err
}

// pendingToken never completes
type pendingToken struct {
	done chan struct{}
}

func (t *pendingToken) Wait() bool {
	<-t.done
	return true
}

func (*pendingToken) WaitTimeout(_ time.Duration) bool {
	return false
}

func (t *pendingToken) Done() <-chan struct{} {
	return t.done
}

func (*pendingToken) Error() error {
	return nil
}

// mockMessage implements mqtt.Message for testing
type mockMessage struct {
	topic   string
	payload []byte
}

func (*mockMessage) Duplicate() bool { return false }
func (*mockMessage) Qos() byte { return 1 }
func (*mockMessage) Retained() bool { return false }
func (m *mockMessage) Topic() string { return m.topic }
func (*mockMessage) MessageID() uint16 { return 1 }
func (m *mockMessage) Payload() []byte { return m.payload }
func (*mockMessage) Ack() {}
