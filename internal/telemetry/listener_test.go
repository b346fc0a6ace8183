package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDaemon struct {
	mu    sync.Mutex
	lines []string
	reply string
	err   error
}

func (d *fakeDaemon) Send(ctx context.Context, command string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = append(d.lines, command)
	return d.reply, d.err
}

func (d *fakeDaemon) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

type fakeSystem struct {
	shutdowns []time.Duration
}

func (s *fakeSystem) ScheduleShutdown(ctx context.Context, delay time.Duration) error {
	s.shutdowns = append(s.shutdowns, delay)
	return nil
}

func (s *fakeSystem) CancelShutdown(ctx context.Context) error { return nil }

func (s *fakeSystem) HasActiveRemoteSessions(ctx context.Context) (bool, error) { return false, nil }

type fakeSetter struct {
	params map[string]string
}

func (s *fakeSetter) Set(ctx context.Context, param, value string) error {
	if param == "rtc_web" {
		return errors.New("parameter cannot be set")
	}
	s.params[param] = value
	return nil
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Command
	}{
		{name: "update", payload: "update", want: Command{Action: ActionUpdate}},
		{name: "display alias", payload: "display\n", want: Command{Action: ActionUpdate}},
		{name: "update relative path", payload: "update beach.jpg", want: Command{Action: ActionUpdate, Image: "/mnt/photos/beach.jpg"}},
		{name: "update absolute path", payload: "update /tmp/x.png", want: Command{Action: ActionUpdate, Image: "/tmp/x.png"}},
		{name: "update url", payload: "update https://example.com/a.jpg", want: Command{Action: ActionUpdate, Image: "https://example.com/a.jpg"}},
		{name: "set_image keeps spaces", payload: "set_image: my cat.jpg", want: Command{Action: ActionUpdate, Image: "/mnt/photos/my cat.jpg"}},
		{name: "clear", payload: "clear", want: Command{Action: ActionClear}},
		{name: "shutdown", payload: "shutdown", want: Command{Action: ActionShutdown}},
		{name: "set", payload: "set safe_shutdown_level 5", want: Command{Action: ActionSet, Param: "safe_shutdown_level", Value: "5"}},
		{name: "set without value", payload: "set safe_shutdown_level", want: Command{Action: ActionUnknown}},
		{name: "unknown", payload: "reboot", want: Command{Action: ActionUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommand(tt.payload, "/mnt/photos"))
		})
	}
}

func newTestListener(t *testing.T, d *fakeDaemon) (*Listener, *fakeSystem, *fakeSetter, *mockMQTTClient) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/mnt/photos/beach.jpg", []byte("jpeg"), 0o644))

	sys := &fakeSystem{}
	setter := &fakeSetter{params: make(map[string]string)}
	client := newMockMQTTClient()
	l := NewListener(zap.NewNop(), "epaper_frame", "/mnt/photos", fs, d.Send, sys, setter)
	l.SetClient(client)
	return l, sys, setter, client
}

func TestListener_Execute(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		reply     string
		wantLines []string
		wantErr   string
	}{
		{name: "random update", payload: "display", reply: "OK", wantLines: []string{"UPDATE"}},
		{name: "existing image", payload: "set_image:beach.jpg", reply: "OK", wantLines: []string{"UPDATE /mnt/photos/beach.jpg"}},
		{name: "missing image never reaches daemon", payload: "set_image:gone.jpg", wantErr: "image not found"},
		{name: "url skips existence check", payload: "update https://example.com/a.jpg", reply: "OK", wantLines: []string{"UPDATE https://example.com/a.jpg"}},
		{name: "clear", payload: "clear", reply: "OK", wantLines: []string{"CLEAR"}},
		{name: "daemon error surfaces", payload: "update", reply: "ERROR: no image available", wantLines: []string{"UPDATE"}, wantErr: "no image available"},
		{name: "unknown", payload: "dance", wantErr: "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDaemon{reply: tt.reply}
			l, _, _, _ := newTestListener(t, d)

			err := l.Execute(context.Background(), tt.payload)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantLines, d.Lines())
		})
	}
}

func TestListener_ShutdownAndSet(t *testing.T) {
	l, sys, setter, _ := newTestListener(t, &fakeDaemon{})

	require.NoError(t, l.Execute(context.Background(), "shutdown"))
	assert.Equal(t, []time.Duration{0}, sys.shutdowns)

	require.NoError(t, l.Execute(context.Background(), "set anti_mistouch true"))
	assert.Equal(t, "true", setter.params["anti_mistouch"])

	assert.Error(t, l.Execute(context.Background(), "set rtc_web now"))
}

func TestListener_RunPublishesResults(t *testing.T) {
	d := &fakeDaemon{reply: "OK"}
	l, _, _, client := newTestListener(t, d)

	l.OnConnect(client)
	handler := client.subscriptions["epaper_frame/command"]
	require.NotNil(t, handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- l.Run(ctx) }()

	handler(client, &mockMessage{topic: "epaper_frame/command", payload: []byte("update")})
	require.Eventually(t, func() bool { return len(client.published()) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	msg := client.published()[0]
	assert.Equal(t, "epaper_frame/command_result", msg.topic)
	assert.False(t, msg.retained)

	var res CommandResult
	require.NoError(t, json.Unmarshal(msg.payload, &res))
	assert.Equal(t, "update", res.Command)
	assert.Equal(t, "ok", res.Status)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, []string{"UPDATE"}, d.Lines())
}

func TestListener_RateLimited(t *testing.T) {
	d := &fakeDaemon{reply: "OK"}
	l, _, _, client := newTestListener(t, d)

	for range 5 {
		l.HandleMessage(client, &mockMessage{topic: "epaper_frame/command", payload: []byte("clear")})
	}
	assert.Len(t, l.queue, 3)
	assert.Empty(t, client.published(), "results are published by Run")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return len(client.published()) == 5 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	limited := 0
	for _, msg := range client.published() {
		var res CommandResult
		require.NoError(t, json.Unmarshal(msg.payload, &res))
		if res.Status == "error" {
			assert.Equal(t, "rate limited", res.Detail)
			limited++
		}
	}
	assert.Equal(t, 2, limited)
	assert.Len(t, d.Lines(), 3)
}

func TestListener_RejectionsDoNotWaitForBroker(t *testing.T) {
	l, _, _, client := newTestListener(t, &fakeDaemon{reply: "OK"})
	client.stalled = true

	returned := make(chan struct{})
	go func() {
		for range 20 {
			l.HandleMessage(client, &mockMessage{topic: "epaper_frame/command", payload: []byte("clear")})
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("message handler blocked on an unacknowledged publish")
	}
	assert.Len(t, l.queue, 3)
	assert.Len(t, l.rejected, 16)
	assert.Empty(t, client.published())
}

func TestListener_UnknownCommandMatchesDomainError(t *testing.T) {
	l, _, _, _ := newTestListener(t, &fakeDaemon{})
	assert.ErrorIs(t, l.Execute(context.Background(), "dance"), domain.ErrUnknownCommand)
}
