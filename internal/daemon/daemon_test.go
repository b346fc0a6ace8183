package daemon

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSink struct {
	mu      sync.Mutex
	initErr error
	inits   int
	sleeps  int
	closes  int
}

func (s *fakeSink) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits++
	return s.initErr
}

func (s *fakeSink) Clear(ctx context.Context, c color.Color) error { return nil }

func (s *fakeSink) Render(ctx context.Context, frame *domain.RenderedFrame) error { return nil }

func (s *fakeSink) Sleep(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps++
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func startDaemon(t *testing.T, sink *fakeSink, updater domain.Updater) *Daemon {
	t.Helper()
	d := New(zap.NewNop(), Options{Addr: "127.0.0.1:0", QueueSize: 8, Model: "test"}, sink, updater)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() {
		assert.NoError(t, d.Stop(context.Background()))
	})
	return d
}

func send(t *testing.T, d *Daemon, command string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := Send(ctx, d.Addr().String(), command)
	require.NoError(t, err)
	return resp
}

func TestDaemon_Commands(t *testing.T) {
	decodeErr := &domain.ImageDecodeError{Source: "bad.jpg", Err: errors.New("invalid JPEG format")}

	tests := []struct {
		name      string
		command   string
		want      string
		wantCalls []string
	}{
		{name: "random update", command: "UPDATE", want: "OK", wantCalls: []string{"UPDATE "}},
		{name: "update with argument", command: "update /mnt/photos/cat.png", want: "OK", wantCalls: []string{"UPDATE /mnt/photos/cat.png"}},
		{name: "trailing newline", command: "CLEAR\n", want: "OK", wantCalls: []string{"CLEAR"}},
		{name: "unknown command", command: "FOO", want: "ERROR: Unknown command"},
		{name: "empty request gets no reply", command: "   ", want: ""},
		{name: "failure reported", command: "UPDATE bad.jpg", want: "ERROR: failed to decode image bad.jpg: invalid JPEG format", wantCalls: []string{"UPDATE bad.jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updater := &recordingUpdater{errFor: map[string]error{"UPDATE bad.jpg": decodeErr}}
			d := startDaemon(t, &fakeSink{}, updater)

			assert.Equal(t, tt.want, send(t, d, tt.command))
			assert.Equal(t, tt.wantCalls, updater.Calls())
		})
	}
}

func TestDaemon_ContinuesAfterFailure(t *testing.T) {
	updater := &recordingUpdater{errFor: map[string]error{
		"UPDATE broken.jpg": &domain.ImageDecodeError{Source: "broken.jpg", Err: errors.New("unexpected EOF")},
	}}
	d := startDaemon(t, &fakeSink{}, updater)

	assert.Contains(t, send(t, d, "UPDATE broken.jpg"), "ERROR: ")
	assert.Equal(t, "OK", send(t, d, "UPDATE good.jpg"))
}

func TestDaemon_ConcurrentClientsNeverOverlap(t *testing.T) {
	updater := &recordingUpdater{hold: 2 * time.Millisecond}
	d := startDaemon(t, &fakeSink{}, updater)

	const clients = 10
	var wg sync.WaitGroup
	for i := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			resp, err := Send(ctx, d.Addr().String(), fmt.Sprintf("UPDATE img%d.png", i))
			assert.NoError(t, err)
			assert.Equal(t, "OK", resp)
		}()
	}
	wg.Wait()

	assert.Len(t, updater.Calls(), clients)
	assert.False(t, updater.overlap.Load(), "display operations overlapped")
}

func TestDaemon_InitFailureRefusesToListen(t *testing.T) {
	sink := &fakeSink{initErr: errors.New("SPI open failed")}
	d := New(zap.NewNop(), Options{Addr: "127.0.0.1:0", QueueSize: 1, Model: "epd5in65f"}, sink, &recordingUpdater{})

	err := d.Start(context.Background())
	var initErr *domain.DeviceInitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "epd5in65f", initErr.Model)
	assert.Nil(t, d.Addr())
}

func TestDaemon_StopSleepsDisplay(t *testing.T) {
	sink := &fakeSink{}
	d := New(zap.NewNop(), Options{Addr: "127.0.0.1:0", QueueSize: 1}, sink, &recordingUpdater{})
	require.NoError(t, d.Start(context.Background()))
	addr := d.Addr().String()

	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, 1, sink.inits)
	assert.Equal(t, 1, sink.sleeps)
	assert.Equal(t, 1, sink.closes)

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestIsOK(t *testing.T) {
	assert.True(t, IsOK("OK"))
	assert.False(t, IsOK("ERROR: Unknown command"))
	assert.False(t, IsOK(""))
}
