package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/genricoloni/inkframe/internal/gdrive"
	"github.com/genricoloni/inkframe/internal/gdrive/mocks"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func newTestSelector(t *testing.T, fs afero.Fs, service gdrive.Service, clock clockwork.Clock) *Selector {
	t.Helper()
	local := NewLocalSource(zap.NewNop(), fs, "/mnt/photos")
	var drive *DriveSource
	if service != nil {
		drive = NewDriveSource(zap.NewNop(), service, "folder-1")
	}
	return NewSelector(zap.NewNop(), local, drive, NewHTTPFetcher(zap.NewNop()), clock)
}

func TestSelector_NextCandidate(t *testing.T) {
	tests := []struct {
		name      string
		mode      domain.SourceMode
		setupMock func(*mocks.MockService)
		files     []string
		wantKind  domain.CandidateKind
		wantName  string
		wantErr   error
	}{
		{
			name:     "Local mode never touches drive",
			mode:     domain.SourceLocal,
			files:    []string{"/mnt/photos/a.jpg"},
			wantKind: domain.CandidatePath,
			wantName: "a.jpg",
		},
		{
			name: "Drive mode uses drive",
			mode: domain.SourceDrive,
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().ListFiles(gomock.Any(), gomock.Any()).Return([]gdrive.File{{ID: "x", Name: "remote.jpg"}}, nil)
				m.EXPECT().Download(gomock.Any(), "x").Return(io.NopCloser(strings.NewReader("bytes")), nil)
			},
			files:    []string{"/mnt/photos/a.jpg"},
			wantKind: domain.CandidateStream,
			wantName: "remote.jpg",
		},
		{
			name: "Drive empty falls back to local",
			mode: domain.SourceDrive,
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().ListFiles(gomock.Any(), gomock.Any()).Return(nil, nil)
			},
			files:    []string{"/mnt/photos/a.jpg"},
			wantKind: domain.CandidatePath,
			wantName: "a.jpg",
		},
		{
			name: "Drive error falls back to local",
			mode: domain.SourceDrive,
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().ListFiles(gomock.Any(), gomock.Any()).Return(nil, errors.New("offline"))
			},
			files:    []string{"/mnt/photos/a.jpg"},
			wantKind: domain.CandidatePath,
			wantName: "a.jpg",
		},
		{
			name: "Nothing anywhere",
			mode: domain.SourceDrive,
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().ListFiles(gomock.Any(), gomock.Any()).Return(nil, nil)
			},
			wantErr: domain.ErrNoImageAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			service := mocks.NewMockService(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(service)
			}

			s := newTestSelector(t, newTestFs(t, tt.files...), service, clockwork.NewRealClock())
			c, err := s.NextCandidate(context.Background(), tt.mode)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, c.Kind)
			assert.Equal(t, tt.wantName, c.Name)
		})
	}
}

func TestSelector_DriveModeWithoutDrive(t *testing.T) {
	s := newTestSelector(t, newTestFs(t, "/mnt/photos/a.jpg"), nil, clockwork.NewRealClock())
	c, err := s.NextCandidate(context.Background(), domain.SourceDrive)
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", c.Name)
}

func TestSelector_ResolveAndLoad(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("remote-bytes"))
	}))
	defer server.Close()

	s := newTestSelector(t, newTestFs(t, "/mnt/photos/a.jpg"), nil, clockwork.NewRealClock())
	ctx := context.Background()

	c, err := s.Resolve(ctx, server.URL+"/pic.png")
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateStream, c.Kind)
	assert.Equal(t, "pic.png", c.Name)
	data, err := s.Load(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "remote-bytes", string(data))

	c, err = s.Resolve(ctx, "a.jpg")
	require.NoError(t, err)
	data, err = s.Load(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "data:/mnt/photos/a.jpg", string(data))

	_, err = s.Resolve(ctx, "gone.jpg")
	assert.ErrorIs(t, err, domain.ErrNoImageAvailable)
}

func TestSelector_WaitForCandidate(t *testing.T) {
	fs := newTestFs(t)
	clock := clockwork.NewFakeClock()
	s := newTestSelector(t, fs, nil, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		c   domain.ImageCandidate
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := s.WaitForCandidate(ctx, domain.SourceLocal, 5*time.Minute, 10*time.Second)
		done <- result{c, err}
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(10 * time.Second)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.NoError(t, afero.WriteFile(fs, "/mnt/photos/late.jpg", []byte("x"), 0o644))
	clock.Advance(10 * time.Second)

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "late.jpg", r.c.Name)
}

func TestSelector_WaitForCandidateTimesOut(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newTestSelector(t, newTestFs(t), nil, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := s.WaitForCandidate(ctx, domain.SourceLocal, 20*time.Second, 10*time.Second)
		done <- err
	}()

	for i := 0; i < 2; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(10 * time.Second)
	}

	assert.ErrorIs(t, <-done, domain.ErrNoImageAvailable)
}
