// Package emulator is a software stand-in for the panel. It keeps the last
// frame in memory and serves it over HTTP for a browser to poll.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"image"
	"image/color"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/genricoloni/inkframe/internal/processor"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var pageTemplate = template.Must(template.New("view").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="{{.Refresh}}">
<title>{{.Model}} emulator</title>
<style>body{background:#222;margin:0;display:flex;align-items:center;justify-content:center;height:100vh}img{image-rendering:pixelated;border:12px solid #eee}</style>
</head>
<body><img src="/frame.png?v={{.Version}}" width="{{.Width}}" height="{{.Height}}" alt="frame"></body>
</html>
`))

// Emulator implements domain.DisplaySink without hardware
type Emulator struct {
	logger  *zap.Logger
	profile domain.DisplayProfile
	refresh time.Duration
	output  string

	mu      sync.RWMutex
	ready   bool
	frame   []byte
	version int
}

// New creates an emulator for the profile. output, when set, receives a PNG copy of every frame.
func New(logger *zap.Logger, profile domain.DisplayProfile, refresh time.Duration, output string) *Emulator {
	if refresh <= 0 {
		refresh = 5 * time.Second
	}
	return &Emulator{
		logger:  logger,
		profile: profile,
		refresh: refresh,
		output:  output,
	}
}

// Init starts with a blank white canvas
func (e *Emulator) Init(ctx context.Context) error {
	if e.profile.Width <= 0 || e.profile.Height <= 0 {
		return &domain.DeviceInitError{Model: e.profile.ModelID, Err: fmt.Errorf("invalid resolution %dx%d", e.profile.Width, e.profile.Height)}
	}
	if e.output != "" {
		if err := os.MkdirAll(filepath.Dir(e.output), 0o755); err != nil {
			return &domain.DeviceInitError{Model: e.profile.ModelID, Err: err}
		}
	}

	e.mu.Lock()
	e.ready = true
	e.mu.Unlock()

	e.logger.Info("Emulator initialized", zap.String("model", e.profile.ModelID), zap.Int("width", e.profile.Width), zap.Int("height", e.profile.Height))
	return e.Clear(ctx, color.White)
}

// Clear fills the canvas with the ink closest to c
func (e *Emulator) Clear(_ context.Context, c color.Color) error {
	img := image.NewPaletted(e.profile.Bounds(), processor.Palette)
	idx := uint8(processor.Palette.Index(c))
	for i := range img.Pix {
		img.Pix[i] = idx
	}
	return e.store(&domain.RenderedFrame{Image: img, Profile: e.profile})
}

// Render stores the frame
func (e *Emulator) Render(_ context.Context, frame *domain.RenderedFrame) error {
	if frame == nil || frame.Image == nil {
		return errors.New("empty frame")
	}
	if frame.Image.Bounds().Size() != e.profile.Bounds().Size() {
		return fmt.Errorf("frame is %v, emulator needs %dx%d", frame.Image.Bounds().Size(), e.profile.Width, e.profile.Height)
	}
	return e.store(frame)
}

// Sleep is a no-op for the emulator
func (e *Emulator) Sleep(_ context.Context) error {
	e.logger.Info("Emulator sleeping")
	return nil
}

// Close is a no-op for the emulator
func (e *Emulator) Close() error {
	return nil
}

// Frame returns the last stored PNG and its version counter
func (e *Emulator) Frame() ([]byte, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.frame, e.version
}

func (e *Emulator) store(frame *domain.RenderedFrame) error {
	e.mu.RLock()
	ready := e.ready
	e.mu.RUnlock()
	if !ready {
		return errors.New("emulator not initialized")
	}

	data, err := processor.EncodePNG(frame)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.frame = data
	e.version++
	e.mu.Unlock()

	if e.output != "" {
		tmp := e.output + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return fmt.Errorf("failed to write emulator output: %w", err)
		}
		if err := os.Rename(tmp, e.output); err != nil {
			return fmt.Errorf("failed to replace emulator output: %w", err)
		}
	}

	e.logger.Debug("Emulator frame stored", zap.Int("bytes", len(data)))
	return nil
}

// Handler serves the auto-refreshing view and the latest frame
func (e *Emulator) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", e.handleView)
	r.Get("/frame.png", e.handleFrame)
	return r
}

func (e *Emulator) handleView(w http.ResponseWriter, _ *http.Request) {
	_, version := e.Frame()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := pageTemplate.Execute(w, struct {
		Model   string
		Refresh int
		Version int
		Width   int
		Height  int
	}{
		Model:   e.profile.ModelID,
		Refresh: int(e.refresh / time.Second),
		Version: version,
		Width:   e.profile.Width,
		Height:  e.profile.Height,
	})
	if err != nil {
		e.logger.Warn("Failed to render emulator page", zap.Error(err))
	}
}

func (e *Emulator) handleFrame(w http.ResponseWriter, _ *http.Request) {
	data, _ := e.Frame()
	if data == nil {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}
