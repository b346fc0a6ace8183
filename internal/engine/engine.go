package engine

import (
	"context"
	"errors"
	"fmt"
	"image/color"

	"github.com/genricoloni/inkframe/internal/domain"
	"go.uber.org/zap"
)

// maxPulledAttempts bounds how many random candidates a cycle tries when
// images fail to decode
const maxPulledAttempts = 3

// Engine orchestrates one display cycle: pick an image, fit it to the panel,
// render it and record what is on screen.
// It is not safe for concurrent use; the daemon serializes calls.
type Engine struct {
	logger      *zap.Logger
	cfg         domain.Config
	source      domain.ImageSource
	transformer domain.Transformer
	sink        domain.DisplaySink
	recorder    domain.LastImageRecorder
}

// NewEngine creates a new orchestration engine
func NewEngine(
	logger *zap.Logger,
	cfg domain.Config,
	source domain.ImageSource,
	transformer domain.Transformer,
	sink domain.DisplaySink,
	recorder domain.LastImageRecorder,
) *Engine {
	return &Engine{
		logger:      logger,
		cfg:         cfg,
		source:      source,
		transformer: transformer,
		sink:        sink,
		recorder:    recorder,
	}
}

// Update implements domain.Updater. An explicit arg is shown as is; otherwise
// random candidates are pulled, skipping ones that fail to decode.
func (e *Engine) Update(ctx context.Context, arg string) error {
	if arg != "" {
		c, err := e.source.Resolve(ctx, arg)
		if err != nil {
			return err
		}
		return e.Show(ctx, c)
	}

	mode := e.cfg.GetSourceMode()
	for attempt := 1; attempt <= maxPulledAttempts; attempt++ {
		c, err := e.source.NextCandidate(ctx, mode)
		if err != nil {
			return err
		}

		err = e.Show(ctx, c)
		if err == nil || !domain.IsImageDecodeError(err) {
			return err
		}
		e.logger.Warn("Skipping unreadable image",
			zap.String("image", c.Name),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return fmt.Errorf("%w: %d candidates could not be decoded", domain.ErrNoImageAvailable, maxPulledAttempts)
}

// Show renders one candidate and records it as the current image
func (e *Engine) Show(ctx context.Context, c domain.ImageCandidate) error {
	profile := e.cfg.GetProfile()
	e.logger.Info("Processing image",
		zap.String("image", c.Name),
		zap.Stringer("kind", c.Kind),
		zap.String("model", profile.ModelID))

	// 1. Load bytes
	data, err := e.source.Load(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	// 2. Fit and quantize
	frame, err := e.transformer.Transform(ctx, data, profile)
	if err != nil {
		var decodeErr *domain.ImageDecodeError
		if errors.As(err, &decodeErr) && decodeErr.Source == "" {
			decodeErr.Source = c.Name
		}
		return err
	}

	// 3. Push to the panel
	if err := e.sink.Render(ctx, frame); err != nil {
		return fmt.Errorf("failed to render image: %w", err)
	}

	// 4. Record it; the screen is already updated so a failure here is only logged
	if err := e.recorder.Write(c.Name); err != nil {
		e.logger.Warn("Failed to record displayed image", zap.Error(err))
	}

	e.logger.Info("Display updated successfully",
		zap.String("image", c.Name),
		zap.Bool("rotated", frame.Rotated),
		zap.Int("w", frame.Scaled.X),
		zap.Int("h", frame.Scaled.Y))
	return nil
}

// Clear implements domain.Updater by blanking the panel to white
func (e *Engine) Clear(ctx context.Context) error {
	e.logger.Info("Clearing display")
	if err := e.sink.Clear(ctx, color.White); err != nil {
		return fmt.Errorf("failed to clear display: %w", err)
	}
	return nil
}
