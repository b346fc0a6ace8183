package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/genricoloni/inkframe/internal/config"
	"github.com/genricoloni/inkframe/internal/display"
	"github.com/genricoloni/inkframe/internal/displaylog"
	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/genricoloni/inkframe/internal/engine"
	"github.com/genricoloni/inkframe/internal/fetcher"
	"github.com/genricoloni/inkframe/internal/gdrive"
	"github.com/genricoloni/inkframe/internal/processor"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Core provides the display pipeline shared by the daemon and the CLI:
// image source, fit processor, display record, panel and engine.
var Core = fx.Options(
	fx.Provide(
		NewFs,
		NewClock,
		NewImageSource,
		NewTransformer,
		NewRecorder,
		display.New,
		NewEngine,
	),
)

// NewFs returns the operating system filesystem
func NewFs() afero.Fs {
	return afero.NewOsFs()
}

// NewClock returns the wall clock
func NewClock() clockwork.Clock {
	return clockwork.NewRealClock()
}

// NewImageSource builds the selector. A Drive source is only attached in
// drive mode; failing to reach Drive is logged and local images are used.
func NewImageSource(logger *zap.Logger, cfg *config.AppConfig, fs afero.Fs, clock clockwork.Clock) *fetcher.Selector {
	local := fetcher.NewLocalSource(logger.Named("local"), fs, cfg.LocalImageDir)

	var drive *fetcher.DriveSource
	if cfg.Source == domain.SourceDrive {
		client, err := gdrive.NewClient(context.Background(), logger.Named("gdrive"), cfg.ServiceAccount)
		if err != nil {
			logger.Warn("Google Drive unavailable, using local images only", zap.Error(err))
		} else {
			drive = fetcher.NewDriveSource(logger.Named("drive"), client, cfg.DriveFolderID)
		}
	}

	return fetcher.NewSelector(logger.Named("selector"), local, drive, fetcher.NewHTTPFetcher(logger.Named("http")), clock)
}

// NewTransformer builds the fit processor with the configured dithering
func NewTransformer(logger *zap.Logger, cfg *config.AppConfig) *processor.FitProcessor {
	return processor.NewFitProcessor(logger.Named("processor"), processor.DitherMode(cfg.Dither))
}

// NewRecorder builds the last-image record
func NewRecorder(logger *zap.Logger, cfg *config.AppConfig, fs afero.Fs, clock clockwork.Clock) *displaylog.Record {
	return displaylog.NewRecord(logger.Named("displaylog"), fs, cfg.DisplayLogFile, clock)
}

// NewEngine wires the update cycle
func NewEngine(
	logger *zap.Logger,
	cfg *config.AppConfig,
	source *fetcher.Selector,
	transformer *processor.FitProcessor,
	device *display.Device,
	recorder *displaylog.Record,
) *engine.Engine {
	return engine.NewEngine(logger.Named("engine"), cfg, source, transformer, device.Sink, recorder)
}

// Pipeline is the display pipeline built without fx, for one-shot commands
type Pipeline struct {
	Config   *config.AppConfig
	Source   *fetcher.Selector
	Device   *display.Device
	Recorder *displaylog.Record
	Engine   *engine.Engine
}

// Build constructs the pipeline. Failing to open the panel is a *domain.DeviceInitError.
func Build(logger *zap.Logger, cfg *config.AppConfig) (*Pipeline, error) {
	fs := NewFs()
	clock := NewClock()

	device, err := display.New(logger, cfg)
	if err != nil {
		var initErr *domain.DeviceInitError
		if errors.As(err, &initErr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open display: %w", err)
	}

	source := NewImageSource(logger, cfg, fs, clock)
	recorder := NewRecorder(logger, cfg, fs, clock)
	return &Pipeline{
		Config:   cfg,
		Source:   source,
		Device:   device,
		Recorder: recorder,
		Engine:   NewEngine(logger, cfg, source, NewTransformer(logger, cfg), device, recorder),
	}, nil
}
