package display

import (
	"context"
	"fmt"
	"net/http"

	"github.com/genricoloni/inkframe/internal/config"
	"github.com/genricoloni/inkframe/internal/display/emulator"
	"github.com/genricoloni/inkframe/internal/display/epd"
	"github.com/genricoloni/inkframe/internal/domain"
	"go.uber.org/zap"
)

// Device is the panel selected at startup
type Device struct {
	Sink domain.DisplaySink
	// View serves the emulator page; nil for real hardware
	View http.Handler

	resume func(ctx context.Context) error
}

// Resume prepares the sink for a process that reuses a panel initialized
// by an earlier run: the real controller keeps its state, so no reset or
// clear is sent. The emulator holds nothing between processes and is
// initialized afresh.
func (d *Device) Resume(ctx context.Context) error {
	if d.resume == nil {
		return d.Sink.Init(ctx)
	}
	return d.resume(ctx)
}

// New picks the emulator or the real panel from the configuration.
// A profile that does not fit the attached panel, or the hardware failing
// to open, is reported as a DeviceInitError.
func New(logger *zap.Logger, cfg *config.AppConfig) (*Device, error) {
	profile := cfg.GetProfile()
	if cfg.UseSimulator() {
		emu := emulator.New(logger.Named("emulator"), profile, cfg.EmulatorRefresh, cfg.EmulatorOutput)
		return &Device{Sink: emu, View: emu.Handler(), resume: emu.Init}, nil
	}

	if profile.Width != epd.Width || profile.Height != epd.Height {
		return nil, &domain.DeviceInitError{
			Model: cfg.DisplayModel,
			Err: fmt.Errorf("profile is %dx%d, attached panel is %dx%d",
				profile.Width, profile.Height, epd.Width, epd.Height),
		}
	}

	driver, err := epd.Open(logger.Named("epd"))
	if err != nil {
		return nil, &domain.DeviceInitError{Model: cfg.DisplayModel, Err: err}
	}
	return &Device{Sink: driver, resume: func(context.Context) error {
		driver.AssumeInitialized()
		return nil
	}}, nil
}
