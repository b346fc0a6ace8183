package domain

import (
	"context"
	"image/color"
	"time"
)

// ImageSource yields candidates for an update cycle
type ImageSource interface {
	// NextCandidate picks one image at random from the given mode.
	// Drive mode falls back to local storage when the remote listing
	// is empty or fails. Returns ErrNoImageAvailable when nothing is found.
	NextCandidate(ctx context.Context, mode SourceMode) (ImageCandidate, error)

	// Resolve turns an explicit argument (path, file name or URL) into a candidate
	Resolve(ctx context.Context, arg string) (ImageCandidate, error)

	// Load returns the raw bytes of a candidate
	Load(ctx context.Context, c ImageCandidate) ([]byte, error)
}

// Transformer converts raw image bytes into a frame for the target profile
type Transformer interface {
	// Transform decodes, orients, rotates, letterboxes and quantizes the image.
	// Unreadable input yields an *ImageDecodeError.
	Transform(ctx context.Context, data []byte, profile DisplayProfile) (*RenderedFrame, error)
}

// DisplaySink is the capability set of a panel, real or emulated.
// Implementations are not safe for concurrent use; callers serialize access.
type DisplaySink interface {
	// Init prepares the device. A nil error is the success convention.
	Init(ctx context.Context) error

	// Clear fills the panel with a single color
	Clear(ctx context.Context, c color.Color) error

	// Render pushes a frame to the panel
	Render(ctx context.Context, frame *RenderedFrame) error

	// Sleep puts the panel into its low power state
	Sleep(ctx context.Context) error

	// Close releases the underlying resources
	Close() error
}

// Updater runs display cycles against the device
type Updater interface {
	// Update renders the image named by arg, or a random candidate when arg is empty
	Update(ctx context.Context, arg string) error

	// Clear blanks the display
	Clear(ctx context.Context) error
}

// SystemControl wraps the host administration side effects
type SystemControl interface {
	// ScheduleShutdown powers the host off after delay
	ScheduleShutdown(ctx context.Context, delay time.Duration) error

	// CancelShutdown aborts a pending scheduled shutdown
	CancelShutdown(ctx context.Context) error

	// HasActiveRemoteSessions reports whether someone is logged in remotely (e.g. SSH)
	HasActiveRemoteSessions(ctx context.Context) (bool, error)
}

// LastImageRecorder persists the name of the last displayed image
type LastImageRecorder interface {
	// Write replaces the current record
	Write(name string) error

	// Read returns the current name, or "Unknown"
	Read() (string, error)
}

// Sensor produces telemetry values
type Sensor interface {
	// Name identifies the sensor in logs
	Name() string

	// Collect returns the current readings
	Collect(ctx context.Context) (TelemetrySnapshot, error)
}

// TelemetryPublisher pushes state to the home-automation bus
type TelemetryPublisher interface {
	// Publish sends the value of one key
	Publish(ctx context.Context, key, value string) error
}

// Config defines the values components read from the application configuration
type Config interface {
	// GetSourceMode returns where random candidates are pulled from
	GetSourceMode() SourceMode

	// GetProfile returns the active display profile
	GetProfile() DisplayProfile

	// GetLocalImageDir returns the local photo directory
	GetLocalImageDir() string

	// UseSimulator reports whether the emulator replaces the real panel
	UseSimulator() bool
}
