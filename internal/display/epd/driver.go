// Package epd drives the Waveshare 5.65" 7-color ACeP panel (600x448) over
// SPI using periph.io.
package epd

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"sync"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/genricoloni/inkframe/internal/processor"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// Width and Height are the native resolution of the panel
	Width  = 600
	Height = 448

	spiPort  = "SPI0.0"
	spiSpeed = 4 * physic.MegaHertz

	// BCM pin numbers from the Waveshare HAT
	pinReset = "GPIO17"
	pinDC    = "GPIO25"
	pinBusy  = "GPIO24"

	// spidev rejects transfers above 4096 bytes
	maxChunk = 4096

	busyPoll    = 10 * time.Millisecond
	busyTimeout = 60 * time.Second
)

// Controller commands
const (
	cmdPanelSetting    = 0x00
	cmdPowerSetting    = 0x01
	cmdPowerOff        = 0x02
	cmdPowerOffSeq     = 0x03
	cmdPowerOn         = 0x04
	cmdBoosterSoftStrt = 0x06
	cmdDeepSleep       = 0x07
	cmdDataStart       = 0x10
	cmdRefresh         = 0x12
	cmdPLL             = 0x30
	cmdTempSensor      = 0x41
	cmdVCOMInterval    = 0x50
	cmdTCON            = 0x60
	cmdResolution      = 0x61
	cmdPowerSaving     = 0xE3
)

var resolution = []byte{0x02, 0x58, 0x01, 0xC0}

// txer is the part of spi.Conn the driver needs
type txer interface {
	Tx(w, r []byte) error
}

type outPin interface {
	Out(l gpio.Level) error
}

type inPin interface {
	Read() gpio.Level
}

// Driver implements domain.DisplaySink for the real panel
type Driver struct {
	logger *zap.Logger
	conn   txer
	port   io.Closer
	rst    outPin
	dc     outPin
	busy   inPin
	delay  func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	initialized bool
}

// Open initializes periph.io and acquires the SPI port and GPIO lines
func Open(logger *zap.Logger) (*Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init failed: %w", err)
	}

	port, err := spireg.Open(spiPort)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", spiPort, err)
	}
	conn, err := port.Connect(spiSpeed, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	rst, dc, busy := gpioreg.ByName(pinReset), gpioreg.ByName(pinDC), gpioreg.ByName(pinBusy)
	if rst == nil || dc == nil || busy == nil {
		_ = port.Close()
		return nil, errors.New("panel GPIO lines not found")
	}
	if err := busy.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to configure %s: %w", pinBusy, err)
	}

	return newDriver(logger, conn, port, rst, dc, busy), nil
}

func newDriver(logger *zap.Logger, conn txer, port io.Closer, rst, dc outPin, busy inPin) *Driver {
	return &Driver{
		logger: logger,
		conn:   conn,
		port:   port,
		rst:    rst,
		dc:     dc,
		busy:   busy,
		delay:  sleep,
	}
}

// Init resets the controller and loads the panel configuration
func (d *Driver) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.reset(ctx); err != nil {
		return &domain.DeviceInitError{Model: "epd5in65f", Err: err}
	}
	if err := d.waitWhile(ctx, gpio.Low); err != nil {
		return &domain.DeviceInitError{Model: "epd5in65f", Err: err}
	}

	sequence := []struct {
		cmd  byte
		data []byte
	}{
		{cmdPanelSetting, []byte{0xEF, 0x08}},
		{cmdPowerSetting, []byte{0x37, 0x00, 0x23, 0x23}},
		{cmdPowerOffSeq, []byte{0x00}},
		{cmdBoosterSoftStrt, []byte{0xC7, 0xC7, 0x1D}},
		{cmdPLL, []byte{0x3C}},
		{cmdTempSensor, []byte{0x00}},
		{cmdVCOMInterval, []byte{0x37}},
		{cmdTCON, []byte{0x22}},
		{cmdResolution, resolution},
		{cmdPowerSaving, []byte{0xAA}},
	}
	for _, step := range sequence {
		if err := d.send(step.cmd, step.data...); err != nil {
			return &domain.DeviceInitError{Model: "epd5in65f", Err: err}
		}
	}
	if err := d.delay(ctx, 100*time.Millisecond); err != nil {
		return &domain.DeviceInitError{Model: "epd5in65f", Err: err}
	}
	if err := d.send(cmdVCOMInterval, 0x37); err != nil {
		return &domain.DeviceInitError{Model: "epd5in65f", Err: err}
	}

	d.initialized = true
	d.logger.Info("Panel initialized", zap.Int("width", Width), zap.Int("height", Height))
	return nil
}

// AssumeInitialized marks the controller as configured by an earlier
// process, so frames can be sent without a reset
func (d *Driver) AssumeInitialized() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = true
}

// Clear fills the panel with the ink closest to c
func (d *Driver) Clear(ctx context.Context, c color.Color) error {
	idx := byte(processor.Palette.Index(c))
	buf := make([]byte, Width*Height/2)
	for i := range buf {
		buf[i] = idx<<4 | idx
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return errors.New("panel not initialized")
	}
	d.logger.Info("Clearing panel", zap.Uint8("color", idx))
	return d.refresh(ctx, buf)
}

// Render pushes a frame. Only 600x448 frames are accepted.
func (d *Driver) Render(ctx context.Context, frame *domain.RenderedFrame) error {
	if frame == nil || frame.Image == nil {
		return errors.New("empty frame")
	}
	b := frame.Image.Bounds()
	if b.Dx() != Width || b.Dy() != Height {
		return fmt.Errorf("frame is %dx%d, panel needs %dx%d", b.Dx(), b.Dy(), Width, Height)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return errors.New("panel not initialized")
	}
	d.logger.Info("Rendering frame")
	return d.refresh(ctx, Pack(frame))
}

// Sleep powers the controller down into deep sleep
func (d *Driver) Sleep(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.delay(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	if err := d.send(cmdDeepSleep, 0xA5); err != nil {
		return fmt.Errorf("failed to enter deep sleep: %w", err)
	}
	d.initialized = false
	d.logger.Info("Panel sleeping")
	return d.delay(ctx, 2*time.Second)
}

// Close releases the SPI port
func (d *Driver) Close() error {
	if d.port == nil {
		return nil
	}
	return d.port.Close()
}

// Pack converts a frame into the controller's 4-bit-per-pixel layout,
// two pixels per byte with the left pixel in the high nibble
func Pack(frame *domain.RenderedFrame) []byte {
	img := frame.Image
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	buf := make([]byte, (w*h+1)/2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			idx := img.ColorIndexAt(b.Min.X+x, b.Min.Y+y) & 0x0F
			if i%2 == 0 {
				buf[i/2] = idx << 4
			} else {
				buf[i/2] |= idx
			}
		}
	}
	return buf
}

func (d *Driver) refresh(ctx context.Context, buf []byte) error {
	if err := d.send(cmdResolution, resolution...); err != nil {
		return err
	}
	if err := d.send(cmdDataStart, buf...); err != nil {
		return err
	}
	if err := d.send(cmdPowerOn); err != nil {
		return err
	}
	if err := d.waitWhile(ctx, gpio.Low); err != nil {
		return err
	}
	if err := d.send(cmdRefresh); err != nil {
		return err
	}
	if err := d.waitWhile(ctx, gpio.Low); err != nil {
		return err
	}
	if err := d.send(cmdPowerOff); err != nil {
		return err
	}
	if err := d.waitWhile(ctx, gpio.High); err != nil {
		return err
	}
	return d.delay(ctx, 500*time.Millisecond)
}

func (d *Driver) reset(ctx context.Context) error {
	steps := []struct {
		level gpio.Level
		wait  time.Duration
	}{
		{gpio.High, 600 * time.Millisecond},
		{gpio.Low, 2 * time.Millisecond},
		{gpio.High, 200 * time.Millisecond},
	}
	for _, s := range steps {
		if err := d.rst.Out(s.level); err != nil {
			return fmt.Errorf("failed to drive reset line: %w", err)
		}
		if err := d.delay(ctx, s.wait); err != nil {
			return err
		}
	}
	return nil
}

// send writes a command byte followed by optional data bytes
func (d *Driver) send(cmd byte, data ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := d.conn.Tx([]byte{cmd}, nil); err != nil {
		return fmt.Errorf("failed to send command 0x%02X: %w", cmd, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	for start := 0; start < len(data); start += maxChunk {
		end := min(start+maxChunk, len(data))
		if err := d.conn.Tx(data[start:end], nil); err != nil {
			return fmt.Errorf("failed to send data for 0x%02X: %w", cmd, err)
		}
	}
	return nil
}

// waitWhile polls the BUSY line until it leaves level
func (d *Driver) waitWhile(ctx context.Context, level gpio.Level) error {
	for waited := time.Duration(0); d.busy.Read() == level; waited += busyPoll {
		if waited >= busyTimeout {
			return errors.New("panel busy timeout")
		}
		if err := d.delay(ctx, busyPoll); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
