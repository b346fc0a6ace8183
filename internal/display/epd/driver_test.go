package epd

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/genricoloni/inkframe/internal/processor"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
)

// recordingBus captures SPI traffic split into command and data writes
type recordingBus struct {
	dc       *fakePin
	commands []byte
	data     map[byte][]byte
	last     byte
	failOn   byte
}

func (b *recordingBus) Tx(w, _ []byte) error {
	if b.dc.level == gpio.Low {
		b.last = w[0]
		if b.failOn != 0 && b.last == b.failOn {
			return errors.New("spi write failed")
		}
		b.commands = append(b.commands, w[0])
		return nil
	}
	b.data[b.last] = append(b.data[b.last], w...)
	return nil
}

type fakePin struct {
	level gpio.Level
}

func (p *fakePin) Out(l gpio.Level) error {
	p.level = l
	return nil
}

func (p *fakePin) Read() gpio.Level {
	return p.level
}

type noopCloser struct{ closed bool }

func (c *noopCloser) Close() error {
	c.closed = true
	return nil
}

func newTestDriver() (*Driver, *recordingBus, *noopCloser) {
	dc := &fakePin{}
	busy := &fakePin{level: gpio.High}
	bus := &recordingBus{dc: dc, data: map[byte][]byte{}}
	closer := &noopCloser{}
	d := newDriver(zap.NewNop(), bus, closer, &fakePin{}, dc, busy)
	// every wait flips BUSY so both polarities settle after one poll
	d.delay = func(context.Context, time.Duration) error {
		busy.level = !busy.level
		return nil
	}
	return d, bus, closer
}

func testFrame(w, h int, fill uint8) *domain.RenderedFrame {
	img := image.NewPaletted(image.Rect(0, 0, w, h), processor.Palette)
	for i := range img.Pix {
		img.Pix[i] = fill
	}
	return &domain.RenderedFrame{Image: img, Profile: domain.DisplayProfile{Width: w, Height: h}}
}

func TestDriver_InitSequence(t *testing.T) {
	d, bus, _ := newTestDriver()
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []byte{0x00, 0x01, 0x03, 0x06, 0x30, 0x41, 0x50, 0x60, 0x61, 0xE3, 0x50}
	if string(bus.commands) != string(want) {
		t.Errorf("expected commands % X, got % X", want, bus.commands)
	}
	if got := bus.data[cmdResolution]; string(got) != string(resolution) {
		t.Errorf("expected resolution % X, got % X", resolution, got)
	}
}

func TestDriver_InitFailureIsDeviceInitError(t *testing.T) {
	d, bus, _ := newTestDriver()
	bus.failOn = cmdPowerSetting

	err := d.Init(context.Background())
	var initErr *domain.DeviceInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected DeviceInitError, got %v", err)
	}
}

func TestDriver_Render(t *testing.T) {
	tests := []struct {
		name        string
		init        bool
		frame       *domain.RenderedFrame
		expectError bool
	}{
		{name: "Success - native size", init: true, frame: testFrame(Width, Height, processor.IndexRed)},
		{name: "Error - not initialized", frame: testFrame(Width, Height, processor.IndexRed), expectError: true},
		{name: "Error - wrong size", init: true, frame: testFrame(800, 480, processor.IndexRed), expectError: true},
		{name: "Error - nil frame", init: true, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, bus, _ := newTestDriver()
			if tt.init {
				if err := d.Init(context.Background()); err != nil {
					t.Fatalf("init failed: %v", err)
				}
			}

			err := d.Render(context.Background(), tt.frame)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			payload := bus.data[cmdDataStart]
			if len(payload) != Width*Height/2 {
				t.Fatalf("expected %d bytes, got %d", Width*Height/2, len(payload))
			}
			if payload[0] != 0x44 {
				t.Errorf("expected packed red 0x44, got 0x%02X", payload[0])
			}
			tail := bus.commands[len(bus.commands)-4:]
			if string(tail) != string([]byte{cmdDataStart, cmdPowerOn, cmdRefresh, cmdPowerOff}) {
				t.Errorf("unexpected refresh sequence % X", tail)
			}
		})
	}
}

func TestDriver_Clear(t *testing.T) {
	d, bus, _ := newTestDriver()
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := d.Clear(context.Background(), color.White); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := bus.data[cmdDataStart]
	for i, b := range payload {
		if b != 0x11 {
			t.Fatalf("byte %d: expected 0x11, got 0x%02X", i, b)
		}
	}
}

func TestDriver_AssumeInitialized(t *testing.T) {
	d, bus, _ := newTestDriver()
	d.AssumeInitialized()

	if err := d.Render(context.Background(), testFrame(Width, Height, processor.IndexBlue)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, cmd := range bus.commands {
		if cmd == cmdPanelSetting {
			t.Fatal("expected no panel setting command without a reset")
		}
	}
}

func TestDriver_SleepAndClose(t *testing.T) {
	d, bus, closer := newTestDriver()
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := d.Sleep(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bus.commands[len(bus.commands)-1] != cmdDeepSleep {
		t.Errorf("expected deep sleep command last, got 0x%02X", bus.commands[len(bus.commands)-1])
	}
	if err := d.Render(context.Background(), testFrame(Width, Height, 0)); err == nil {
		t.Error("expected render after sleep to fail")
	}
	if err := d.Close(); err != nil || !closer.closed {
		t.Errorf("expected port closed, err=%v", err)
	}
}

func TestDriver_BusyTimeout(t *testing.T) {
	d, _, _ := newTestDriver()
	d.busy = &fakePin{level: gpio.Low}
	d.delay = func(context.Context, time.Duration) error { return nil }

	if err := d.waitWhile(context.Background(), gpio.Low); err == nil {
		t.Fatal("expected busy timeout")
	}
}

func TestPack(t *testing.T) {
	frame := testFrame(3, 2, processor.IndexWhite)
	frame.Image.SetColorIndex(0, 0, processor.IndexBlack)
	frame.Image.SetColorIndex(1, 0, processor.IndexOrange)
	frame.Image.SetColorIndex(2, 1, processor.IndexBlue)

	got := Pack(frame)
	want := []byte{0x06, 0x11, 0x13}
	if string(got) != string(want) {
		t.Errorf("expected % X, got % X", want, got)
	}
}
