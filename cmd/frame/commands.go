package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/genricoloni/inkframe/internal/app"
	"github.com/genricoloni/inkframe/internal/config"
	"github.com/genricoloni/inkframe/internal/daemon"
	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/genricoloni/inkframe/internal/gdrive"
	"github.com/genricoloni/inkframe/internal/system"
	"github.com/genricoloni/inkframe/internal/uploader"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	// defaultWait covers a USB stick that is mounted after boot
	defaultWait     = 5 * time.Minute
	waitInterval    = 5 * time.Second
	requestTimeout  = 2 * time.Minute
	panelSettleTime = 5 * time.Second
)

type cli struct {
	logger *zap.Logger
	stdout io.Writer
	stderr io.Writer

	// newSystem is replaced in tests
	newSystem func(*zap.Logger) (domain.SystemControl, func() error)
	// settle pauses between the last refresh and deep sleep
	settle func(ctx context.Context)
}

// panelFlags registers the flags shared by the commands that drive the panel
func panelFlags(fs *flag.FlagSet) *config.Overrides {
	o := &config.Overrides{}
	fs.StringVar(&o.Source, "source", "", "image source: local or drive (default from IMAGE_SOURCE)")
	fs.StringVar(&o.Display, "display", "", "display model (default from DISPLAY)")
	fs.BoolVar(&o.Simulator, "simulator", false, "use the emulator instead of the panel")
	return o
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// pipeline loads the configuration and opens the display
func (c *cli) pipeline(o config.Overrides, output string) (*app.Pipeline, int) {
	cfg, err := config.Load(c.logger, o)
	if err != nil {
		c.logger.Error("Failed to load configuration", zap.Error(err))
		return nil, exitError
	}
	if output != "" {
		cfg.EmulatorOutput = output
	}

	p, err := app.Build(c.logger, cfg)
	if err != nil {
		c.logger.Error("Failed to open display", zap.Error(err))
		return nil, exitError
	}
	return p, exitOK
}

// show runs the one-shot cycle: init, clear, display one image, sleep the
// panel and apply the shutdown policy
func (c *cli) show(ctx context.Context, args []string) int {
	fs := c.flagSet("show")
	o := panelFlags(fs)
	image := fs.String("image", "", "path or URL to display instead of a random image")
	wait := fs.Duration("wait", defaultWait, "how long to wait for images to appear")
	out := fs.String("out", "", "write the displayed frame to this PNG (implies --simulator)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *out != "" {
		o.Simulator = true
	}

	p, code := c.pipeline(*o, *out)
	if p == nil {
		return code
	}
	sink := p.Device.Sink
	defer func() {
		if err := sink.Close(); err != nil {
			c.logger.Warn("Failed to close display", zap.Error(err))
		}
	}()

	if err := sink.Init(ctx); err != nil {
		c.logger.Error("Failed to initialize display", zap.Error(err))
		return exitError
	}
	if err := p.Engine.Clear(ctx); err != nil {
		c.logger.Error("Failed to clear display", zap.Error(err))
		return exitError
	}

	err := c.display(ctx, p, *image, *wait)
	c.sleep(ctx, p)

	switch {
	case errors.Is(err, domain.ErrNoImageAvailable):
		c.logger.Info("No image to display", zap.Error(err))
	case err != nil:
		c.logger.Error("Failed to update display", zap.Error(err))
		return exitError
	}

	c.applyShutdownPolicy(ctx, p.Config)
	return exitOK
}

func (c *cli) display(ctx context.Context, p *app.Pipeline, image string, wait time.Duration) error {
	if image != "" {
		return p.Engine.Update(ctx, image)
	}
	if wait <= 0 {
		return p.Engine.Update(ctx, "")
	}

	candidate, err := p.Source.WaitForCandidate(ctx, p.Config.GetSourceMode(), wait, waitInterval)
	if err != nil {
		return err
	}
	err = p.Engine.Show(ctx, candidate)
	if !domain.IsImageDecodeError(err) {
		return err
	}

	// unreadable files count as no image, same as the pulled path
	c.logger.Warn("Skipping unreadable image", zap.String("image", candidate.Name), zap.Error(err))
	return p.Engine.Update(ctx, "")
}

// sleep lets the last refresh settle and powers the panel down
func (c *cli) sleep(ctx context.Context, p *app.Pipeline) {
	if !p.Config.UseSimulator() {
		c.settleFunc()(ctx)
	}
	if err := p.Device.Sink.Sleep(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("Failed to put display to sleep", zap.Error(err))
	}
}

func (c *cli) settleFunc() func(context.Context) {
	if c.settle != nil {
		return c.settle
	}
	return func(ctx context.Context) {
		select {
		case <-ctx.Done():
		case <-time.After(panelSettleTime):
		}
	}
}

func (c *cli) applyShutdownPolicy(ctx context.Context, cfg *config.AppConfig) {
	if !cfg.ShutdownAfter || cfg.UseSimulator() {
		return
	}

	newSystem := c.newSystem
	if newSystem == nil {
		newSystem = system.New
	}
	ctl, closeFn := newSystem(c.logger.Named("system"))
	defer func() { _ = closeFn() }()

	scheduled, err := shutdownIfIdle(ctx, c.logger, ctl, cfg.ShutdownDelay)
	if err != nil {
		c.logger.Error("Failed to schedule shutdown", zap.Error(err))
		return
	}
	if scheduled {
		fmt.Fprintf(c.stdout, "Shutdown scheduled in %s. To cancel, run: sudo shutdown -c\n", cfg.ShutdownDelay)
	}
}

// shutdownIfIdle schedules a power off unless someone is logged in remotely
func shutdownIfIdle(ctx context.Context, logger *zap.Logger, ctl domain.SystemControl, delay time.Duration) (bool, error) {
	remote, err := ctl.HasActiveRemoteSessions(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check sessions: %w", err)
	}
	if remote {
		logger.Info("Remote session active, skipping shutdown")
		return false, nil
	}

	if err := ctl.ScheduleShutdown(ctx, delay); err != nil {
		return false, err
	}
	logger.Info("Shutdown scheduled", zap.Duration("delay", delay))
	return true, nil
}

// send displays one image on a panel an earlier process initialized.
// The panel is left awake for the next frame.
func (c *cli) send(ctx context.Context, args []string) int {
	fs := c.flagSet("send")
	o := panelFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(c.stderr, "usage: frame send [flags] [image]")
		return exitUsage
	}

	p, code := c.pipeline(*o, "")
	if p == nil {
		return code
	}
	defer func() { _ = p.Device.Sink.Close() }()

	if err := p.Device.Resume(ctx); err != nil {
		c.logger.Error("Failed to attach to display", zap.Error(err))
		return exitError
	}

	err := p.Engine.Update(ctx, fs.Arg(0))
	switch {
	case errors.Is(err, domain.ErrNoImageAvailable):
		c.logger.Info("No image to display", zap.Error(err))
	case err != nil:
		c.logger.Error("Failed to send image", zap.Error(err))
		return exitError
	}
	return exitOK
}

// initPanel prepares the real panel for send. The emulator has nothing to prepare.
func (c *cli) initPanel(ctx context.Context, args []string) int {
	fs := c.flagSet("init")
	o := panelFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	p, code := c.pipeline(*o, "")
	if p == nil {
		return code
	}
	defer func() { _ = p.Device.Sink.Close() }()

	if p.Config.UseSimulator() {
		c.logger.Error("init is for the real panel only; disable the simulator")
		return exitError
	}

	if err := p.Device.Sink.Init(ctx); err != nil {
		c.logger.Error("Display initialization failed", zap.Error(err))
		return exitError
	}
	if err := p.Engine.Clear(ctx); err != nil {
		c.logger.Error("Failed to clear display", zap.Error(err))
		return exitError
	}
	c.logger.Info("Display initialization complete")
	return exitOK
}

// clearPanel initializes the panel, blanks it and puts it to sleep
func (c *cli) clearPanel(ctx context.Context, args []string) int {
	fs := c.flagSet("clear")
	o := panelFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	p, code := c.pipeline(*o, "")
	if p == nil {
		return code
	}
	defer func() { _ = p.Device.Sink.Close() }()

	if err := p.Device.Sink.Init(ctx); err != nil {
		c.logger.Error("Failed to initialize display", zap.Error(err))
		return exitError
	}
	if err := p.Engine.Clear(ctx); err != nil {
		c.logger.Error("Failed to clear display", zap.Error(err))
		return exitError
	}
	c.sleep(ctx, p)
	return exitOK
}

// request forwards one command to the running daemon and prints its reply
func (c *cli) request(ctx context.Context, args []string) int {
	fs := c.flagSet("request")
	addr := fs.String("addr", "", "daemon address (default from DAEMON_ADDR)")
	timeout := fs.Duration("timeout", requestTimeout, "how long to wait for the reply")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	req, err := daemon.ParseRequest(strings.Join(fs.Args(), " "))
	if err != nil {
		fmt.Fprintf(c.stderr, "usage: frame request [flags] UPDATE [image] | CLEAR (%v)\n", err)
		return exitUsage
	}

	if *addr == "" {
		cfg, err := config.Load(c.logger, config.Overrides{})
		if err != nil {
			c.logger.Error("Failed to load configuration", zap.Error(err))
			return exitError
		}
		*addr = cfg.DaemonAddr
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	resp, err := daemon.Send(ctx, *addr, daemon.FormatRequest(req))
	if err != nil {
		c.logger.Error("Request failed", zap.String("addr", *addr), zap.Error(err))
		return exitError
	}
	fmt.Fprintln(c.stdout, resp)
	if !daemon.IsOK(resp) {
		return exitError
	}
	return exitOK
}

// uploadPhotos copies LOCAL_IMAGE_DIR to GOOGLE_DRIVE_FOLDER_ID
func (c *cli) uploadPhotos(ctx context.Context, args []string) int {
	fs := c.flagSet("upload-photos")
	dir := fs.String("dir", "", "directory to upload (default from LOCAL_IMAGE_DIR)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, up, code := c.uploader(ctx)
	if up == nil {
		return code
	}
	if *dir == "" {
		*dir = cfg.LocalImageDir
	}

	report, err := up.UploadPhotos(ctx, *dir, cfg.DriveFolderID)
	if err != nil {
		c.logger.Error("Photo upload failed", zap.Error(err))
		return exitError
	}
	fmt.Fprintf(c.stdout, "uploaded %d, skipped %d, failed %d\n", report.Uploaded, report.Skipped, report.Failed)
	if report.Failed > 0 {
		return exitError
	}
	return exitOK
}

// uploadLog creates or replaces a log file in GOOGLE_DRIVE_LOG_FOLDER_ID
func (c *cli) uploadLog(ctx context.Context, args []string) int {
	fs := c.flagSet("upload-log")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(c.stderr, "usage: frame upload-log <file>")
		return exitUsage
	}

	cfg, up, code := c.uploader(ctx)
	if up == nil {
		return code
	}

	id, err := up.UploadLog(ctx, fs.Arg(0), cfg.DriveLogFolder)
	if err != nil {
		c.logger.Error("Log upload failed", zap.Error(err))
		return exitError
	}
	fmt.Fprintln(c.stdout, id)
	return exitOK
}

func (c *cli) uploader(ctx context.Context) (*config.AppConfig, *uploader.Uploader, int) {
	cfg, err := config.Load(c.logger, config.Overrides{})
	if err != nil {
		c.logger.Error("Failed to load configuration", zap.Error(err))
		return nil, nil, exitError
	}
	client, err := gdrive.NewClient(ctx, c.logger.Named("gdrive"), cfg.ServiceAccount)
	if err != nil {
		c.logger.Error("Failed to connect to Google Drive", zap.Error(err))
		return nil, nil, exitError
	}
	return cfg, uploader.New(c.logger.Named("uploader"), client, afero.NewOsFs()), exitOK
}
