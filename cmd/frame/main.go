package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/genricoloni/inkframe/internal/config"
	"github.com/genricoloni/inkframe/internal/logging"
	"go.uber.org/zap"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const usage = `usage: frame <command> [flags]

commands:
  show           init, clear and display one image, then sleep the panel
  send           display one image on an already initialized panel
  init           initialize and clear the panel
  clear          clear the panel to white
  request        send a command to the running daemon
  upload-photos  copy local photos to the Drive folder
  upload-log     upload a log file to the Drive log folder
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run dispatches one subcommand and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(stderr, "failed to create logger: %v\n", err)
		return exitError
	}
	defer func() { _ = logger.Sync() }()

	c := &cli{logger: logger, stdout: stdout, stderr: stderr}
	switch args[0] {
	case "show":
		return c.show(ctx, args[1:])
	case "send":
		return c.send(ctx, args[1:])
	case "init":
		return c.initPanel(ctx, args[1:])
	case "clear":
		return c.clearPanel(ctx, args[1:])
	case "request":
		return c.request(ctx, args[1:])
	case "upload-photos":
		return c.uploadPhotos(ctx, args[1:])
	case "upload-log":
		return c.uploadLog(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return exitUsage
	}
}

// newLogger creates a new zap logger instance from LOG_LEVEL and LOG_FILE_PATH
func newLogger() (*zap.Logger, error) {
	_ = config.LoadEnvFiles()
	return logging.New(logging.Options{
		Level:    os.Getenv("LOG_LEVEL"),
		FilePath: os.Getenv("LOG_FILE_PATH"),
	})
}
