package system

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// CommandRunner executes a host command and returns its combined output
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Controller implements domain.SystemControl. It talks to logind when a
// client is available and shells out to shutdown(8) and who(1) otherwise.
type Controller struct {
	logger *zap.Logger
	logind LogindClient
	run    CommandRunner
	clock  clockwork.Clock
}

// NewController creates a controller. logind may be nil.
func NewController(logger *zap.Logger, logind LogindClient, run CommandRunner, clock clockwork.Clock) *Controller {
	if run == nil {
		run = ExecRunner
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Controller{
		logger: logger,
		logind: logind,
		run:    run,
		clock:  clock,
	}
}

// ScheduleShutdown powers the host off after delay; zero means now
func (c *Controller) ScheduleShutdown(ctx context.Context, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	at := c.clock.Now().Add(delay)

	if c.logind != nil {
		err := c.logind.ScheduleShutdown(shutdownPowerOff, uint64(at.UnixMicro()))
		if err == nil {
			c.logger.Info("Shutdown scheduled", zap.Time("at", at), zap.String("cancel", "shutdown -c"))
			return nil
		}
		c.logger.Warn("logind shutdown failed, falling back to shutdown(8)", zap.Error(err))
	}

	when := "now"
	if delay > 0 {
		// shutdown(8) only accepts whole minutes
		minutes := int((delay + time.Minute - 1) / time.Minute)
		when = "+" + strconv.Itoa(minutes)
	}
	if out, err := c.run(ctx, "shutdown", "-h", when); err != nil {
		return fmt.Errorf("failed to schedule shutdown: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}
	c.logger.Info("Shutdown scheduled", zap.String("when", when), zap.String("cancel", "shutdown -c"))
	return nil
}

// CancelShutdown aborts a pending scheduled shutdown
func (c *Controller) CancelShutdown(ctx context.Context) error {
	if c.logind != nil {
		cancelled, err := c.logind.CancelScheduledShutdown()
		if err == nil {
			c.logger.Info("Scheduled shutdown cancelled", zap.Bool("wasPending", cancelled))
			return nil
		}
		c.logger.Warn("logind cancel failed, falling back to shutdown(8)", zap.Error(err))
	}

	if out, err := c.run(ctx, "shutdown", "-c"); err != nil {
		return fmt.Errorf("failed to cancel shutdown: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}
	c.logger.Info("Scheduled shutdown cancelled")
	return nil
}

// HasActiveRemoteSessions reports whether a remote login (e.g. SSH) is open
func (c *Controller) HasActiveRemoteSessions(ctx context.Context) (bool, error) {
	if c.logind != nil {
		remote, err := c.remoteSessionsFromLogind()
		if err == nil {
			return remote, nil
		}
		c.logger.Warn("logind session listing failed, falling back to who(1)", zap.Error(err))
	}

	out, err := c.run(ctx, "who")
	if err != nil {
		return false, fmt.Errorf("failed to list sessions: %w", err)
	}
	return parseWho(out), nil
}

func (c *Controller) remoteSessionsFromLogind() (bool, error) {
	sessions, err := c.logind.ListSessions()
	if err != nil {
		return false, err
	}

	for _, s := range sessions {
		remote, err := c.sessionBool(s.Path, "Remote")
		if err != nil {
			return false, err
		}
		if !remote {
			continue
		}

		v, err := c.logind.GetSessionProperty(s.Path, "State")
		if err != nil {
			return false, err
		}
		if state, _ := v.Value().(string); state == "closing" {
			continue
		}

		c.logger.Info("Remote session active", zap.String("session", s.ID), zap.String("user", s.User))
		return true, nil
	}
	return false, nil
}

func (c *Controller) sessionBool(path dbus.ObjectPath, prop string) (bool, error) {
	v, err := c.logind.GetSessionProperty(path, prop)
	if err != nil {
		return false, err
	}
	b, ok := v.Value().(bool)
	if !ok {
		return false, errors.New("unexpected type for session property " + prop)
	}
	return b, nil
}

// parseWho reports whether any who(1) line carries a remote host in
// parentheses. Local X displays such as "(:0)" do not count.
func parseWho(out []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		open := strings.LastIndexByte(line, '(')
		end := strings.LastIndexByte(line, ')')
		if open < 0 || end <= open+1 {
			continue
		}
		host := line[open+1 : end]
		if !strings.HasPrefix(host, ":") {
			return true
		}
	}
	return false
}
