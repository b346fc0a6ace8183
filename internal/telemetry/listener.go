package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/genricoloni/inkframe/internal/fetcher"
	"github.com/genricoloni/inkframe/internal/metrics"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Action is what a remote command asks for
type Action string

const (
	ActionUpdate   Action = "update"
	ActionClear    Action = "clear"
	ActionShutdown Action = "shutdown"
	ActionSet      Action = "set"
	ActionUnknown  Action = "unknown"
)

// Command is a parsed payload of the command topic
type Command struct {
	Action Action
	// Image is the path or URL to show; empty picks a random image
	Image string
	// Param and Value are set for ActionSet
	Param string
	Value string
}

// ParseCommand parses a command payload. Image names are resolved against imageDir.
func ParseCommand(payload, imageDir string) Command {
	payload = strings.TrimSpace(payload)

	if name, ok := strings.CutPrefix(payload, "set_image:"); ok {
		return Command{Action: ActionUpdate, Image: resolveImage(strings.TrimSpace(name), imageDir)}
	}

	verb, rest, _ := strings.Cut(payload, " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(verb) {
	case "update", "display":
		if rest == "" {
			return Command{Action: ActionUpdate}
		}
		return Command{Action: ActionUpdate, Image: resolveImage(rest, imageDir)}
	case "clear":
		return Command{Action: ActionClear}
	case "shutdown":
		return Command{Action: ActionShutdown}
	case "set":
		param, value, ok := strings.Cut(rest, " ")
		if !ok {
			return Command{Action: ActionUnknown}
		}
		return Command{Action: ActionSet, Param: param, Value: strings.TrimSpace(value)}
	default:
		return Command{Action: ActionUnknown}
	}
}

func resolveImage(name, imageDir string) string {
	if name == "" || fetcher.IsURL(name) || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(imageDir, name)
}

// SendFunc delivers a daemon command line and returns its acknowledgment
type SendFunc func(ctx context.Context, command string) (string, error)

// ParamSetter changes power manager parameters
type ParamSetter interface {
	Set(ctx context.Context, param, value string) error
}

// CommandResult is published after each handled command
type CommandResult struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
}

// Listener executes commands received on <prefix>/command one at a time
type Listener struct {
	logger   *zap.Logger
	client   mqtt.Client
	prefix   string
	imageDir string
	fs       afero.Fs
	send     SendFunc
	system   domain.SystemControl
	setter   ParamSetter
	limiter  *rate.Limiter
	queue    chan string
	rejected chan rejection
}

// rejection is a command turned away before it reached the queue
type rejection struct {
	payload string
	reason  error
}

// NewListener creates a listener. Commands beyond one per second (burst 3) are rejected.
func NewListener(
	logger *zap.Logger,
	prefix string,
	imageDir string,
	fs afero.Fs,
	send SendFunc,
	system domain.SystemControl,
	setter ParamSetter,
) *Listener {
	return &Listener{
		logger:   logger,
		prefix:   prefix,
		imageDir: imageDir,
		fs:       fs,
		send:     send,
		system:   system,
		setter:   setter,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 3),
		queue:    make(chan string, 8),
		rejected: make(chan rejection, 16),
	}
}

// SetClient attaches the client used for result messages
func (l *Listener) SetClient(client mqtt.Client) {
	l.client = client
}

// CommandTopic returns the subscribed topic
func (l *Listener) CommandTopic() string {
	return l.prefix + "/command"
}

// ResultTopic returns where command results are published
func (l *Listener) ResultTopic() string {
	return l.prefix + "/command_result"
}

// OnConnect subscribes to the command topic; it runs after every reconnect
func (l *Listener) OnConnect(client mqtt.Client) {
	token := client.Subscribe(l.CommandTopic(), 1, l.HandleMessage)
	if token.Wait() && token.Error() != nil {
		l.logger.Error("Failed to subscribe to command topic", zap.String("topic", l.CommandTopic()), zap.Error(token.Error()))
		return
	}
	l.logger.Info("Listening for commands", zap.String("topic", l.CommandTopic()))
}

// HandleMessage is the paho callback. It only queues; Run does the work,
// including publishing results, so no token is awaited on the router goroutine.
func (l *Listener) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := strings.TrimSpace(string(msg.Payload()))
	l.logger.Info("Received MQTT command", zap.String("topic", msg.Topic()), zap.String("payload", payload))

	if !l.limiter.Allow() {
		l.logger.Warn("Command rate limited", zap.String("payload", payload))
		metrics.RemoteCommands.WithLabelValues("any", metrics.ResultLimited).Inc()
		l.reject(payload, errors.New("rate limited"))
		return
	}

	select {
	case l.queue <- payload:
	default:
		l.logger.Warn("Command queue full, dropping", zap.String("payload", payload))
		l.reject(payload, errors.New("busy"))
	}
}

func (l *Listener) reject(payload string, reason error) {
	select {
	case l.rejected <- rejection{payload: payload, reason: reason}:
	default:
		l.logger.Warn("Too many rejected commands, result not reported", zap.String("payload", payload))
	}
}

// Run executes queued commands and reports every outcome until ctx is done
func (l *Listener) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-l.rejected:
			l.publishResult(ctx, r.payload, r.reason)
		case payload := <-l.queue:
			err := l.Execute(ctx, payload)
			l.publishResult(ctx, payload, err)
		}
	}
}

// Execute runs one command payload
func (l *Listener) Execute(ctx context.Context, payload string) error {
	cmd := ParseCommand(payload, l.imageDir)
	err := l.execute(ctx, cmd)

	result := metrics.ResultOK
	switch {
	case cmd.Action == ActionUnknown:
		result = metrics.ResultUnknown
	case err != nil:
		result = metrics.ResultError
	}
	metrics.RemoteCommands.WithLabelValues(string(cmd.Action), result).Inc()

	if err != nil {
		l.logger.Warn("Command failed", zap.String("payload", payload), zap.Error(err))
	}
	return err
}

func (l *Listener) execute(ctx context.Context, cmd Command) error {
	switch cmd.Action {
	case ActionUpdate:
		line := string(domain.VerbUpdate)
		if cmd.Image != "" {
			if !fetcher.IsURL(cmd.Image) {
				if ok, _ := afero.Exists(l.fs, cmd.Image); !ok {
					return fmt.Errorf("image not found: %s", cmd.Image)
				}
			}
			line += " " + cmd.Image
		}
		return l.daemon(ctx, line)
	case ActionClear:
		return l.daemon(ctx, string(domain.VerbClear))
	case ActionShutdown:
		l.logger.Info("Shutting down system via MQTT")
		return l.system.ScheduleShutdown(ctx, 0)
	case ActionSet:
		return l.setter.Set(ctx, cmd.Param, cmd.Value)
	default:
		return domain.ErrUnknownCommand
	}
}

func (l *Listener) daemon(ctx context.Context, line string) error {
	resp, err := l.send(ctx, line)
	if err != nil {
		return err
	}
	if resp != "OK" {
		if resp == "" {
			return errors.New("daemon closed the connection without a reply")
		}
		return errors.New(resp)
	}
	return nil
}

func (l *Listener) publishResult(ctx context.Context, payload string, err error) {
	if l.client == nil {
		return
	}

	res := CommandResult{ID: uuid.NewString(), Command: payload, Status: "ok"}
	if err != nil {
		res.Status = "error"
		res.Detail = err.Error()
	}
	data, mErr := json.Marshal(res)
	if mErr != nil {
		return
	}
	if err := waitToken(ctx, l.client.Publish(l.ResultTopic(), 1, false, data)); err != nil {
		l.logger.Warn("Failed to publish command result", zap.Error(err))
	}
}
