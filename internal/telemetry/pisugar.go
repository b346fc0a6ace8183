package telemetry

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"go.uber.org/zap"
)

// Unknown is reported for values the device could not provide
const Unknown = "Unknown"

const pisugarTimeout = 3 * time.Second

// PiSugarKeys lists the values read from the PiSugar power manager, in publish order
var PiSugarKeys = []string{
	"firmware_version",
	"battery",
	"battery_i",
	"battery_v",
	"battery_charging",
	"model",
	"battery_led_amount",
	"battery_power_plugged",
	"battery_charging_range",
	"battery_allow_charging",
	"battery_output_enabled",
	"rtc_time",
	"rtc_alarm_enabled",
	"rtc_alarm_time",
	"alarm_repeat",
	"safe_shutdown_level",
	"safe_shutdown_delay",
	"auth_username",
	"anti_mistouch",
	"soft_poweroff",
	"temperature",
}

// Labels are the human readable sensor names shown in Home Assistant
var Labels = map[string]string{
	"firmware_version":       "Firmware Version",
	"battery":                "Battery Level (%)",
	"battery_i":              "Battery Current (A)",
	"battery_v":              "Battery Voltage (V)",
	"battery_charging":       "Battery Charging",
	"model":                  "PiSugar Model",
	"battery_led_amount":     "Battery LED Count",
	"battery_power_plugged":  "Battery USB Plugged",
	"battery_charging_range": "Battery Charging Range (%)",
	"battery_allow_charging": "Battery Allow Charging",
	"battery_output_enabled": "Battery Output Enabled",
	"rtc_time":               "RTC Clock Time",
	"rtc_alarm_enabled":      "RTC Alarm Enabled",
	"rtc_alarm_time":         "RTC Alarm Time",
	"alarm_repeat":           "RTC Alarm Repeat (Weekdays)",
	"safe_shutdown_level":    "Safe Shutdown Level (%)",
	"safe_shutdown_delay":    "Safe Shutdown Delay (s)",
	"auth_username":          "HTTP Auth Username",
	"anti_mistouch":          "Anti-Mistouch Protection",
	"soft_poweroff":          "Software Poweroff Enabled",
	"temperature":            "Device Temperature (°C)",
	"last_image":             "Last Image Displayed",
	"uptime":                 "Uptime (s)",
	"load1":                  "Load Average (1m)",
	"memory_used":            "Memory Used (%)",
	"disk_used":              "Photo Disk Used (%)",
}

// settable lists the device parameters a remote "set" command may change
var settable = map[string]bool{
	"battery_charging_range": true,
	"allow_charging":         true,
	"safe_shutdown_level":    true,
	"safe_shutdown_delay":    true,
	"anti_mistouch":          true,
	"soft_poweroff":          true,
}

// PiSugarSensor queries the pisugar-server text protocol over TCP
type PiSugarSensor struct {
	logger *zap.Logger
	addr   string
}

// NewPiSugarSensor creates a sensor for the server at addr (usually 127.0.0.1:8423)
func NewPiSugarSensor(logger *zap.Logger, addr string) *PiSugarSensor {
	return &PiSugarSensor{
		logger: logger,
		addr:   addr,
	}
}

// Name implements domain.Sensor
func (s *PiSugarSensor) Name() string {
	return "pisugar"
}

// Collect implements domain.Sensor. Keys that cannot be read are reported as Unknown.
func (s *PiSugarSensor) Collect(ctx context.Context) (domain.TelemetrySnapshot, error) {
	snapshot := make(domain.TelemetrySnapshot, len(PiSugarKeys))
	failures := 0
	for _, key := range PiSugarKeys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := s.query(ctx, "get "+key)
		if err != nil {
			failures++
			s.logger.Debug("PiSugar query failed", zap.String("key", key), zap.Error(err))
		}
		snapshot[key] = ParseResponse(resp)
	}

	if failures == len(PiSugarKeys) {
		s.logger.Warn("PiSugar server unreachable", zap.String("addr", s.addr))
	}
	return snapshot, nil
}

// Set changes one device parameter
func (s *PiSugarSensor) Set(ctx context.Context, param, value string) error {
	if !settable[param] {
		return fmt.Errorf("parameter %q cannot be set", param)
	}
	if value == "" || strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("invalid value for %s", param)
	}

	resp, err := s.query(ctx, fmt.Sprintf("set_%s %s", param, value))
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", param, err)
	}
	if !strings.Contains(resp, "done") {
		return fmt.Errorf("failed to set %s: %s", param, strings.TrimSpace(resp))
	}

	s.logger.Info("PiSugar parameter set", zap.String("param", param), zap.String("value", value))
	return nil
}

// query sends one command on a fresh connection and returns the first reply line
func (s *PiSugarSensor) query(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pisugarTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return "", err
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

// ParseResponse extracts the value from a "key: value" reply
func ParseResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	if resp == "" || strings.Contains(resp, "Invalid request") {
		return Unknown
	}
	if _, value, ok := strings.Cut(resp, ": "); ok {
		return strings.TrimSpace(value)
	}
	return resp
}
