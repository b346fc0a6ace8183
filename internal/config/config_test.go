package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"IMAGE_SOURCE", "EPD_DISPLAY", "DISPLAY", "USE_SIMULATOR", "SHUTDOWN_AFTER_RUN",
		"SHUTDOWN_DELAY_MINUTES", "LOCAL_IMAGE_DIR", "DISPLAY_LOG_FILE", "DITHER", "PROFILES_FILE",
		"GOOGLE_DRIVE_FOLDER_ID", "GOOGLE_DRIVE_LOG_FOLDER_ID", "GOOGLE_SERVICE_ACCOUNT",
		"DAEMON_ADDR", "DAEMON_QUEUE_SIZE", "DAEMON_REQUEST_TIMEOUT_SECONDS", "EMULATOR_ADDR",
		"EMULATOR_REFRESH_SECONDS", "EMULATOR_OUTPUT", "BRIDGE_METRICS_ADDR", "MQTT_BROKER", "MQTT_PORT", "MQTT_USERNAME",
		"MQTT_PASSWORD", "MQTT_TOPIC_PREFIX", "PISUGAR_ADDR", "TELEMETRY_INTERVAL_SECONDS",
		"TELEMETRY_RESYNC_EVERY", "LOG_LEVEL", "LOG_FILE_PATH",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(zap.NewNop(), Overrides{})
	require.NoError(t, err)

	assert.Equal(t, domain.SourceLocal, cfg.Source)
	assert.Equal(t, HardwareModel, cfg.DisplayModel)
	assert.Equal(t, domain.DisplayProfile{ModelID: HardwareModel, Width: 600, Height: 448}, cfg.Profile)
	assert.Equal(t, "/mnt/photos", cfg.LocalImageDir)
	assert.Equal(t, "0.0.0.0:9999", cfg.DaemonAddr)
	assert.Equal(t, 5*time.Minute, cfg.ShutdownDelay)
	assert.Equal(t, time.Minute, cfg.Telemetry.Interval)
	assert.Equal(t, "tcp://homeassistant.local:1883", cfg.MQTT.BrokerURL())
	assert.False(t, cfg.UseSimulator())
}

func TestLoad_SimulatorSwapsModelKey(t *testing.T) {
	tests := []struct {
		name      string
		display   string
		simulator bool
		want      string
	}{
		{name: "hardware key under simulator", display: "epd5in65f", simulator: true, want: "epd5in65"},
		{name: "emulator key on hardware", display: "epd5in65", simulator: false, want: "epd5in65f"},
		{name: "other models untouched", display: "epd7in5", simulator: true, want: "epd7in5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := Load(zap.NewNop(), Overrides{Display: tt.display, Simulator: tt.simulator})
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.DisplayModel)
			assert.Equal(t, tt.want, cfg.GetProfile().ModelID)
		})
	}
}

func TestLoad_X11DisplayIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISPLAY", ":0")

	cfg, err := Load(zap.NewNop(), Overrides{})
	require.NoError(t, err)
	assert.Equal(t, HardwareModel, cfg.DisplayModel)
}

func TestLoad_DriveRequiresFolder(t *testing.T) {
	clearEnv(t)
	t.Setenv("IMAGE_SOURCE", "drive")

	_, err := Load(zap.NewNop(), Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DriveFolderID")

	t.Setenv("GOOGLE_DRIVE_FOLDER_ID", "folder")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT", "/etc/frame/sa.json")
	cfg, err := Load(zap.NewNop(), Overrides{})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceDrive, cfg.GetSourceMode())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "unknown source", key: "IMAGE_SOURCE", val: "ftp"},
		{name: "unknown dither", key: "DITHER", val: "ordered"},
		{name: "bad daemon addr", key: "DAEMON_ADDR", val: "nowhere"},
		{name: "unknown model", key: "EPD_DISPLAY", val: "epd99in9"},
		{name: "bad bridge metrics addr", key: "BRIDGE_METRICS_ADDR", val: "metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load(zap.NewNop(), Overrides{})
			assert.Error(t, err)
		})
	}
}

func TestLoad_ProfilesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models:\n  custom13in3:\n    width: 1600\n    height: 1200\n"), 0o600))
	t.Setenv("PROFILES_FILE", path)
	t.Setenv("EPD_DISPLAY", "custom13in3")

	cfg, err := Load(zap.NewNop(), Overrides{})
	require.NoError(t, err)
	assert.Equal(t, 1600, cfg.Profile.Width)
	assert.Equal(t, 1200, cfg.Profile.Height)
}

func TestProfileRegistry(t *testing.T) {
	r := NewProfileRegistry()
	assert.Len(t, r.Models(), 20)

	for _, p := range r.Profiles() {
		assert.Positive(t, p.Width, p.ModelID)
		assert.Positive(t, p.Height, p.ModelID)
	}

	_, err := r.Lookup("missing")
	assert.Error(t, err)

	assert.Error(t, r.Register("broken", 0, 10))
	assert.Error(t, r.Register("", 10, 10))
	require.NoError(t, r.Register("epd7in5", 640, 384))
	p, err := r.Lookup("epd7in5")
	require.NoError(t, err)
	assert.Equal(t, 640, p.Width)
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "TRUE")
	assert.True(t, getEnvAsBool("TEST_BOOL", false))

	t.Setenv("TEST_BOOL", "yes")
	assert.False(t, getEnvAsBool("TEST_BOOL", true))

	t.Setenv("TEST_BOOL", "")
	assert.True(t, getEnvAsBool("TEST_BOOL", true))
}
