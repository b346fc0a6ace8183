package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	defaultLocalImageDir = "/mnt/photos"
	defaultDisplayModel  = HardwareModel
	defaultDaemonAddr    = "0.0.0.0:9999"
	defaultEmulatorAddr  = "127.0.0.1:8080"
	defaultDisplayLog    = "/mnt/photos/epaper_logs.txt"
	defaultMQTTBroker    = "homeassistant.local"
	defaultTopicPrefix   = "epaper_frame"
	defaultPiSugarAddr   = "127.0.0.1:8423"

	secretsFile = ".secrets"
)

// Overrides carries command line values that win over the environment
type Overrides struct {
	Source    string
	Display   string
	Simulator bool
}

// AppConfig holds application configuration.
// It is built once at startup and passed to the components that need it.
type AppConfig struct {
	Source          domain.SourceMode `validate:"oneof=local drive"`
	DisplayModel    string            `validate:"required"`
	Profile         domain.DisplayProfile
	Simulator       bool
	ShutdownAfter   bool
	ShutdownDelay   time.Duration `validate:"min=0"`
	LocalImageDir   string        `validate:"required"`
	DisplayLogFile  string        `validate:"required"`
	Dither          string        `validate:"oneof=floyd-steinberg none"`
	ProfilesFile    string
	DriveFolderID   string `validate:"required_if=Source drive"`
	DriveLogFolder  string
	ServiceAccount  string `validate:"required_if=Source drive"`
	DaemonAddr      string `validate:"required,hostname_port"`
	QueueSize       int    `validate:"min=1"`
	RequestTimeout  time.Duration
	EmulatorAddr    string        `validate:"required,hostname_port"`
	EmulatorRefresh time.Duration `validate:"min=0"`
	EmulatorOutput  string
	// BridgeMetrics serves /metrics from the telemetry bridge when set
	BridgeMetrics   string `validate:"omitempty,hostname_port"`

	MQTT      MQTTConfig
	Telemetry TelemetryConfig

	LogLevel    string `validate:"oneof=debug info warn error"`
	LogFilePath string
}

// MQTTConfig holds the home-automation bus settings
type MQTTConfig struct {
	Broker      string `validate:"required"`
	Port        int    `validate:"min=1,max=65535"`
	Username    string
	Password    string
	TopicPrefix string `validate:"required"`
}

// TelemetryConfig holds the poller settings
type TelemetryConfig struct {
	PiSugarAddr string        `validate:"required,hostname_port"`
	Interval    time.Duration `validate:"min=1s"`
	ResyncEvery int           `validate:"min=1"`
}

// NewAppConfig creates a new application configuration instance from the environment
func NewAppConfig(logger *zap.Logger) (*AppConfig, error) {
	return Load(logger, Overrides{})
}

// LoadEnvFiles loads .env and .secrets from the working directory when
// present. Variables already set in the environment win.
func LoadEnvFiles() error {
	_ = godotenv.Load()
	if _, err := os.Stat(secretsFile); err == nil {
		if err := godotenv.Load(secretsFile); err != nil {
			return fmt.Errorf("failed to load %s: %w", secretsFile, err)
		}
	}
	return nil
}

// Load reads .env and .secrets (both optional), the environment and the
// given overrides, then validates the result
func Load(logger *zap.Logger, o Overrides) (*AppConfig, error) {
	if err := LoadEnvFiles(); err != nil {
		logger.Warn("Failed to load secrets file", zap.Error(err))
	}

	cfg := &AppConfig{
		Source:          domain.SourceMode(getEnv("IMAGE_SOURCE", string(domain.SourceLocal))),
		DisplayModel:    displayModelFromEnv(),
		Simulator:       getEnvAsBool("USE_SIMULATOR", false),
		ShutdownAfter:   getEnvAsBool("SHUTDOWN_AFTER_RUN", false),
		ShutdownDelay:   time.Duration(getEnvAsInt("SHUTDOWN_DELAY_MINUTES", 5)) * time.Minute,
		LocalImageDir:   expandPath(getEnv("LOCAL_IMAGE_DIR", defaultLocalImageDir)),
		DisplayLogFile:  expandPath(getEnv("DISPLAY_LOG_FILE", defaultDisplayLog)),
		Dither:          strings.ToLower(getEnv("DITHER", "floyd-steinberg")),
		ProfilesFile:    expandPath(getEnv("PROFILES_FILE", "")),
		DriveFolderID:   getEnv("GOOGLE_DRIVE_FOLDER_ID", ""),
		DriveLogFolder:  getEnv("GOOGLE_DRIVE_LOG_FOLDER_ID", ""),
		ServiceAccount:  expandPath(getEnv("GOOGLE_SERVICE_ACCOUNT", "")),
		DaemonAddr:      getEnv("DAEMON_ADDR", defaultDaemonAddr),
		QueueSize:       getEnvAsInt("DAEMON_QUEUE_SIZE", 16),
		RequestTimeout:  time.Duration(getEnvAsInt("DAEMON_REQUEST_TIMEOUT_SECONDS", 0)) * time.Second,
		EmulatorAddr:    getEnv("EMULATOR_ADDR", defaultEmulatorAddr),
		EmulatorRefresh: time.Duration(getEnvAsInt("EMULATOR_REFRESH_SECONDS", 5)) * time.Second,
		EmulatorOutput:  expandPath(getEnv("EMULATOR_OUTPUT", "")),
		BridgeMetrics:   getEnv("BRIDGE_METRICS_ADDR", ""),
		MQTT: MQTTConfig{
			Broker:      getEnv("MQTT_BROKER", defaultMQTTBroker),
			Port:        getEnvAsInt("MQTT_PORT", 1883),
			Username:    getEnv("MQTT_USERNAME", ""),
			Password:    getEnv("MQTT_PASSWORD", ""),
			TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", defaultTopicPrefix),
		},
		Telemetry: TelemetryConfig{
			PiSugarAddr: getEnv("PISUGAR_ADDR", defaultPiSugarAddr),
			Interval:    time.Duration(getEnvAsInt("TELEMETRY_INTERVAL_SECONDS", 60)) * time.Second,
			ResyncEvery: getEnvAsInt("TELEMETRY_RESYNC_EVERY", 10),
		},
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFilePath: expandPath(getEnv("LOG_FILE_PATH", "")),
	}

	if o.Source != "" {
		cfg.Source = domain.SourceMode(o.Source)
	}
	if o.Display != "" {
		cfg.DisplayModel = o.Display
	}
	if o.Simulator {
		cfg.Simulator = true
	}
	cfg.DisplayModel = normalizeModel(cfg.DisplayModel, cfg.Simulator)

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	registry := NewProfileRegistry()
	if cfg.ProfilesFile != "" {
		if err := registry.LoadProfilesFile(cfg.ProfilesFile); err != nil {
			return nil, err
		}
	}
	profile, err := registry.Lookup(cfg.DisplayModel)
	if err != nil {
		return nil, err
	}
	cfg.Profile = profile

	logger.Info("Configuration loaded",
		zap.String("source", string(cfg.Source)),
		zap.String("display", cfg.DisplayModel),
		zap.Int("width", profile.Width),
		zap.Int("height", profile.Height),
		zap.Bool("simulator", cfg.Simulator),
		zap.String("localImageDir", cfg.LocalImageDir))

	return cfg, nil
}

// GetSourceMode returns where random candidates are pulled from
func (c *AppConfig) GetSourceMode() domain.SourceMode {
	return c.Source
}

// GetProfile returns the active display profile
func (c *AppConfig) GetProfile() domain.DisplayProfile {
	return c.Profile
}

// GetLocalImageDir returns the local photo directory
func (c *AppConfig) GetLocalImageDir() string {
	return c.LocalImageDir
}

// UseSimulator reports whether the emulator replaces the real panel
func (c *AppConfig) UseSimulator() bool {
	return c.Simulator
}

// BrokerURL returns the MQTT broker in tcp://host:port form
func (c MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Broker, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

// displayModelFromEnv reads EPD_DISPLAY, then DISPLAY when it names a panel.
// DISPLAY is shared with X11, so values like ":0" are ignored.
func displayModelFromEnv() string {
	if model := os.Getenv("EPD_DISPLAY"); model != "" {
		return model
	}
	if model := os.Getenv("DISPLAY"); strings.HasPrefix(model, "epd") {
		return model
	}
	return defaultDisplayModel
}

// expandPath expands environment variables and a leading ~
func expandPath(p string) string {
	p = os.ExpandEnv(p)
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	return p
}
