package telemetry

import (
	"context"
	"strconv"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

// HostSensor reports basic health of the Raspberry Pi itself
type HostSensor struct {
	logger   *zap.Logger
	imageDir string
}

// NewHostSensor creates a sensor measuring disk usage of imageDir
func NewHostSensor(logger *zap.Logger, imageDir string) *HostSensor {
	return &HostSensor{
		logger:   logger,
		imageDir: imageDir,
	}
}

// Name implements domain.Sensor
func (s *HostSensor) Name() string {
	return "host"
}

// Collect implements domain.Sensor. Individual readings that fail are reported as Unknown.
func (s *HostSensor) Collect(ctx context.Context) (domain.TelemetrySnapshot, error) {
	snapshot := domain.TelemetrySnapshot{
		"uptime":      Unknown,
		"load1":       Unknown,
		"memory_used": Unknown,
		"disk_used":   Unknown,
	}

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		snapshot["uptime"] = strconv.FormatUint(uptime, 10)
	} else {
		s.logger.Debug("Failed to read uptime", zap.Error(err))
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		snapshot["load1"] = formatFloat(avg.Load1)
	} else {
		s.logger.Debug("Failed to read load average", zap.Error(err))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snapshot["memory_used"] = formatFloat(vm.UsedPercent)
	} else {
		s.logger.Debug("Failed to read memory usage", zap.Error(err))
	}

	if usage, err := disk.UsageWithContext(ctx, s.imageDir); err == nil {
		snapshot["disk_used"] = formatFloat(usage.UsedPercent)
	} else {
		s.logger.Debug("Failed to read disk usage", zap.String("path", s.imageDir), zap.Error(err))
	}

	return snapshot, ctx.Err()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
