//go:build !linux

package system

import (
	"context"
	"fmt"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"go.uber.org/zap"
)

// StubControl is a placeholder for unsupported platforms (macOS, Windows, etc.)
type StubControl struct {
	logger *zap.Logger
}

// New creates a stub controller for unsupported platforms
func New(logger *zap.Logger) (domain.SystemControl, func() error) {
	logger.Warn("Host control is not implemented for this platform")
	return &StubControl{logger: logger}, func() error { return nil }
}

// ScheduleShutdown returns an error indicating the platform is not supported
func (s *StubControl) ScheduleShutdown(ctx context.Context, delay time.Duration) error {
	return fmt.Errorf("shutdown not implemented for this platform")
}

// CancelShutdown returns an error indicating the platform is not supported
func (s *StubControl) CancelShutdown(ctx context.Context) error {
	return fmt.Errorf("shutdown not implemented for this platform")
}

// HasActiveRemoteSessions returns an error indicating the platform is not supported
func (s *StubControl) HasActiveRemoteSessions(ctx context.Context) (bool, error) {
	return false, fmt.Errorf("session listing not implemented for this platform")
}
