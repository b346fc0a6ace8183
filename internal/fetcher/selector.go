package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Selector implements domain.ImageSource on top of the local, Drive and URL sources
type Selector struct {
	logger *zap.Logger
	local  *LocalSource
	drive  *DriveSource
	web    *HTTPFetcher
	clock  clockwork.Clock
}

// NewSelector creates a selector. drive may be nil when no Drive folder is configured.
func NewSelector(logger *zap.Logger, local *LocalSource, drive *DriveSource, web *HTTPFetcher, clock clockwork.Clock) *Selector {
	return &Selector{
		logger: logger,
		local:  local,
		drive:  drive,
		web:    web,
		clock:  clock,
	}
}

// NextCandidate implements domain.ImageSource. Drive mode falls back to the
// local directory when the folder is empty or the API fails.
func (s *Selector) NextCandidate(ctx context.Context, mode domain.SourceMode) (domain.ImageCandidate, error) {
	if mode == domain.SourceDrive {
		if s.drive == nil {
			s.logger.Warn("Drive source not configured, using local images")
		} else {
			c, err := s.drive.Candidate(ctx)
			if err == nil {
				return c, nil
			}
			if ctx.Err() != nil {
				return domain.ImageCandidate{}, ctx.Err()
			}
			s.logger.Warn("Drive source unavailable, falling back to local images", zap.Error(err))
		}
	}
	return s.local.Candidate(ctx)
}

// Resolve implements domain.ImageSource
func (s *Selector) Resolve(ctx context.Context, arg string) (domain.ImageCandidate, error) {
	if IsURL(arg) {
		c, err := s.web.Candidate(ctx, arg)
		if err != nil {
			return domain.ImageCandidate{}, fmt.Errorf("failed to fetch %s: %w", arg, err)
		}
		return c, nil
	}
	return s.local.Resolve(arg)
}

// Load implements domain.ImageSource
func (s *Selector) Load(_ context.Context, c domain.ImageCandidate) ([]byte, error) {
	switch c.Kind {
	case domain.CandidateStream:
		return c.Data, nil
	case domain.CandidatePath:
		return s.local.Read(c.Path)
	default:
		return nil, fmt.Errorf("unsupported candidate kind: %s", c.Kind)
	}
}

// WaitForCandidate polls NextCandidate until an image shows up or total elapses.
// The frame boots before the USB stick is always mounted.
func (s *Selector) WaitForCandidate(ctx context.Context, mode domain.SourceMode, total, interval time.Duration) (domain.ImageCandidate, error) {
	deadline := s.clock.Now().Add(total)
	for {
		c, err := s.NextCandidate(ctx, mode)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, domain.ErrNoImageAvailable) {
			return domain.ImageCandidate{}, err
		}

		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			return domain.ImageCandidate{}, domain.ErrNoImageAvailable
		}
		s.logger.Info("No images yet, waiting", zap.Duration("retryIn", interval), zap.Duration("remaining", remaining))

		select {
		case <-ctx.Done():
			return domain.ImageCandidate{}, ctx.Err()
		case <-s.clock.After(min(interval, remaining)):
		}
	}
}
