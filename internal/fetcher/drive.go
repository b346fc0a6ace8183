package fetcher

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/genricoloni/inkframe/internal/gdrive"
	"go.uber.org/zap"
)

const _maxDriveImageSize = 20 * 1024 * 1024 // 20 MB

// DriveSource picks images from a Google Drive folder
type DriveSource struct {
	logger   *zap.Logger
	service  gdrive.Service
	folderID string
	pick     func(n int) int
}

// NewDriveSource creates a Drive folder source
func NewDriveSource(logger *zap.Logger, service gdrive.Service, folderID string) *DriveSource {
	return &DriveSource{
		logger:   logger,
		service:  service,
		folderID: folderID,
		pick:     rand.IntN,
	}
}

// Candidate lists the folder, picks one image at random and downloads it
func (s *DriveSource) Candidate(ctx context.Context) (domain.ImageCandidate, error) {
	files, err := s.service.ListFiles(ctx, gdrive.ImagesQuery(s.folderID))
	if err != nil {
		return domain.ImageCandidate{}, err
	}
	if len(files) == 0 {
		return domain.ImageCandidate{}, domain.ErrNoImageAvailable
	}

	file := files[s.pick(len(files))]
	s.logger.Info("Selected drive image", zap.String("name", file.Name), zap.String("id", file.ID), zap.Int("choices", len(files)))

	body, err := s.service.Download(ctx, file.ID)
	if err != nil {
		return domain.ImageCandidate{}, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, _maxDriveImageSize+1))
	if err != nil {
		return domain.ImageCandidate{}, fmt.Errorf("failed to read drive file %s: %w", file.Name, err)
	}
	if len(data) > _maxDriveImageSize {
		return domain.ImageCandidate{}, fmt.Errorf("drive file %s exceeds %d bytes", file.Name, _maxDriveImageSize)
	}

	return domain.NewStreamCandidate(data, file.Name), nil
}
