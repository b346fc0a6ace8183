package uploader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/genricoloni/inkframe/internal/gdrive"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrFolderNotConfigured is returned when the target Drive folder is empty
var ErrFolderNotConfigured = errors.New("drive folder not configured")

// Report summarizes a photo upload run
type Report struct {
	Uploaded int
	Skipped  int
	Failed   int
}

// Uploader copies local files to Google Drive
type Uploader struct {
	logger  *zap.Logger
	service gdrive.Service
	fs      afero.Fs
}

// New creates an uploader
func New(logger *zap.Logger, service gdrive.Service, fs afero.Fs) *Uploader {
	return &Uploader{
		logger:  logger,
		service: service,
		fs:      fs,
	}
}

// UploadPhotos uploads every regular file of dir that is not already present
// in folderID by name. Individual failures are logged and counted.
func (u *Uploader) UploadPhotos(ctx context.Context, dir, folderID string) (Report, error) {
	var report Report
	if folderID == "" {
		return report, ErrFolderNotConfigured
	}

	entries, err := afero.ReadDir(u.fs, dir)
	if err != nil {
		return report, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	existing, err := u.service.ListFiles(ctx, gdrive.FolderQuery(folderID))
	if err != nil {
		return report, err
	}
	present := make(map[string]bool, len(existing))
	for _, f := range existing {
		present[f.Name] = true
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.Mode().IsRegular() {
			continue
		}

		name := entry.Name()
		if present[name] {
			u.logger.Info("Skipping photo, already uploaded", zap.String("name", name))
			report.Skipped++
			continue
		}

		id, err := u.create(ctx, filepath.Join(dir, name), name, folderID)
		if err != nil {
			u.logger.Error("Failed to upload photo", zap.String("name", name), zap.Error(err))
			report.Failed++
			continue
		}
		u.logger.Info("Uploaded photo", zap.String("name", name), zap.String("id", id))
		report.Uploaded++
	}

	u.logger.Info("Photo upload finished",
		zap.Int("uploaded", report.Uploaded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, nil
}

// UploadLog stores path in folderID, replacing the content of a file with the
// same name when one exists. Returns the Drive file ID.
func (u *Uploader) UploadLog(ctx context.Context, path, folderID string) (string, error) {
	if folderID == "" {
		return "", ErrFolderNotConfigured
	}
	name := filepath.Base(path)

	matches, err := u.service.ListFiles(ctx, gdrive.NameQuery(folderID, name))
	if err != nil {
		return "", err
	}

	if len(matches) > 0 {
		f, err := u.fs.Open(path)
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()

		id := matches[0].ID
		if err := u.service.Update(ctx, id, f); err != nil {
			return "", err
		}
		u.logger.Info("Updated log file in Drive", zap.String("name", name), zap.String("id", id))
		return id, nil
	}

	id, err := u.create(ctx, path, name, folderID)
	if err != nil {
		return "", err
	}
	u.logger.Info("Uploaded new log file to Drive", zap.String("name", name), zap.String("id", id))
	return id, nil
}

func (u *Uploader) create(ctx context.Context, path, name, folderID string) (string, error) {
	f, err := u.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return u.service.Create(ctx, name, folderID, f)
}
