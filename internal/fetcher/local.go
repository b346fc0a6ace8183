package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// imageExtensions are the raster formats the decoder registry understands
var imageExtensions = map[string]struct{}{
	".bmp":  {},
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".jfif": {},
	".webp": {},
}

// IsImageFile reports whether name carries a recognized image extension
func IsImageFile(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// LocalSource picks images from a directory, usually the USB stick mounted at /mnt/photos
type LocalSource struct {
	logger *zap.Logger
	fs     afero.Fs
	dir    string
	pick   func(n int) int
}

// NewLocalSource creates a local directory source
func NewLocalSource(logger *zap.Logger, fs afero.Fs, dir string) *LocalSource {
	return &LocalSource{
		logger: logger,
		fs:     fs,
		dir:    dir,
		pick:   rand.IntN,
	}
}

// Dir returns the directory the source reads from
func (s *LocalSource) Dir() string {
	return s.dir
}

// List returns the image files of the directory, sorted by name
func (s *LocalSource) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Candidate picks one image uniformly at random
func (s *LocalSource) Candidate(ctx context.Context) (domain.ImageCandidate, error) {
	if err := ctx.Err(); err != nil {
		return domain.ImageCandidate{}, err
	}

	names, err := s.List()
	if err != nil {
		return domain.ImageCandidate{}, err
	}
	if len(names) == 0 {
		s.logger.Warn("No images found in local directory", zap.String("dir", s.dir))
		return domain.ImageCandidate{}, domain.ErrNoImageAvailable
	}

	name := names[s.pick(len(names))]
	s.logger.Info("Selected local image", zap.String("name", name), zap.Int("choices", len(names)))
	return domain.NewPathCandidate(filepath.Join(s.dir, name), name), nil
}

// Resolve maps a path or bare file name to a candidate. Relative names are
// looked up in the source directory.
func (s *LocalSource) Resolve(arg string) (domain.ImageCandidate, error) {
	path := arg
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}

	info, err := s.fs.Stat(path)
	if err != nil || info.IsDir() {
		return domain.ImageCandidate{}, fmt.Errorf("%w: %s not found", domain.ErrNoImageAvailable, path)
	}
	return domain.NewPathCandidate(path, filepath.Base(path)), nil
}

// Read returns the content of a file
func (s *LocalSource) Read(path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return data, nil
}
