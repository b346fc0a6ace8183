package displaylog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	marker  = "Last Image Displayed: "
	unknown = "Unknown"
)

// Record keeps the single "last image displayed" line. The file is replaced
// on every write so exactly one record is current.
type Record struct {
	logger *zap.Logger
	fs     afero.Fs
	path   string
	clock  clockwork.Clock
}

// NewRecord creates a record stored at path
func NewRecord(logger *zap.Logger, fs afero.Fs, path string, clock clockwork.Clock) *Record {
	return &Record{
		logger: logger,
		fs:     fs,
		path:   path,
		clock:  clock,
	}
}

// Path returns the location of the record file
func (r *Record) Path() string {
	return r.path
}

// Write implements domain.LastImageRecorder
func (r *Record) Write(name string) error {
	if err := r.fs.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	line := fmt.Sprintf("%s %s%s\n", r.clock.Now().Format(time.RFC3339), marker, name)
	tmp := r.path + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, []byte(line), 0o644); err != nil {
		return fmt.Errorf("failed to write display log: %w", err)
	}
	if err := r.fs.Rename(tmp, r.path); err != nil {
		_ = r.fs.Remove(tmp)
		return fmt.Errorf("failed to replace display log: %w", err)
	}

	r.logger.Info("Display log updated", zap.String("path", r.path), zap.String("image", name))
	return nil
}

// Read implements domain.LastImageRecorder. Returns "Unknown" when no record exists.
func (r *Record) Read() (string, error) {
	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return unknown, nil
		}
		return unknown, fmt.Errorf("failed to read display log: %w", err)
	}
	return Parse(data), nil
}

// Parse extracts the image name from the last record line of data
func Parse(data []byte) string {
	name := unknown
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, marker); idx >= 0 {
			if v := strings.TrimSpace(line[idx+len(marker):]); v != "" {
				name = v
			}
		}
	}
	return name
}
