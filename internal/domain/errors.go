package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoImageAvailable means neither the remote nor the local source yielded a candidate
	ErrNoImageAvailable = errors.New("no image available")
	// ErrUnknownCommand is returned for malformed or unrecognized daemon requests
	ErrUnknownCommand = errors.New("unknown command")
)

// ImageDecodeError reports input bytes that are not a readable image
type ImageDecodeError struct {
	Source string
	Err    error
}

func (e *ImageDecodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("failed to decode image: %v", e.Err)
	}
	return fmt.Sprintf("failed to decode image %s: %v", e.Source, e.Err)
}

func (e *ImageDecodeError) Unwrap() error {
	return e.Err
}

// DeviceInitError reports a panel or emulator that could not be initialized
type DeviceInitError struct {
	Model string
	Err   error
}

func (e *DeviceInitError) Error() string {
	return fmt.Sprintf("failed to initialize display %s: %v", e.Model, e.Err)
}

func (e *DeviceInitError) Unwrap() error {
	return e.Err
}

// IsImageDecodeError reports whether err carries an ImageDecodeError
func IsImageDecodeError(err error) bool {
	var decodeErr *ImageDecodeError
	return errors.As(err, &decodeErr)
}
