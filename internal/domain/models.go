package domain

import (
	"image"
	"strings"
)

// DisplayProfile identifies a target panel and its native resolution
type DisplayProfile struct {
	// ModelID is the registry key, e.g. "epd5in65f"
	ModelID string
	Width   int
	Height  int
}

// Bounds returns the canvas rectangle of the profile
func (p DisplayProfile) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.Width, p.Height)
}

// CandidateKind tells how an ImageCandidate carries its content
type CandidateKind int

const (
	// CandidatePath is a reference to a file on the local filesystem
	CandidatePath CandidateKind = iota
	// CandidateStream is content already downloaded into memory
	CandidateStream
)

func (k CandidateKind) String() string {
	switch k {
	case CandidatePath:
		return "path"
	case CandidateStream:
		return "stream"
	default:
		return "unknown"
	}
}

// ImageCandidate is one image selected for the current update cycle.
// It is consumed exactly once by the transform step.
type ImageCandidate struct {
	Kind CandidateKind
	// Path is set for CandidatePath
	Path string
	// Data is set for CandidateStream
	Data []byte
	// Name is a human readable label (file name, Drive name or URL)
	Name string
}

// NewPathCandidate returns a candidate pointing at a local file
func NewPathCandidate(path, name string) ImageCandidate {
	return ImageCandidate{Kind: CandidatePath, Path: path, Name: name}
}

// NewStreamCandidate returns a candidate holding downloaded bytes
func NewStreamCandidate(data []byte, name string) ImageCandidate {
	return ImageCandidate{Kind: CandidateStream, Data: data, Name: name}
}

// RenderedFrame is the output of the fit pipeline: a paletted buffer whose
// bounds match the target profile exactly.
type RenderedFrame struct {
	Image   *image.Paletted
	Profile DisplayProfile
	// Rotated reports whether the source was turned 90 degrees for a better fit
	Rotated bool
	// Scaled is the size of the letterboxed content before padding
	Scaled image.Point
}

// Verb is a daemon command verb
type Verb string

const (
	// VerbUpdate renders a new image
	VerbUpdate Verb = "UPDATE"
	// VerbClear blanks the panel
	VerbClear Verb = "CLEAR"
)

// ParseVerb matches a verb case-insensitively
func ParseVerb(s string) (Verb, bool) {
	switch Verb(strings.ToUpper(s)) {
	case VerbUpdate:
		return VerbUpdate, true
	case VerbClear:
		return VerbClear, true
	default:
		return "", false
	}
}

// DaemonRequest is a parsed command received by the daemon
type DaemonRequest struct {
	Verb Verb
	// Argument is the optional image path or URL for UPDATE
	Argument string
}

// SourceMode selects where candidates come from
type SourceMode string

const (
	// SourceLocal reads from the local image directory
	SourceLocal SourceMode = "local"
	// SourceDrive lists a remote Drive folder, falling back to local
	SourceDrive SourceMode = "drive"
)

// TelemetrySnapshot maps a telemetry key to its rendered value
type TelemetrySnapshot map[string]string
