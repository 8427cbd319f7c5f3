package entity

import (
	"fmt"
	"path/filepath"
	"strings"
)

type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mkv":  true,
	".mov":  true,
	".webm": true,
}

// MediaKindFromFilename classifies an upload by its extension. Anything that is not a
// known video container is treated as an image and left to the decoder to reject.
func MediaKindFromFilename(name string) MediaKind {
	if videoExtensions[strings.ToLower(filepath.Ext(name))] {
		return MediaKindVideo
	}
	return MediaKindImage
}

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(s))) {
	case MediaKindImage:
		return MediaKindImage, nil
	case MediaKindVideo:
		return MediaKindVideo, nil
	}
	return "", fmt.Errorf("%w: unknown media kind %q", ErrInvalidRequest, s)
}

// MediaInput is the raw upload. It is never mutated after construction.
type MediaInput struct {
	Data     []byte
	Kind     MediaKind
	Filename string
}

func (m MediaInput) IsVideo() bool { return m.Kind == MediaKindVideo }

type AnalysisMode string

const (
	ModeMorphology AnalysisMode = "morphology"
	ModeTemporal   AnalysisMode = "temporal"
)

// ParseAnalysisMode accepts the current mode names and the legacy "gardner" and
// "morphokinetics" aliases.
func ParseAnalysisMode(s string) (AnalysisMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "morphology", "gardner":
		return ModeMorphology, nil
	case "temporal", "morphokinetics":
		return ModeTemporal, nil
	}
	return "", fmt.Errorf("%w: unknown analysis mode %q", ErrInvalidRequest, s)
}

const (
	MinDevelopmentDay     = 1
	MaxDevelopmentDay     = 7
	DefaultDevelopmentDay = 5
)

type AnalysisRequest struct {
	Media MediaInput
	Mode  AnalysisMode
	// Day of development, 1..7. Zero means DefaultDevelopmentDay.
	Day int
}

// Normalize fills defaults and rejects malformed requests.
func (r AnalysisRequest) Normalize() (AnalysisRequest, error) {
	if r.Day == 0 {
		r.Day = DefaultDevelopmentDay
	}
	if r.Day < MinDevelopmentDay || r.Day > MaxDevelopmentDay {
		return r, NewAnalysisError(ErrInvalidRequest,
			fmt.Sprintf("Day of development must be between %d and %d, got %d.", MinDevelopmentDay, MaxDevelopmentDay, r.Day), nil)
	}
	if r.Mode != ModeMorphology && r.Mode != ModeTemporal {
		return r, NewAnalysisError(ErrInvalidRequest, fmt.Sprintf("Unknown analysis mode %q.", r.Mode), nil)
	}
	if len(r.Media.Data) == 0 {
		return r, NewAnalysisError(ErrInvalidRequest, "Uploaded file is empty.", nil)
	}
	if r.Media.Kind == "" {
		r.Media.Kind = MediaKindFromFilename(r.Media.Filename)
	}
	return r, nil
}
