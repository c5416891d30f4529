package snapshot

import (
	"errors"
	"fmt"
)

// ErrCameraNotFound is returned for an unknown camera ID
var ErrCameraNotFound = errors.New("camera not found")

// Render stages reported in RenderError
const (
	StageFetch     = "fetch"
	StageTransform = "transform"
	StageCompose   = "compose"
	StageEncode    = "encode"
	StagePanic     = "panic"
)

// RenderError is a failed render. Raw holds the source frame when it had
// been fetched, so the caller can serve it unmodified.
type RenderError struct {
	CameraID string
	Stage    string
	Raw      []byte
	Err      error
}

func (e *RenderError) Error() string {
	if e.CameraID == "" {
		return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("camera %s: %s stage failed: %v", e.CameraID, e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
