package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/koios/snapshot-processor/pkg/models"
)

// ValidationError represents a validation error for a specific field
type ValidationError struct {
	Camera  string `json:"camera,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidateCamerasResponse represents the response from camera validation
type ValidateCamerasResponse struct {
	Valid    bool              `json:"valid"`
	Cameras  int               `json:"cameras"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []ValidationError `json:"warnings,omitempty"`
}

// ValidateCameraDocument checks a YAML or JSON camera document without
// loading it
func ValidateCameraDocument(data []byte) ValidateCamerasResponse {
	file, err := models.ParseCameraFile(data)
	if err != nil {
		return ValidateCamerasResponse{
			Errors: []ValidationError{{Message: err.Error(), Code: "invalid_document"}},
		}
	}

	var resp ValidateCamerasResponse
	seen := make(map[string]bool, len(file.Cameras))

	for i := range file.Cameras {
		raw := &file.Cameras[i]

		cfg, err := raw.Normalize()
		if err != nil {
			resp.Errors = append(resp.Errors, fieldErrors(raw.ID, err)...)
			continue
		}

		if seen[cfg.ID] {
			resp.Errors = append(resp.Errors, ValidationError{
				Camera:  cfg.ID,
				Field:   "id",
				Message: fmt.Sprintf("Camera id '%s' is used more than once", cfg.ID),
				Code:    "duplicate",
			})
			continue
		}
		seen[cfg.ID] = true
		resp.Cameras++

		for _, icon := range cfg.MissingIcons() {
			resp.Warnings = append(resp.Warnings, ValidationError{
				Camera:  cfg.ID,
				Field:   "icon",
				Message: fmt.Sprintf("Icon '%s' has no glyph mapping, a fallback glyph will be drawn", icon),
				Code:    "unknown_icon",
			})
		}
	}

	resp.Valid = len(resp.Errors) == 0
	return resp
}

// fieldErrors expands validator failures into one entry per field
func fieldErrors(cameraID string, err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Camera: cameraID, Message: err.Error(), Code: "invalid"}}
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Camera:  cameraID,
			Field:   fieldPath(fe.Namespace()),
			Message: fieldMessage(fe),
			Code:    fe.Tag(),
		})
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("Field '%s' must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min", "gte":
		return fmt.Sprintf("Field '%s' must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("Field '%s' must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("Field '%s' failed '%s' validation", fe.Field(), fe.Tag())
	}
}
