package handlers

import (
	"testing"
)

func TestValidateCameraDocument(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		resp := ValidateCameraDocument([]byte(`
cameras:
  - id: front
    source_camera: camera.front
    width: 640
    state_icons:
      - entity: light.porch
        state_rules:
          - condition: equals
            value: "on"
            icon: mdi:lightbulb
`))
		if !resp.Valid || resp.Cameras != 1 {
			t.Errorf("Expected valid document with 1 camera, got %+v", resp)
		}
		if len(resp.Warnings) != 0 {
			t.Errorf("Unexpected warnings: %+v", resp.Warnings)
		}
	})

	t.Run("unparseable", func(t *testing.T) {
		resp := ValidateCameraDocument([]byte("cameras: [unclosed"))
		if resp.Valid {
			t.Fatal("Expected invalid document")
		}
		if len(resp.Errors) != 1 || resp.Errors[0].Code != "invalid_document" {
			t.Errorf("Unexpected errors: %+v", resp.Errors)
		}
	})

	t.Run("field errors", func(t *testing.T) {
		resp := ValidateCameraDocument([]byte(`
cameras:
  - id: front
    source_camera: camera.front
    quality: 150
  - id: back
    source_camera: camera.back
    resize_algorithm: nearest
`))
		if resp.Valid {
			t.Fatal("Expected invalid document")
		}
		if len(resp.Errors) != 2 {
			t.Fatalf("Expected 2 errors, got %+v", resp.Errors)
		}

		want := map[string]string{"front": "max", "back": "oneof"}
		for _, e := range resp.Errors {
			if want[e.Camera] != e.Code {
				t.Errorf("camera %s: code %q, want %q", e.Camera, e.Code, want[e.Camera])
			}
			if e.Message == "" || e.Field == "" {
				t.Errorf("camera %s: missing field or message: %+v", e.Camera, e)
			}
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		resp := ValidateCameraDocument([]byte(`
cameras:
  - id: front
    source_camera: camera.front
  - id: front
    source_camera: camera.other
`))
		if resp.Valid || resp.Cameras != 1 {
			t.Fatalf("Expected duplicate to be rejected, got %+v", resp)
		}
		if resp.Errors[0].Code != "duplicate" {
			t.Errorf("code = %q, want duplicate", resp.Errors[0].Code)
		}
	})

	t.Run("unknown icon is a warning", func(t *testing.T) {
		resp := ValidateCameraDocument([]byte(`
cameras:
  - id: front
    source_camera: camera.front
    state_icons:
      - entity: light.porch
        state_rules:
          - condition: any_state
            icon: mdi:definitely-not-real
`))
		if !resp.Valid {
			t.Fatalf("Expected valid document, got %+v", resp.Errors)
		}
		if len(resp.Warnings) != 1 || resp.Warnings[0].Code != "unknown_icon" {
			t.Errorf("Unexpected warnings: %+v", resp.Warnings)
		}
	})
}

func TestFieldPath(t *testing.T) {
	tests := map[string]string{
		"CameraConfig.Quality":            "Quality",
		"StateIconOverlay.Rules[0].Value": "Rules[0].Value",
		"Quality":                         "Quality",
	}
	for in, want := range tests {
		if got := fieldPath(in); got != want {
			t.Errorf("fieldPath(%q) = %q, want %q", in, got, want)
		}
	}
}
