package models

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCameraFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cameras.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write camera file: %v", err)
	}
	return path
}

func TestCameraRegistry_Reload(t *testing.T) {
	path := writeCameraFile(t, `
cameras:
  - id: b
    source_camera: camera.b
  - id: a
    source_camera: camera.a
    state_icons:
      - entity: light.a
        state_rules:
          - condition: equals
            value: "on"
            icon: mdi:not-a-real-icon
  - id: broken
    quality: 0
    source_camera: camera.broken
  - id: a
    source_camera: camera.duplicate
`)

	registry := NewCameraRegistry(path)
	issues, err := registry.Reload()
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if registry.Len() != 2 {
		t.Fatalf("Expected 2 cameras, got %d", registry.Len())
	}

	list := registry.List()
	if list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("List not sorted: %s, %s", list[0].ID, list[1].ID)
	}

	a, ok := registry.Get("a")
	if !ok {
		t.Fatal("camera a not found")
	}
	if a.Source != "camera.a" {
		t.Errorf("first definition of a should win, got source %q", a.Source)
	}

	if _, ok := registry.Get("broken"); ok {
		t.Error("invalid camera should be skipped")
	}

	var skipped, warnings int
	for _, issue := range issues {
		if issue.Skipped {
			skipped++
		} else {
			warnings++
		}
	}
	if skipped != 2 {
		t.Errorf("Expected 2 skipped cameras (invalid + duplicate), got %d", skipped)
	}
	if warnings != 1 {
		t.Errorf("Expected 1 missing icon warning, got %d", warnings)
	}
}

func TestCameraRegistry_ReloadMissingFileKeepsCameras(t *testing.T) {
	path := writeCameraFile(t, "cameras:\n  - id: a\n    source_camera: camera.a\n")

	registry := NewCameraRegistry(path)
	if _, err := registry.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	os.Remove(path)

	if _, err := registry.Reload(); err == nil {
		t.Fatal("expected error for missing camera file")
	}
	if registry.Len() != 1 {
		t.Errorf("Expected previous camera set to survive, got %d cameras", registry.Len())
	}
}

func TestMissingIcons(t *testing.T) {
	cfg := &CameraConfig{
		Overlays: []Overlay{
			&TextOverlay{Text: "x"},
			&StateIconOverlay{
				Rules: []StateRule{
					{Appearance: Appearance{Icon: "mdi:lightbulb"}},
					{Appearance: Appearance{Icon: "mdi:unknown-thing"}},
					{Appearance: Appearance{Icon: "mdi:also-unknown", IconCodepoint: "\U000F0335"}},
					{Appearance: Appearance{Icon: "💡"}},
				},
			},
		},
	}

	missing := cfg.MissingIcons()
	if len(missing) != 1 || missing[0] != "mdi:unknown-thing" {
		t.Errorf("MissingIcons = %v, want [mdi:unknown-thing]", missing)
	}
}
