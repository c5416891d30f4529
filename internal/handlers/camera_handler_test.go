package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/koios/snapshot-processor/internal/imaging"
	"github.com/koios/snapshot-processor/internal/overlay"
	"github.com/koios/snapshot-processor/internal/snapshot"
	"github.com/koios/snapshot-processor/internal/source"
	"github.com/koios/snapshot-processor/internal/states"
	"github.com/koios/snapshot-processor/pkg/models"
	"go.uber.org/zap"
)

// testEnv is a handler wired to a real render pipeline reading frames from
// a temp directory
type testEnv struct {
	mux        *http.ServeMux
	cameraFile string
	framePath  string
}

func writeFrame(t *testing.T, path string, w, h int) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 60, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode frame: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
}

func setupTestHandler(t *testing.T, limiter *ClientLimiter) *testEnv {
	t.Helper()

	dir := t.TempDir()
	framePath := filepath.Join(dir, "front.png")
	writeFrame(t, framePath, 160, 120)

	cameraFile := filepath.Join(dir, "cameras.yaml")
	content := fmt.Sprintf(`cameras:
  - id: front
    source_camera: %s
    width: 80
    keep_ratio: true
    text_enabled: true
    text_value: Front door
    state_icons:
      - entity: light.porch
        label: Porch
        state_rules:
          - condition: equals
            value: "on"
            icon: mdi:lightbulb
            text: "On"
  - id: offline
    source_camera: %s
`, framePath, filepath.Join(dir, "missing.png"))
	if err := os.WriteFile(cameraFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write camera file: %v", err)
	}

	logger := zap.NewNop()
	registry := models.NewCameraRegistry(cameraFile)
	if _, err := registry.Reload(); err != nil {
		t.Fatalf("Failed to load cameras: %v", err)
	}

	pool := snapshot.NewWorkerPool(2, logger)
	pool.Start()
	t.Cleanup(pool.Stop)

	compositor := overlay.NewCompositor(
		imaging.NewFontCache(dir, logger),
		states.NewStaticStore(map[string]string{"light.porch": "on"}),
		nil,
		logger,
	)
	coordinator := snapshot.NewCoordinator(snapshot.NewProcessor(pool, compositor, logger), time.Millisecond, 5*time.Second, logger)
	service := snapshot.NewService(registry, coordinator, source.NewFetcher(nil, logger), snapshot.NewMemoryFrameStore(), logger)

	h := NewCameraHandler(service, limiter, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return &testEnv{mux: mux, cameraFile: cameraFile, framePath: framePath}
}

func (e *testEnv) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

// --- Health endpoint ---

func TestHealth(t *testing.T) {
	env := setupTestHandler(t, nil)

	w := env.do(http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status=healthy, got %v", resp["status"])
	}
	if resp["cameras"] != float64(2) {
		t.Errorf("Expected cameras=2, got %v", resp["cameras"])
	}
}

func TestHealth_WrongMethod(t *testing.T) {
	env := setupTestHandler(t, nil)

	if w := env.do(http.MethodPost, "/health", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

// --- Cameras list endpoint ---

func TestCameras(t *testing.T) {
	env := setupTestHandler(t, nil)

	w := env.do(http.MethodGet, "/cameras", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var cameras []CameraSummary
	if err := json.NewDecoder(w.Body).Decode(&cameras); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(cameras) != 2 || cameras[0].ID != "front" || cameras[1].ID != "offline" {
		t.Fatalf("Unexpected cameras: %+v", cameras)
	}
	if cameras[0].Width != 80 || cameras[0].Overlays != 2 {
		t.Errorf("Unexpected summary: %+v", cameras[0])
	}
}

func TestCameraDetails(t *testing.T) {
	env := setupTestHandler(t, nil)

	tests := []struct {
		path string
		want int
	}{
		{"/cameras/front", http.StatusOK},
		{"/cameras/front/stats", http.StatusOK},
		{"/cameras/nope", http.StatusNotFound},
		{"/cameras/nope/snapshot", http.StatusNotFound},
		{"/cameras/front/bogus", http.StatusNotFound},
		{"/cameras/front/snapshot/extra", http.StatusNotFound},
		{"/cameras/", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if w := env.do(http.MethodGet, tt.path, nil); w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

// --- Snapshot endpoint ---

func TestSnapshot(t *testing.T) {
	env := setupTestHandler(t, nil)

	w := env.do(http.MethodGet, "/cameras/front/snapshot", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %s, want image/jpeg", ct)
	}
	if status := w.Header().Get("X-Snapshot-Status"); status != string(snapshot.FrameProcessed) {
		t.Errorf("X-Snapshot-Status = %s, want processed", status)
	}

	img, err := jpeg.Decode(w.Body)
	if err != nil {
		t.Fatalf("Body is not a JPEG: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(80, 60) {
		t.Errorf("size = %v, want (80,60)", got)
	}

	w = env.do(http.MethodGet, "/cameras/front/stats", nil)
	var stats snapshot.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.Renders != 1 {
		t.Errorf("Renders = %d, want 1", stats.Renders)
	}
}

func TestSnapshot_CorruptSourceServedRaw(t *testing.T) {
	env := setupTestHandler(t, nil)
	if err := os.WriteFile(env.framePath, []byte("GIF89a not really"), 0644); err != nil {
		t.Fatalf("Failed to corrupt frame: %v", err)
	}

	w := env.do(http.MethodGet, "/cameras/front/snapshot", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if status := w.Header().Get("X-Snapshot-Status"); status != string(snapshot.FrameRaw) {
		t.Errorf("X-Snapshot-Status = %s, want raw", status)
	}
	if w.Body.String() != "GIF89a not really" {
		t.Errorf("Body = %q, want the unmodified source", w.Body.String())
	}
}

func TestSnapshot_SourceUnavailable(t *testing.T) {
	env := setupTestHandler(t, nil)

	if w := env.do(http.MethodGet, "/cameras/offline/snapshot", nil); w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", w.Code)
	}
}

func TestSnapshot_RateLimited(t *testing.T) {
	limiter, err := NewClientLimiter(0.001, 1, nil)
	if err != nil {
		t.Fatalf("NewClientLimiter failed: %v", err)
	}
	t.Cleanup(limiter.Stop)
	env := setupTestHandler(t, limiter)

	if w := env.do(http.MethodGet, "/cameras/front/snapshot", nil); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w := env.do(http.MethodGet, "/cameras/front/snapshot", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
}

// --- Refresh endpoint ---

func TestCamerasRefresh(t *testing.T) {
	env := setupTestHandler(t, nil)

	content := fmt.Sprintf("cameras:\n  - id: only\n    source_camera: %s\n  - id: bad\n    source_camera: x\n    quality: 0\n", env.framePath)
	if err := os.WriteFile(env.cameraFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to rewrite camera file: %v", err)
	}

	w := env.do(http.MethodPost, "/cameras/refresh", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Status      string             `json:"status"`
		CameraCount int                `json:"camera_count"`
		Issues      []models.LoadIssue `json:"issues"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if resp.Status != "success" || resp.CameraCount != 1 {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if len(resp.Issues) != 1 || resp.Issues[0].CameraID != "bad" || !resp.Issues[0].Skipped {
		t.Errorf("Unexpected issues: %+v", resp.Issues)
	}

	if w := env.do(http.MethodGet, "/cameras/front", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected removed camera to 404, got %d", w.Code)
	}
}

func TestCamerasRefresh_WrongMethod(t *testing.T) {
	env := setupTestHandler(t, nil)

	if w := env.do(http.MethodGet, "/cameras/refresh", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

// --- Validate endpoint ---

func TestCamerasValidate(t *testing.T) {
	env := setupTestHandler(t, nil)

	body := []byte("cameras:\n  - id: a\n    source_camera: camera.a\n  - id: b\n")
	w := env.do(http.MethodPost, "/cameras/validate", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp ValidateCamerasResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if resp.Valid {
		t.Error("Expected document with a camera lacking a source to be invalid")
	}
	if resp.Cameras != 1 {
		t.Errorf("Cameras = %d, want 1", resp.Cameras)
	}
	if len(resp.Errors) == 0 || !strings.Contains(strings.ToLower(resp.Errors[0].Field), "source") {
		t.Errorf("Unexpected errors: %+v", resp.Errors)
	}
}
