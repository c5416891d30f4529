package snapshot

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/koios/snapshot-processor/internal/imaging"
	"github.com/koios/snapshot-processor/internal/overlay"
	"github.com/koios/snapshot-processor/pkg/models"
	"go.uber.org/zap"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()

	pool := NewWorkerPool(2, zap.NewNop())
	pool.Start()
	t.Cleanup(pool.Stop)

	compositor := overlay.NewCompositor(imaging.NewFontCache(t.TempDir(), zap.NewNop()), nil, nil, zap.NewNop())
	return NewProcessor(pool, compositor, zap.NewNop())
}

func TestProcessor_Process(t *testing.T) {
	p := newTestProcessor(t)

	cfg := &models.CameraConfig{
		ID:        "front",
		Source:    "camera.front",
		Width:     100,
		KeepRatio: true,
		Quality:   80,
		Overlays: []models.Overlay{
			&models.TextOverlay{
				OverlayStyle: models.OverlayStyle{Position: models.BottomRight, FontSize: 12, Color: models.White},
				Text:         "Front",
			},
		},
	}

	out, err := p.Process(context.Background(), testPNG(t, 200, 150), cfg)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(100, 75) {
		t.Errorf("size = %v, want (100,75)", got)
	}
}

func TestProcessor_DecodeFailureCarriesRaw(t *testing.T) {
	p := newTestProcessor(t)
	raw := []byte("not an image at all")

	_, err := p.Process(context.Background(), raw, testCamera)

	var renderErr *RenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("err = %v, want RenderError", err)
	}
	if renderErr.Stage != StageTransform {
		t.Errorf("Stage = %s, want %s", renderErr.Stage, StageTransform)
	}
	if !bytes.Equal(renderErr.Raw, raw) {
		t.Error("RenderError should carry the raw source bytes")
	}
	if !errors.Is(err, imaging.ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestProcessor_CropOutsideFrame(t *testing.T) {
	p := newTestProcessor(t)

	cfg := &models.CameraConfig{
		ID:      "front",
		Source:  "camera.front",
		Quality: 80,
		Crop:    &models.CropRect{X: 500, Y: 500, Width: 10, Height: 10},
	}

	_, err := p.Process(context.Background(), testPNG(t, 64, 64), cfg)
	if !errors.Is(err, imaging.ErrCropBounds) {
		t.Errorf("err = %v, want ErrCropBounds", err)
	}
}

type panickingStates struct{}

func (panickingStates) State(context.Context, string) (string, bool) {
	panic("state backend exploded")
}

func TestProcessor_PanicCarriesRaw(t *testing.T) {
	pool := NewWorkerPool(1, zap.NewNop())
	pool.Start()
	t.Cleanup(pool.Stop)

	compositor := overlay.NewCompositor(imaging.NewFontCache(t.TempDir(), zap.NewNop()), panickingStates{}, nil, zap.NewNop())
	p := NewProcessor(pool, compositor, zap.NewNop())

	cfg := &models.CameraConfig{
		ID:      "front",
		Source:  "camera.front",
		Quality: 80,
		Overlays: []models.Overlay{
			&models.StateIconOverlay{
				OverlayStyle: models.OverlayStyle{Position: models.BottomRight, FontSize: 12, Color: models.White},
				Entity:       "light.porch",
				Rules:        []models.StateRule{{Condition: models.CondAnyState, Appearance: models.Appearance{Text: "x"}}},
			},
		},
	}
	raw := testPNG(t, 16, 16)

	_, err := p.Process(context.Background(), raw, cfg)

	var renderErr *RenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("err = %v, want RenderError", err)
	}
	if renderErr.Stage != StagePanic {
		t.Errorf("Stage = %s, want %s", renderErr.Stage, StagePanic)
	}
	if !bytes.Equal(renderErr.Raw, raw) {
		t.Error("RenderError should carry the raw source bytes")
	}
}

func TestTransformOptions(t *testing.T) {
	cfg := &models.CameraConfig{
		Width:     640,
		Height:    480,
		KeepRatio: false,
		Filter:    models.FilterBilinear,
		Crop:      &models.CropRect{X: 1, Y: 2, Width: 3, Height: 4},
	}

	opts := transformOptions(cfg)
	if opts.Width != 640 || opts.Height != 480 || opts.KeepRatio || !opts.Fast {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Crop == nil || opts.Crop.X != 1 || opts.Crop.Y != 2 || opts.Crop.Width != 3 || opts.Crop.Height != 4 {
		t.Errorf("crop = %+v", opts.Crop)
	}

	cfg.Crop = nil
	cfg.Filter = models.FilterLanczos
	opts = transformOptions(cfg)
	if opts.Crop != nil || opts.Fast {
		t.Errorf("opts = %+v, want no crop and high quality", opts)
	}
}
