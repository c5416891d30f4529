package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

var (
	// ErrDecode reports raw bytes that are not a readable image
	ErrDecode = errors.New("decode error")
	// ErrCropBounds reports a crop that is empty after clamping
	ErrCropBounds = errors.New("crop rectangle outside image bounds")
)

// Crop is a requested crop rectangle in source pixels. A zero Width or
// Height extends to the source edge.
type Crop struct {
	X      int
	Y      int
	Width  int
	Height int
}

// TransformOptions configures the geometric stage. Zero Width/Height means
// that dimension is unset.
type TransformOptions struct {
	Crop      *Crop
	Width     int
	Height    int
	KeepRatio bool
	Fast      bool
}

// Decode reads raw encoded bytes into an RGBA canvas
func Decode(raw []byte) (*image.RGBA, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: %s image has no pixels", ErrDecode, format)
	}

	return ToRGBA(img), nil
}

// Transform decodes raw bytes, then applies the optional crop and resize
func Transform(raw []byte, opts TransformOptions) (*image.RGBA, error) {
	canvas, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	if opts.Crop != nil {
		canvas, err = CropImage(canvas, *opts.Crop)
		if err != nil {
			return nil, err
		}
	}

	return ResizeImage(canvas, opts), nil
}

// ClampCrop limits the requested rectangle to [0, w] x [0, h]
func ClampCrop(c Crop, bounds image.Rectangle) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()

	x := clamp(c.X, 0, w)
	y := clamp(c.Y, 0, h)

	cw := c.Width
	if cw <= 0 || cw > w-x {
		cw = w - x
	}
	ch := c.Height
	if ch <= 0 || ch > h-y {
		ch = h - y
	}

	return image.Rect(x, y, x+cw, y+ch).Add(bounds.Min)
}

// CropImage cuts the clamped rectangle out of img into a new canvas at origin
func CropImage(img *image.RGBA, c Crop) (*image.RGBA, error) {
	rect := ClampCrop(c, img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("%w: %dx%d at (%d,%d)", ErrCropBounds, c.Width, c.Height, c.X, c.Y)
	}

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out, nil
}

// TargetSize computes the output dimensions for a source size under opts.
// It returns the source size unchanged when no target is set.
func TargetSize(srcW, srcH int, opts TransformOptions) (int, int) {
	tw, th := opts.Width, opts.Height
	if tw <= 0 && th <= 0 {
		return srcW, srcH
	}

	var w, h int
	switch {
	case !opts.KeepRatio:
		w, h = srcW, srcH
		if tw > 0 {
			w = tw
		}
		if th > 0 {
			h = th
		}
	case tw > 0 && th > 0:
		ratio := float64(tw) / float64(srcW)
		if r := float64(th) / float64(srcH); r < ratio {
			ratio = r
		}
		w = int(float64(srcW) * ratio)
		h = int(float64(srcH) * ratio)
	case tw > 0:
		w = tw
		h = int(float64(srcH) * float64(tw) / float64(srcW))
	default:
		w = int(float64(srcW) * float64(th) / float64(srcH))
		h = th
	}

	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// ResizeImage scales img per opts. Lanczos3 is used unless opts.Fast asks
// for bilinear; the filter never affects the output size.
func ResizeImage(img *image.RGBA, opts TransformOptions) *image.RGBA {
	b := img.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy(), opts)
	if w == b.Dx() && h == b.Dy() {
		return img
	}

	interp := resize.Lanczos3
	if opts.Fast {
		interp = resize.Bilinear
	}

	return ToRGBA(resize.Resize(uint(w), uint(h), img, interp))
}

// ToRGBA converts any image to an RGBA canvas anchored at the origin
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
