package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

// ErrEncode reports a canvas that could not be serialized
var ErrEncode = errors.New("encode error")

// ContentType is the MIME type of every processed frame
const ContentType = "image/jpeg"

// EncodeJPEG serializes the canvas at the given quality (clamped to 1-100).
// Output is deterministic for identical input.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty canvas", ErrEncode)
	}

	var buf bytes.Buffer
	buf.Grow(img.Bounds().Dx() * img.Bounds().Dy() / 4)

	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: clamp(quality, 1, 100)}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	return buf.Bytes(), nil
}
