package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// FontCategory selects the candidate chain a font is loaded from
type FontCategory string

const (
	CategoryText  FontCategory = "text"
	CategoryEmoji FontCategory = "emoji"
	CategoryIcon  FontCategory = "icon"
)

// ErrFontLoad reports a candidate font file that could not be used
var ErrFontLoad = errors.New("font load error")

const (
	mdiFontFile   = "materialdesignicons-webfont.ttf"
	emojiFontFile = "NotoEmoji-Regular.ttf"
	notoFontFile  = "NotoSans-Regular.ttf"
	dejaVuFile    = "DejaVuSans.ttf"
)

// candidates is the fixed priority order per category. The icon set is never
// offered as a fallback for the other categories.
var candidates = map[FontCategory][]string{
	CategoryIcon:  {mdiFontFile},
	CategoryEmoji: {emojiFontFile, notoFontFile, dejaVuFile},
	CategoryText:  {notoFontFile, dejaVuFile, emojiFontFile},
}

type fontKey struct {
	size     int
	category FontCategory
}

// FontCache resolves fonts by (size, category) for the lifetime of the
// process. Entries are never replaced or evicted once inserted.
type FontCache struct {
	dir      string
	logger   *zap.Logger
	readFile func(name string) ([]byte, error)

	mu    sync.RWMutex
	fonts map[fontKey]*Font
}

// NewFontCache creates a cache that loads candidate files from dir
func NewFontCache(dir string, logger *zap.Logger) *FontCache {
	return &FontCache{
		dir:      dir,
		logger:   logger,
		readFile: os.ReadFile,
		fonts:    make(map[fontKey]*Font),
	}
}

// Get returns the font for (size, category), loading it on first use.
// It never fails: when every candidate is missing the built-in font is used.
// Loading happens outside the lock; when two callers load the same key the
// first insert wins.
func (c *FontCache) Get(size int, category FontCategory) *Font {
	if size < 1 {
		size = 1
	}
	key := fontKey{size: size, category: category}

	c.mu.RLock()
	f, ok := c.fonts[key]
	c.mu.RUnlock()
	if ok {
		return f
	}

	loaded := c.load(size, category)

	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.fonts[key]; ok {
		return f
	}
	c.fonts[key] = loaded
	return loaded
}

// Len reports the number of cached entries
func (c *FontCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fonts)
}

func (c *FontCache) load(size int, category FontCategory) *Font {
	files, ok := candidates[category]
	if !ok {
		files = candidates[CategoryText]
	}

	for _, name := range files {
		path := filepath.Join(c.dir, name)
		face, err := c.loadFace(path, size)
		if err != nil {
			c.logger.Debug("Font candidate unavailable",
				zap.String("path", path),
				zap.Int("size", size),
				zap.String("category", string(category)),
				zap.Error(err))
			continue
		}

		c.logger.Debug("Loaded font",
			zap.String("font", name),
			zap.Int("size", size),
			zap.String("category", string(category)))
		return newFont(name, size, category, face)
	}

	c.logger.Warn("Could not load any bundled fonts, using built-in fallback",
		zap.String("fonts_dir", c.dir),
		zap.Int("size", size),
		zap.String("category", string(category)))

	return newFont("builtin", size, category, builtinFace(size))
}

func (c *FontCache) loadFace(path string, size int) (font.Face, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrFontLoad)
	}
	data, err := c.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFontLoad, err)
	}
	return faceFromData(data, size)
}

func faceFromData(data []byte, size int) (font.Face, error) {
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFontLoad, err)
	}

	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFontLoad, err)
	}
	return face, nil
}

// builtinFace scales the embedded Go font; the fixed 7x13 bitmap face is the
// last resort should that ever fail.
func builtinFace(size int) font.Face {
	face, err := faceFromData(goregular.TTF, size)
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// Font is a loaded face bound to one (size, category). Faces keep internal
// glyph buffers, so every use holds the font's lock.
type Font struct {
	Name     string
	Size     int
	Category FontCategory

	mu   sync.Mutex
	face font.Face
}

func newFont(name string, size int, category FontCategory, face font.Face) *Font {
	return &Font{Name: name, Size: size, Category: category, face: face}
}

// Metrics returns the face's vertical metrics
func (f *Font) Metrics() font.Metrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.face.Metrics()
}

// LineHeight is the ascent plus descent in whole pixels
func (f *Font) LineHeight() int {
	m := f.Metrics()
	return (m.Ascent + m.Descent).Ceil()
}

// Width is the advance width of s in whole pixels
func (f *Font) Width(s string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return font.MeasureString(f.face, s).Ceil()
}

// Bounds returns the ink bounds of s drawn with its top-left at (x, y)
func (f *Font) Bounds(s string, x, y int) image.Rectangle {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, _ := font.BoundString(f.face, s)
	ascent := f.face.Metrics().Ascent.Ceil()
	return image.Rect(
		x+b.Min.X.Floor(), y+ascent+b.Min.Y.Floor(),
		x+b.Max.X.Ceil(), y+ascent+b.Max.Y.Ceil(),
	)
}

// Draw renders s with its top-left corner at (x, y)
func (f *Font) Draw(dst draw.Image, s string, x, y int, c color.Color) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: f.face,
		Dot:  fixed.P(x, y+f.face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}
