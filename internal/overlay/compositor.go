// Package overlay draws date/time, text and state icon blocks onto a canvas.
package overlay

import (
	"context"
	"image"
	"image/color"
	"math"
	"sort"
	"time"

	"github.com/koios/snapshot-processor/internal/imaging"
	"github.com/koios/snapshot-processor/internal/rules"
	"github.com/koios/snapshot-processor/pkg/mdi"
	"github.com/koios/snapshot-processor/pkg/models"
	"github.com/tidbyt/gg"
	"go.uber.org/zap"
)

const (
	minPadding       = 8
	paddingRatio     = 0.4
	iconCircleRatio  = 0.3
	missingIconGlyph = "●"
)

var contrastColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// StateSource looks up the current state string of an entity
type StateSource interface {
	State(ctx context.Context, entityID string) (string, bool)
}

// TemplateRenderer evaluates templated text
type TemplateRenderer interface {
	Render(ctx context.Context, template string) (string, error)
}

// Part is one independently styled run of text inside a block
type Part struct {
	Text           string
	Color          color.NRGBA
	Font           *imaging.Font
	IconBackground bool
}

// Block is a resolved overlay ready to be drawn
type Block struct {
	Position   models.Position
	Parts      []Part
	Background color.NRGBA
	Shadow     *models.Shadow
}

// Compositor turns overlay descriptors into drawn blocks
type Compositor struct {
	fonts     *imaging.FontCache
	states    StateSource
	templates TemplateRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewCompositor creates a compositor. states and templates may be nil, in
// which case state icons are skipped and templated text renders empty.
func NewCompositor(fonts *imaging.FontCache, states StateSource, templates TemplateRenderer, logger *zap.Logger) *Compositor {
	return &Compositor{
		fonts:     fonts,
		states:    states,
		templates: templates,
		logger:    logger,
		now:       time.Now,
	}
}

// Plan resolves overlays into blocks in fixed priority: date/time, free
// text, then state icons in configured order. Overlays with nothing to show
// produce no block.
func (c *Compositor) Plan(ctx context.Context, cfg *models.CameraConfig) []Block {
	overlays := make([]models.Overlay, len(cfg.Overlays))
	copy(overlays, cfg.Overlays)
	sort.SliceStable(overlays, func(i, j int) bool {
		return priority(overlays[i]) < priority(overlays[j])
	})

	blocks := make([]Block, 0, len(overlays))
	for _, o := range overlays {
		var (
			block Block
			ok    bool
		)

		switch v := o.(type) {
		case *models.DateTimeOverlay:
			block, ok = c.planDateTime(v)
		case *models.TextOverlay:
			block, ok = c.planText(v)
		case *models.StateIconOverlay:
			block, ok = c.planStateIcon(ctx, v)
		default:
			c.logger.Warn("Unknown overlay type ignored", zap.String("camera_id", cfg.ID))
		}

		if ok {
			blocks = append(blocks, block)
		}
	}

	return blocks
}

func priority(o models.Overlay) int {
	switch o.(type) {
	case *models.DateTimeOverlay:
		return 0
	case *models.TextOverlay:
		return 1
	default:
		return 2
	}
}

func (c *Compositor) planDateTime(o *models.DateTimeOverlay) (Block, bool) {
	text, err := Strftime(c.now(), o.Format)
	if err != nil {
		c.logger.Warn("Unsupported datetime format, drawing it verbatim",
			zap.String("format", o.Format),
			zap.Error(err))
		text = o.Format
	}
	if text == "" {
		return Block{}, false
	}
	return c.single(o.OverlayStyle, text), true
}

func (c *Compositor) planText(o *models.TextOverlay) (Block, bool) {
	if o.Text == "" {
		return Block{}, false
	}
	return c.single(o.OverlayStyle, o.Text), true
}

func (c *Compositor) single(style models.OverlayStyle, text string) Block {
	return Block{
		Position:   style.Position,
		Background: style.Background,
		Shadow:     style.Shadow,
		Parts: []Part{{
			Text:  text,
			Color: style.Color,
			Font:  c.fonts.Get(style.FontSize, imaging.CategoryText),
		}},
	}
}

func (c *Compositor) planStateIcon(ctx context.Context, o *models.StateIconOverlay) (Block, bool) {
	if c.states == nil {
		return Block{}, false
	}

	state, found := c.states.State(ctx, o.Entity)
	if !found {
		c.logger.Debug("Entity state unavailable, skipping state icon", zap.String("entity", o.Entity))
		return Block{}, false
	}

	rule := rules.Evaluate(state, o.Rules)
	if rule == nil {
		c.logger.Debug("No state rule matched and no default rule, state icon not displayed",
			zap.String("entity", o.Entity),
			zap.String("state", state))
		return Block{}, false
	}
	look := rule.Appearance

	text := look.Text
	if look.TextTemplate && text != "" {
		text = c.renderTemplate(ctx, text)
	}

	iconGlyph, iconFont := c.resolveIcon(look, o.FontSize)
	textFont := c.fonts.Get(o.FontSize, imaging.CategoryText)

	var parts []Part
	if o.Label != "" && o.ShowLabel {
		labelColor := look.TextColor
		if o.LabelColor != nil {
			labelColor = *o.LabelColor
		}
		parts = append(parts, Part{Text: o.Label + ":", Color: labelColor, Font: textFont})
	}

	var iconPart, textPart *Part
	if iconGlyph != "" {
		iconPart = &Part{Text: iconGlyph, Color: look.IconColor, Font: iconFont, IconBackground: look.IconBackground}
	}
	if text != "" {
		textPart = &Part{Text: text, Color: look.TextColor, Font: textFont}
	}

	first, second := iconPart, textPart
	if look.DisplayOrder == models.TextFirst {
		first, second = textPart, iconPart
	}
	for _, p := range []*Part{first, second} {
		if p != nil {
			parts = append(parts, *p)
		}
	}

	if len(parts) == 0 {
		return Block{}, false
	}

	return Block{
		Position:   o.Position,
		Parts:      parts,
		Background: o.Background,
		Shadow:     o.Shadow,
	}, true
}

func (c *Compositor) renderTemplate(ctx context.Context, tmpl string) string {
	if c.templates == nil {
		c.logger.Warn("No template renderer configured, templated text left empty")
		return ""
	}

	out, err := c.templates.Render(ctx, tmpl)
	if err != nil {
		c.logger.Warn("Failed to render template", zap.String("template", tmpl), zap.Error(err))
		return ""
	}
	return out
}

// resolveIcon prefers a pre-resolved codepoint, then the MDI table, then
// treats the icon as emoji/text. Unknown MDI names fall back to a bullet.
func (c *Compositor) resolveIcon(look models.Appearance, size int) (string, *imaging.Font) {
	if look.IconCodepoint != "" {
		return look.IconCodepoint, c.fonts.Get(size, imaging.CategoryIcon)
	}
	if look.Icon == "" {
		return "", nil
	}

	if mdi.IsIcon(look.Icon) {
		if glyph, ok := mdi.Glyph(look.Icon); ok {
			return glyph, c.fonts.Get(size, imaging.CategoryIcon)
		}
		c.logger.Warn("MDI icon not found in mappings, using fallback glyph", zap.String("icon", look.Icon))
		return missingIconGlyph, c.fonts.Get(size, imaging.CategoryEmoji)
	}

	return look.Icon, c.fonts.Get(size, imaging.CategoryEmoji)
}

// layout holds the measurements of one block
type layout struct {
	widths  []int
	width   int
	height  int
	padding int
}

func measure(b Block) layout {
	l := layout{widths: make([]int, len(b.Parts))}
	for i, p := range b.Parts {
		l.widths[i] = p.Font.Width(p.Text + " ")
		l.width += l.widths[i]
		if h := p.Font.LineHeight(); h > l.height {
			l.height = h
		}
	}
	if n := len(b.Parts); n > 0 {
		l.width -= b.Parts[n-1].Font.Width(" ")
	}

	l.padding = Padding(l.height)
	return l
}

// Padding is the clearance around a block of the given glyph height
func Padding(height int) int {
	p := int(math.Round(paddingRatio * float64(height)))
	if p < minPadding {
		return minPadding
	}
	return p
}

// anchor returns the text origin of a block. The margin between canvas edge
// and background equals the padding; stack is the distance from the corner's
// edge to the far side of the previous block at the same corner.
func anchor(bounds image.Rectangle, pos models.Position, l layout, stack int) (int, int) {
	margin, pad := l.padding, l.padding

	x := bounds.Min.X + margin + pad
	if pos == models.TopRight || pos == models.BottomRight {
		x = bounds.Max.X - l.width - margin - pad
	}

	y := bounds.Min.Y + margin + pad + stack
	if pos == models.BottomLeft || pos == models.BottomRight {
		y = bounds.Max.Y - l.height - margin - 2*pad - stack
	}

	return x, y
}

// Draw renders blocks onto canvas and returns each block's background
// rectangle in drawing order.
func (c *Compositor) Draw(canvas *image.RGBA, blocks []Block) []image.Rectangle {
	dc := gg.NewContextForRGBA(canvas)
	stacks := make(map[models.Position]int, len(models.Positions))
	rects := make([]image.Rectangle, 0, len(blocks))

	for _, b := range blocks {
		if len(b.Parts) == 0 {
			continue
		}

		l := measure(b)
		x, y := anchor(canvas.Bounds(), b.Position, l, stacks[b.Position])
		pad := l.padding
		box := image.Rect(x-pad, y-pad, x+l.width+pad, y+l.height+pad)

		if b.Background.A > 0 {
			dc.SetColor(b.Background)
			dc.DrawRectangle(float64(box.Min.X), float64(box.Min.Y), float64(box.Dx()), float64(box.Dy()))
			dc.Fill()
		}

		for i, p := range b.Parts {
			fill := p.Color
			if p.IconBackground {
				drawIconCircle(dc, p, x, y)
				fill = contrastColor
			}

			text := p.Text
			if i < len(b.Parts)-1 {
				text += " "
			}
			if b.Shadow != nil {
				p.Font.Draw(canvas, text, x+b.Shadow.OffsetX, y+b.Shadow.OffsetY, b.Shadow.Color)
			}
			p.Font.Draw(canvas, text, x, y, fill)
			x += l.widths[i]
		}

		if b.Position == models.BottomLeft || b.Position == models.BottomRight {
			stacks[b.Position] = canvas.Bounds().Max.Y - box.Min.Y
		} else {
			stacks[b.Position] = box.Max.Y - canvas.Bounds().Min.Y
		}
		rects = append(rects, box)
	}

	return rects
}

// drawIconCircle fills a circle in the part's color behind its glyph, sized
// to the glyph bounds plus 30%
func drawIconCircle(dc *gg.Context, p Part, x, y int) {
	ink := p.Font.Bounds(p.Text, x, y)
	size := float64(ink.Dx())
	if h := float64(ink.Dy()); h > size {
		size = h
	}
	if size <= 0 {
		return
	}

	cx := float64(ink.Min.X) + float64(ink.Dx())/2
	cy := float64(ink.Min.Y) + float64(ink.Dy())/2
	radius := (size + size*iconCircleRatio) / 2

	dc.SetColor(p.Color)
	dc.DrawEllipse(cx, cy, radius, radius)
	dc.Fill()
}
