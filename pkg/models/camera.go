package models

import "image/color"

// Position is one of the four canvas corners an overlay block is anchored to
type Position string

const (
	TopLeft     Position = "top_left"
	TopRight    Position = "top_right"
	BottomLeft  Position = "bottom_left"
	BottomRight Position = "bottom_right"
)

// Positions lists every corner in stacking-table order
var Positions = []Position{TopLeft, TopRight, BottomLeft, BottomRight}

// ResizeFilter selects interpolation quality; it never changes output dimensions
type ResizeFilter string

const (
	FilterLanczos  ResizeFilter = "lanczos"
	FilterBilinear ResizeFilter = "bilinear"
)

// Condition is the comparison kind of a StateRule
type Condition string

const (
	CondEquals      Condition = "equals"
	CondNotEquals   Condition = "not_equals"
	CondIn          Condition = "in"
	CondNotIn       Condition = "not_in"
	CondContains    Condition = "contains"
	CondNotContains Condition = "not_contains"
	CondGT          Condition = "gt"
	CondGTE         Condition = "gte"
	CondLT          Condition = "lt"
	CondLTE         Condition = "lte"
	CondAnyState    Condition = "any_state"
	CondIsDefault   Condition = "is_default"
)

// DisplayOrder decides whether the icon or the status text is drawn first
type DisplayOrder string

const (
	IconFirst DisplayOrder = "icon_first"
	TextFirst DisplayOrder = "text_first"
)

// CropRect is the requested crop in source pixel coordinates, before clamping.
// A zero Width or Height extends the crop to the source edge.
type CropRect struct {
	X      int
	Y      int
	Width  int `validate:"gte=0"`
	Height int `validate:"gte=0"`
}

// Shadow is an offset copy of the text drawn beneath it
type Shadow struct {
	Color   color.NRGBA
	OffsetX int
	OffsetY int
}

// OverlayStyle carries the appearance shared by every overlay kind
type OverlayStyle struct {
	Position   Position `validate:"oneof=top_left top_right bottom_left bottom_right"`
	FontSize   int      `validate:"min=1,max=512"`
	Color      color.NRGBA
	Background color.NRGBA
	Shadow     *Shadow
}

// Overlay is the closed set {DateTimeOverlay, TextOverlay, StateIconOverlay}
type Overlay interface {
	isOverlay()
}

// DateTimeOverlay draws the render time formatted with a strftime layout
type DateTimeOverlay struct {
	OverlayStyle
	Format string
}

// TextOverlay draws a fixed string
type TextOverlay struct {
	OverlayStyle
	Text string
}

// StateIconOverlay draws an icon/text block chosen from an entity's state
type StateIconOverlay struct {
	OverlayStyle
	Entity     string `validate:"required"`
	Label      string
	ShowLabel  bool
	LabelColor *color.NRGBA
	Rules      []StateRule `validate:"dive"`
}

func (*DateTimeOverlay) isOverlay()  {}
func (*TextOverlay) isOverlay()      {}
func (*StateIconOverlay) isOverlay() {}

// Appearance is what a matched rule draws
type Appearance struct {
	Icon           string
	IconCodepoint  string
	Text           string
	TextTemplate   bool
	IconColor      color.NRGBA
	TextColor      color.NRGBA
	DisplayOrder   DisplayOrder `validate:"oneof=icon_first text_first"`
	IconBackground bool
}

// StateRule pairs a condition on the entity state with an appearance.
// Value is kept verbatim; evaluation lower-cases it.
type StateRule struct {
	Condition  Condition `validate:"oneof=equals not_equals in not_in contains not_contains gt gte lt lte any_state is_default"`
	Value      string
	Default    bool
	Appearance Appearance
}

// IsDefault reports whether the rule is the fallback chosen when no other
// rule matches, either by flag or by its is_default condition
func (r StateRule) IsDefault() bool {
	return r.Default || r.Condition == CondIsDefault
}

// CameraConfig is the immutable per-render description of one processed camera.
// Width and Height are zero when unset.
type CameraConfig struct {
	ID         string `validate:"required"`
	EntityName string
	Source     string `validate:"required"`
	Width      int    `validate:"gte=0"`
	Height     int    `validate:"gte=0"`
	KeepRatio  bool
	Crop       *CropRect
	Quality    int          `validate:"min=1,max=100"`
	Filter     ResizeFilter `validate:"oneof=lanczos bilinear"`
	Overlays   []Overlay
}
