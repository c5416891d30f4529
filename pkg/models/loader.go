package models

import (
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a camera file leaves a field out
const (
	DefaultQuality          = 85
	DefaultDateTimeFormat   = "%Y-%m-%d %H:%M:%S"
	DefaultDateTimeFontSize = 24
	DefaultTextFontSize     = 20
	DefaultStateFontSize    = 18
	DefaultShadowOffset     = 2
)

var (
	defaultOverlayColor  = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	defaultBackground    = color.NRGBA{}
	defaultShadowColor   = color.NRGBA{A: 255}
	defaultLegacyOnIcon  = color.NRGBA{R: 255, G: 215, B: 0, A: 255}
	defaultLegacyOffIcon = color.NRGBA{R: 100, G: 100, B: 100, A: 255}
	defaultLegacyOffText = color.NRGBA{R: 150, G: 150, B: 150, A: 255}
	defaultRuleColor     = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	validate             = validator.New(validator.WithRequiredStructEnabled())
)

// CameraFile is the on-disk document: a list of camera definitions
type CameraFile struct {
	Cameras []RawCamera `yaml:"cameras"`
}

// RawCamera mirrors the loosely-typed camera configuration as stored.
// Colors may be [r, g, b] lists or hex strings; numbers may arrive as floats.
type RawCamera struct {
	ID              string   `yaml:"id"`
	SourceCamera    string   `yaml:"source_camera"`
	EntityName      string   `yaml:"entity_name"`
	Width           *float64 `yaml:"width"`
	Height          *float64 `yaml:"height"`
	KeepRatio       *bool    `yaml:"keep_ratio"`
	Quality         *float64 `yaml:"quality"`
	ResizeAlgorithm string   `yaml:"resize_algorithm"`

	CropEnabled bool `yaml:"crop_enabled"`
	CropX       int  `yaml:"crop_x"`
	CropY       int  `yaml:"crop_y"`
	CropWidth   *int `yaml:"crop_width"`
	CropHeight  *int `yaml:"crop_height"`

	DateTimeEnabled  bool     `yaml:"datetime_enabled"`
	DateTimeFormat   string   `yaml:"datetime_format"`
	DateTimePosition string   `yaml:"datetime_position"`
	DateTimeFontSize *float64 `yaml:"datetime_font_size"`

	TextEnabled  bool     `yaml:"text_enabled"`
	TextValue    string   `yaml:"text_value"`
	TextPosition string   `yaml:"text_position"`
	TextFontSize *float64 `yaml:"text_font_size"`

	OverlayFontSize   *float64    `yaml:"overlay_font_size"`
	OverlayColor      interface{} `yaml:"overlay_color"`
	OverlayBackground interface{} `yaml:"overlay_background"`

	TextShadowEnabled bool        `yaml:"text_shadow_enabled"`
	TextShadowColor   interface{} `yaml:"text_shadow_color"`
	TextShadowOffsetX *int        `yaml:"text_shadow_offset_x"`
	TextShadowOffsetY *int        `yaml:"text_shadow_offset_y"`

	StateIconBackground    interface{} `yaml:"state_icon_background"`
	StateIconShadowEnabled bool        `yaml:"state_icon_shadow_enabled"`
	StateIconShadowColor   interface{} `yaml:"state_icon_shadow_color"`
	StateIconShadowOffsetX *int        `yaml:"state_icon_shadow_offset_x"`
	StateIconShadowOffsetY *int        `yaml:"state_icon_shadow_offset_y"`

	StateIcons []RawStateIcon `yaml:"state_icons"`
}

// RawStateIcon holds either a state_rules list or the legacy on/off fields
type RawStateIcon struct {
	Entity     string      `yaml:"entity"`
	Position   string      `yaml:"position"`
	FontSize   *float64    `yaml:"font_size"`
	Label      string      `yaml:"label"`
	ShowLabel  *bool       `yaml:"show_label"`
	LabelColor interface{} `yaml:"label_color"`

	StateRules []RawStateRule `yaml:"state_rules"`

	StateOn      *string     `yaml:"state_on"`
	StateOff     *string     `yaml:"state_off"`
	IconOn       *string     `yaml:"icon_on"`
	IconOff      *string     `yaml:"icon_off"`
	TextOn       *string     `yaml:"text_on"`
	TextOff      *string     `yaml:"text_off"`
	IconColorOn  interface{} `yaml:"icon_color_on"`
	IconColorOff interface{} `yaml:"icon_color_off"`
	ColorOn      interface{} `yaml:"color_on"`
	ColorOff     interface{} `yaml:"color_off"`
	TextColorOn  interface{} `yaml:"text_color_on"`
	TextColorOff interface{} `yaml:"text_color_off"`
}

// RawStateRule is one entry of state_rules
type RawStateRule struct {
	Condition      string      `yaml:"condition"`
	Value          interface{} `yaml:"value"`
	IsDefault      bool        `yaml:"is_default"`
	Icon           string      `yaml:"icon"`
	IconCodepoint  string      `yaml:"icon_codepoint"`
	Text           string      `yaml:"text"`
	TextTemplate   bool        `yaml:"text_template"`
	IconColor      interface{} `yaml:"icon_color"`
	TextColor      interface{} `yaml:"text_color"`
	DisplayOrder   string      `yaml:"display_order"`
	IconBackground bool        `yaml:"icon_background"`
}

// LoadCameraFile reads and parses a YAML camera document
func LoadCameraFile(path string) (*CameraFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read camera file: %w", err)
	}

	return ParseCameraFile(data)
}

// ParseCameraFile parses a camera document. JSON documents are accepted too.
func ParseCameraFile(data []byte) (*CameraFile, error) {
	var file CameraFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse camera file: %w", err)
	}

	return &file, nil
}

// Normalize resolves every default and legacy shape once, producing the typed
// configuration the engine consumes, and validates it.
func (r *RawCamera) Normalize() (*CameraConfig, error) {
	cfg := &CameraConfig{
		ID:         r.ID,
		EntityName: r.EntityName,
		Source:     strings.TrimSpace(r.SourceCamera),
		KeepRatio:  true,
		Quality:    DefaultQuality,
		Filter:     FilterLanczos,
	}

	if cfg.EntityName == "" && cfg.Source != "" {
		cfg.EntityName = defaultEntityName(cfg.Source)
	}
	if r.Width != nil {
		cfg.Width = int(*r.Width)
	}
	if r.Height != nil {
		cfg.Height = int(*r.Height)
	}
	if r.KeepRatio != nil {
		cfg.KeepRatio = *r.KeepRatio
	}
	if r.Quality != nil {
		cfg.Quality = int(*r.Quality)
	}
	if r.ResizeAlgorithm != "" {
		cfg.Filter = ResizeFilter(r.ResizeAlgorithm)
	}

	if r.CropEnabled {
		crop := &CropRect{X: r.CropX, Y: r.CropY}
		if r.CropWidth != nil {
			crop.Width = *r.CropWidth
		}
		if r.CropHeight != nil {
			crop.Height = *r.CropHeight
		}
		cfg.Crop = crop
	}

	overlayColor := colorOr(r.OverlayColor, defaultOverlayColor)
	background := colorOr(r.OverlayBackground, defaultBackground)

	var textShadow *Shadow
	if r.TextShadowEnabled {
		textShadow = &Shadow{
			Color:   colorOr(r.TextShadowColor, defaultShadowColor),
			OffsetX: intOr(r.TextShadowOffsetX, DefaultShadowOffset),
			OffsetY: intOr(r.TextShadowOffsetY, DefaultShadowOffset),
		}
	}

	if r.DateTimeEnabled {
		format := r.DateTimeFormat
		if format == "" {
			format = DefaultDateTimeFormat
		}
		cfg.Overlays = append(cfg.Overlays, &DateTimeOverlay{
			OverlayStyle: OverlayStyle{
				Position:   positionOr(r.DateTimePosition, TopLeft),
				FontSize:   fontSize(r.DateTimeFontSize, r.OverlayFontSize, DefaultDateTimeFontSize),
				Color:      overlayColor,
				Background: background,
				Shadow:     textShadow,
			},
			Format: format,
		})
	}

	if r.TextEnabled && r.TextValue != "" {
		cfg.Overlays = append(cfg.Overlays, &TextOverlay{
			OverlayStyle: OverlayStyle{
				Position:   positionOr(r.TextPosition, TopRight),
				FontSize:   fontSize(r.TextFontSize, r.OverlayFontSize, DefaultTextFontSize),
				Color:      overlayColor,
				Background: background,
				Shadow:     textShadow,
			},
			Text: r.TextValue,
		})
	}

	iconBackground := background
	if r.StateIconBackground != nil {
		iconBackground = NormalizeColor(r.StateIconBackground)
	}
	var iconShadow *Shadow
	if r.StateIconShadowEnabled {
		iconShadow = &Shadow{
			Color:   colorOr(r.StateIconShadowColor, defaultShadowColor),
			OffsetX: intOr(r.StateIconShadowOffsetX, DefaultShadowOffset),
			OffsetY: intOr(r.StateIconShadowOffsetY, DefaultShadowOffset),
		}
	}

	for i := range r.StateIcons {
		raw := &r.StateIcons[i]
		if raw.Entity == "" {
			continue
		}
		icon := &StateIconOverlay{
			OverlayStyle: OverlayStyle{
				Position:   positionOr(raw.Position, BottomRight),
				FontSize:   fontSize(raw.FontSize, r.OverlayFontSize, DefaultStateFontSize),
				Color:      overlayColor,
				Background: iconBackground,
				Shadow:     iconShadow,
			},
			Entity:    raw.Entity,
			Label:     raw.Label,
			ShowLabel: raw.ShowLabel == nil || *raw.ShowLabel,
			Rules:     raw.rules(),
		}
		if raw.LabelColor != nil {
			c := NormalizeColor(raw.LabelColor)
			icon.LabelColor = &c
		}
		cfg.Overlays = append(cfg.Overlays, icon)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the typed configuration once at the boundary
func (c *CameraConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("camera %q: %w", c.ID, err)
	}
	if c.Crop != nil {
		if err := validate.Struct(c.Crop); err != nil {
			return fmt.Errorf("camera %q crop: %w", c.ID, err)
		}
	}

	for i, o := range c.Overlays {
		if err := validate.Struct(o); err != nil {
			return fmt.Errorf("camera %q overlay %d: %w", c.ID, i, err)
		}
		if icon, ok := o.(*StateIconOverlay); ok {
			defaults := 0
			for _, rule := range icon.Rules {
				if rule.IsDefault() {
					defaults++
				}
			}
			if defaults > 1 {
				return fmt.Errorf("camera %q overlay %d: %d rules flagged default, at most one allowed", c.ID, i, defaults)
			}
		}
	}

	return nil
}

// rules resolves either shape of state icon configuration into a rule list.
// The legacy on/off fields are only consulted when no state_rules exist.
func (r *RawStateIcon) rules() []StateRule {
	if len(r.StateRules) > 0 {
		rules := make([]StateRule, 0, len(r.StateRules))
		for _, raw := range r.StateRules {
			cond := Condition(strings.ToLower(strings.TrimSpace(raw.Condition)))
			if cond == "" {
				cond = CondEquals
			}
			order := DisplayOrder(raw.DisplayOrder)
			if order == "" {
				order = IconFirst
			}
			rules = append(rules, StateRule{
				Condition: cond,
				Value:     stringify(raw.Value),
				Default:   raw.IsDefault || cond == CondIsDefault,
				Appearance: Appearance{
					Icon:           raw.Icon,
					IconCodepoint:  raw.IconCodepoint,
					Text:           raw.Text,
					TextTemplate:   raw.TextTemplate,
					IconColor:      colorOr(raw.IconColor, defaultRuleColor),
					TextColor:      colorOr(raw.TextColor, defaultRuleColor),
					DisplayOrder:   order,
					IconBackground: raw.IconBackground,
				},
			})
		}
		return rules
	}

	onIconColor := r.IconColorOn
	if onIconColor == nil {
		onIconColor = r.ColorOn
	}
	offIconColor := r.IconColorOff
	if offIconColor == nil {
		offIconColor = r.ColorOff
	}

	return []StateRule{
		{
			Condition: CondEquals,
			Value:     strOr(r.StateOn, "on"),
			Appearance: Appearance{
				Icon:         strOr(r.IconOn, "💡"),
				Text:         strOr(r.TextOn, "ON"),
				IconColor:    colorOr(onIconColor, defaultLegacyOnIcon),
				TextColor:    colorOr(r.TextColorOn, defaultRuleColor),
				DisplayOrder: IconFirst,
			},
		},
		{
			Condition: CondEquals,
			Value:     strOr(r.StateOff, "off"),
			Appearance: Appearance{
				Icon:         strOr(r.IconOff, "🌑"),
				Text:         strOr(r.TextOff, "OFF"),
				IconColor:    colorOr(offIconColor, defaultLegacyOffIcon),
				TextColor:    colorOr(r.TextColorOff, defaultLegacyOffText),
				DisplayOrder: IconFirst,
			},
		},
	}
}

func defaultEntityName(source string) string {
	name := strings.TrimPrefix(source, "camera.")
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexAny(name, ".?"); i > 0 {
		name = name[:i]
	}
	if name == "" {
		name = "camera"
	}
	return name + "_processed"
}

func colorOr(value interface{}, fallback color.NRGBA) color.NRGBA {
	if value == nil {
		return fallback
	}
	return NormalizeColor(value)
}

func positionOr(value string, fallback Position) Position {
	if value == "" {
		return fallback
	}
	return Position(value)
}

func fontSize(specific, legacy *float64, fallback int) int {
	if specific != nil {
		return int(*specific)
	}
	if legacy != nil {
		return int(*legacy)
	}
	return fallback
}

func intOr(value *int, fallback int) int {
	if value == nil {
		return fallback
	}
	return *value
}

func strOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
