package models

import (
	"image/color"
	"strconv"
	"strings"
)

// White is the substitute for any color that cannot be read
var White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// NormalizeColor canonicalizes a configured color into an RGBA quadruple.
// Accepted forms are a list of at least three channel values ([r, g, b]) and
// hex strings of 6 (opaque) or 8 (with alpha) digits, with or without '#'.
// Anything else yields opaque white.
func NormalizeColor(value interface{}) color.NRGBA {
	switch v := value.(type) {
	case color.NRGBA:
		return v
	case *color.NRGBA:
		if v == nil {
			return White
		}
		return *v
	case string:
		return ParseHexColor(v)
	case []int:
		if len(v) < 3 {
			return White
		}
		return color.NRGBA{R: channel(float64(v[0])), G: channel(float64(v[1])), B: channel(float64(v[2])), A: 255}
	case []float64:
		if len(v) < 3 {
			return White
		}
		return color.NRGBA{R: channel(v[0]), G: channel(v[1]), B: channel(v[2]), A: 255}
	case []interface{}:
		if len(v) < 3 {
			return White
		}
		var c [3]uint8
		for i := 0; i < 3; i++ {
			f, ok := toFloat(v[i])
			if !ok {
				return White
			}
			c[i] = channel(f)
		}
		return color.NRGBA{R: c[0], G: c[1], B: c[2], A: 255}
	default:
		return White
	}
}

// ParseHexColor parses RRGGBB or RRGGBBAA; malformed input yields opaque white
func ParseHexColor(s string) color.NRGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 && len(s) != 8 {
		return White
	}

	var ch [4]uint8
	ch[3] = 255
	for i := 0; i < len(s)/2; i++ {
		n, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return White
		}
		ch[i] = uint8(n)
	}

	return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: ch[3]}
}

func channel(f float64) uint8 {
	switch {
	case f <= 0:
		return 0
	case f >= 255:
		return 255
	default:
		return uint8(f)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
