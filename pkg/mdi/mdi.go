// Package mdi resolves Material Design Icons names to glyphs.
package mdi

import "strings"

// codepoints maps Material Design Icons names to their private-use codepoints
var codepoints = map[string]rune{
	// CCTV & Cameras
	"cctv":            0xF07AE,
	"cctv-off":        0xF185F,
	"camera":          0xF0100,
	"camera-off":      0xF05DF,
	"camera-iris":     0xF0104,
	"camera-wireless": 0xF0DB6,
	"video":           0xF0567,
	"video-off":       0xF0568,
	"webcam":          0xF05A0,
	"webcam-off":      0xF1737,

	// Motion & Detection
	"motion-sensor":     0xF0D91,
	"motion-sensor-off": 0xF1435,
	"motion":            0xF15B2,
	"motion-outline":    0xF15B3,
	"walk":              0xF0583,
	"run":               0xF070E,
	"human":             0xF02E6,
	"human-greeting":    0xF17C4,
	"eye":               0xF0208,
	"eye-off":           0xF0209,
	"eye-check":         0xF0D04,
	"radar":             0xF0437,

	// Alarms & Bells
	"alarm":               0xF0020,
	"alarm-light":         0xF078F,
	"alarm-bell":          0xF078E,
	"alarm-panel":         0xF15C4,
	"alarm-panel-outline": 0xF15C5,
	"bell":                0xF009A,
	"bell-ring":           0xF009E,
	"bell-off":            0xF009B,
	"bell-alert":          0xF0D59,
	"bell-outline":        0xF009C,
	"bullhorn":            0xF00E6,
	"bullhorn-outline":    0xF0B23,

	// Lights & Spotlights
	"lightbulb":             0xF0335,
	"lightbulb-on":          0xF06E8,
	"lightbulb-off":         0xF0E4F,
	"lightbulb-outline":     0xF0336,
	"lightbulb-on-outline":  0xF06E9,
	"lightbulb-off-outline": 0xF0E50,
	"light-switch":          0xF097E,
	"spotlight":             0xF04C8,
	"spotlight-beam":        0xF04C9,
	"flashlight":            0xF0244,
	"flashlight-off":        0xF0245,
	"light-flood-down":      0xF1987,
	"light-flood-up":        0xF1988,
	"outdoor-lamp":          0xF1054,
	"lamp":                  0xF06B5,
	"ceiling-light":         0xF0769,
	"floor-lamp":            0xF08DD,

	// Security & Locks
	"lock":              0xF033E,
	"lock-open":         0xF033F,
	"lock-alert":        0xF08EE,
	"lock-open-alert":   0xF139B,
	"lock-open-variant": 0xF0FC6,
	"shield":            0xF0498,
	"shield-check":      0xF0565,
	"shield-alert":      0xF0ECC,
	"shield-home":       0xF068A,
	"shield-key":        0xF0BC4,
	"security":          0xF0483,

	// Doors & Access
	"door":                0xF081A,
	"door-open":           0xF081C,
	"door-closed":         0xF081B,
	"door-closed-lock":    0xF10AF,
	"garage":              0xF06D9,
	"garage-open":         0xF06DA,
	"garage-open-variant": 0xF12D4,
	"garage-variant":      0xF12D3,
	"gate":                0xF0299,
	"gate-open":           0xF116A,

	// Windows
	"window-open":         0xF05B1,
	"window-closed":       0xF05AE,
	"window-shutter":      0xF111C,
	"window-shutter-open": 0xF111E,

	// Fire & Smoke Detection
	"smoke-detector":         0xF0392,
	"smoke-detector-alert":   0xF192E,
	"smoke-detector-variant": 0xF180B,
	"fire-alert":             0xF15D7,
	"fire-extinguisher":      0xF0EF2,
	"fire":                   0xF0238,

	// Power & Energy
	"power":           0xF0425,
	"power-off":       0xF0902,
	"power-plug":      0xF06A5,
	"power-socket":    0xF0427,
	"electric-switch": 0xF0E9F,
	"toggle-switch":   0xF0521,
	"flash":           0xF0241,
	"flash-off":       0xF0243,
	"lightning-bolt":  0xF140B,

	// Climate
	"thermometer":     0xF050F,
	"water-percent":   0xF058E,
	"snowflake":       0xF0717,
	"fan":             0xF0210,
	"fan-off":         0xF081D,
	"air-conditioner": 0xF001B,
	"radiator":        0xF0438,

	// Weather
	"weather-cloudy":        0xF0590,
	"weather-sunny":         0xF0599,
	"weather-rainy":         0xF0597,
	"weather-snowy":         0xF0598,
	"weather-partly-cloudy": 0xF0595,
	"weather-night":         0xF0594,

	// Home & Rooms
	"home":         0xF02DC,
	"home-outline": 0xF06A1,
	"sofa":         0xF04B9,
	"bed":          0xF02E3,
	"shower":       0xF09A0,
	"stove":        0xF04DE,
	"fridge":       0xF0290,

	// Appliances
	"washing-machine": 0xF072A,
	"dishwasher":      0xF0AAC,
	"robot-vacuum":    0xF070D,
	"microwave":       0xF0C99,

	// Entertainment
	"television": 0xF0502,
	"speaker":    0xF04C3,
	"music":      0xF075A,

	// Navigation
	"arrow-up":     0xF005D,
	"arrow-down":   0xF0045,
	"arrow-left":   0xF004D,
	"arrow-right":  0xF0054,
	"chevron-up":   0xF0143,
	"chevron-down": 0xF0140,
	"menu":         0xF035C,

	// Status
	"check":        0xF012C,
	"check-circle": 0xF05E0,
	"close":        0xF0156,
	"close-circle": 0xF0159,
	"alert":        0xF0026,
	"alert-circle": 0xF0028,
	"information":  0xF02FC,

	// Misc
	"car": 0xF010B,
}

// IsIcon reports whether an icon names a Material Design glyph ("mdi:name")
func IsIcon(icon string) bool {
	return strings.HasPrefix(icon, "mdi:")
}

// Glyph returns the glyph for an icon name, with or without the prefix
func Glyph(name string) (string, bool) {
	r, ok := codepoints[strings.TrimPrefix(name, "mdi:")]
	if !ok {
		return "", false
	}
	return string(r), true
}
