// Package render rasterizes viewer views into images.
package render

import "math"

// WindowLevel maps intensities to gray levels: Level is the center of the
// mapped range and Window its width.
type WindowLevel struct {
	Window float64 `json:"window"`
	Level  float64 `json:"level"`
}

// FromRange builds a window/level covering [min, max].
func FromRange(min, max float64) WindowLevel {
	return WindowLevel{Window: max - min, Level: (min + max) / 2}
}

// Range is the inverse of FromRange.
func (wl WindowLevel) Range() (min, max float64) {
	return wl.Level - wl.Window/2, wl.Level + wl.Window/2
}

// Map returns the 8 bit gray value for v.
func (wl WindowLevel) Map(v float64) uint8 {
	if wl.Window <= 0 {
		if v >= wl.Level {
			return 255
		}
		return 0
	}
	lo := wl.Level - wl.Window/2
	t := (v - lo) / wl.Window
	return uint8(math.Round(255 * math.Max(0, math.Min(1, t))))
}

// Adjust moves window and level by the given deltas, keeping window positive.
func (wl WindowLevel) Adjust(dWindow, dLevel float64) WindowLevel {
	out := WindowLevel{Window: wl.Window + dWindow, Level: wl.Level + dLevel}
	if out.Window < 1e-6 {
		out.Window = 1e-6
	}
	return out
}
