package catalog

import (
	"image/color"
	"strconv"
	"strings"
)

// Destination extracts the destination from a route name such as
// "Koridor 1: Cicaheum → Cibeureum".
func Destination(name string) string {
	if i := strings.Index(name, "→"); i != -1 {
		d := strings.TrimSpace(name[i+len("→"):])
		if n := len(d); n > 0 && strings.IndexByte(".,;:", d[n-1]) != -1 {
			d = d[:n-1]
		}
		return strings.TrimSpace(d)
	}
	if i := strings.Index(name, ":"); i != -1 {
		return strings.TrimSpace(name[i+1:])
	}

	return name
}

// ContrastColor picks black or white text for a badge with the given
// background. Anything but "#rrggbb" gets white.
func ContrastColor(hex string) string {
	r, g, b, ok := parseHex6(hex)
	if !ok {
		return "#FFFFFF"
	}

	luminance := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 255
	if luminance > 0.6 {
		return "#000000"
	}
	return "#FFFFFF"
}

// RGBA converts "#rrggbb" or "#rgb" into an opaque color.
// Malformed input yields opaque black.
func RGBA(hex string) color.RGBA {
	h := strings.TrimPrefix(hex, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}

	r, g, b, ok := parseHex6("#" + h)
	if !ok {
		return color.RGBA{A: 0xff}
	}

	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

func parseHex6(hex string) (r, g, b uint8, ok bool) {
	if len(hex) != 7 || hex[0] != '#' {
		return 0, 0, 0, false
	}

	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}

	return uint8(v >> 16), uint8(v >> 8), uint8(v), true
}
