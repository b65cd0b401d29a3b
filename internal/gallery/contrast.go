package gallery

import (
	"strconv"
	"strings"
)

// ContrastColor picks black or white text for a swatch background.
// Invalid input falls back to black.
func ContrastColor(hex string) string {
	h := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return "#000000"
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return "#000000"
	}
	r, g, b := (v>>16)&0xff, (v>>8)&0xff, v&0xff
	// brightness = (299R + 587G + 114B) / 1000, compared without truncation
	if r*299+g*587+b*114 > 128*1000 {
		return "#000000"
	}
	return "#FFFFFF"
}
