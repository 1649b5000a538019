package model

import (
	"fmt"
	"math"
)

// MaxPlayers is the size of the default palette and so the default seat limit
const MaxPlayers = 300

const goldenRatio = 0.618033988749895

// PlayerColor returns the color for the given 0-indexed seat.
// Hues are spread by the golden ratio so consecutive seats stay far apart.
func PlayerColor(index int) string {
	hue := math.Mod(float64(index)*goldenRatio*360, 360)
	saturation := 70 + float64(index%3)*10
	lightness := 50 + float64(index%4)*8
	return hslToHex(hue, saturation, lightness)
}

// DefaultPalette returns MaxPlayers distinct colors
func DefaultPalette() []string {
	palette := make([]string, MaxPlayers)
	for i := range palette {
		palette[i] = PlayerColor(i)
	}
	return palette
}

func hslToHex(h, s, l float64) string {
	s /= 100
	l /= 100

	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return fmt.Sprintf("#%02X%02X%02X", toByte(r+m), toByte(g+m), toByte(b+m))
}

func toByte(v float64) int {
	return int(math.Round(v * 255))
}
