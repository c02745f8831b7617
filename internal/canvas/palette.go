package canvas

import (
	"fmt"
	"image/color"
)

type Palette struct {
	Background color.RGBA
	Primary    color.RGBA
	Secondary  color.RGBA
	Accent     color.RGBA
	Success    color.RGBA
	Warning    color.RGBA
	Muted      color.RGBA
	Highlight  color.RGBA
	StepBG     color.RGBA
	EquationBG color.RGBA
	White      color.RGBA
}

// DefaultPalette is the light classroom scheme used by every tier.
var DefaultPalette = Palette{
	Background: MustHex("#f8f9fa"),
	Primary:    MustHex("#2c3e50"),
	Secondary:  MustHex("#3498db"),
	Accent:     MustHex("#e74c3c"),
	Success:    MustHex("#27ae60"),
	Warning:    MustHex("#f39c12"),
	Muted:      MustHex("#7f8c8d"),
	Highlight:  MustHex("#f1c40f"),
	StepBG:     MustHex("#ecf0f1"),
	EquationBG: MustHex("#e8f4f8"),
	White:      MustHex("#ffffff"),
}

// ParseHex parses #rgb, #rrggbb or #rrggbbaa.
func ParseHex(s string) (color.RGBA, error) {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	c := color.RGBA{A: 0xff}
	var err error
	switch len(s) {
	case 3:
		_, err = fmt.Sscanf(s, "%1x%1x%1x", &c.R, &c.G, &c.B)
		c.R *= 17
		c.G *= 17
		c.B *= 17
	case 6:
		_, err = fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B)
	case 8:
		_, err = fmt.Sscanf(s, "%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A)
	default:
		err = fmt.Errorf("invalid hex color length %d", len(s))
	}
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return c, nil
}

func MustHex(s string) color.RGBA {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// WithAlpha returns c at opacity a in [0, 1], premultiplied.
func WithAlpha(c color.RGBA, a float64) color.RGBA {
	if a <= 0 {
		return color.RGBA{}
	}
	if a >= 1 {
		return c
	}
	return color.RGBA{
		R: uint8(float64(c.R) * a),
		G: uint8(float64(c.G) * a),
		B: uint8(float64(c.B) * a),
		A: uint8(float64(c.A) * a),
	}
}
