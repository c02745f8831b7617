package canvas

import (
	"fmt"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Parsed fonts are immutable and shared; faces carry glyph caches and are not.
var loadFonts = sync.OnceValues(func() (*fontPair, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bold font: %w", err)
	}
	return &fontPair{regular: regular, bold: bold}, nil
})

type fontPair struct {
	regular *truetype.Font
	bold    *truetype.Font
}

// FontSet is the set of faces one renderer draws with. Sizes are given for a
// 720px tall canvas and scaled to the actual height.
type FontSet struct {
	Title   font.Face
	Heading font.Face
	Body    font.Face
	Mono    font.Face
	Small   font.Face
}

// NewFontSet builds fresh faces. Callers must not share a FontSet between
// goroutines.
func NewFontSet(canvasHeight int) (*FontSet, error) {
	fonts, err := loadFonts()
	if err != nil {
		return nil, err
	}
	scale := float64(canvasHeight) / 720.0
	face := func(f *truetype.Font, size float64) font.Face {
		return truetype.NewFace(f, &truetype.Options{
			Size:    size * scale,
			DPI:     72,
			Hinting: font.HintingNone,
		})
	}
	return &FontSet{
		Title:   face(fonts.bold, 48),
		Heading: face(fonts.bold, 34),
		Body:    face(fonts.regular, 28),
		Mono:    face(fonts.bold, 30),
		Small:   face(fonts.regular, 20),
	}, nil
}
