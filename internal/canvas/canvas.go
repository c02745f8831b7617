// Package canvas is the in-memory raster every frame is drawn on, plus the
// text layout and progressive reveal primitives the segment renderer uses.
package canvas

import (
	"image"
	"image/color"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
)

// Frame is one rendered RGBA raster with its timestamp inside its segment.
type Frame struct {
	Width     int
	Height    int
	Timestamp time.Duration
	Pix       []byte
}

// Canvas wraps a drawing context of fixed size. It is reused across frames
// and is not safe for concurrent use.
type Canvas struct {
	dc     *gg.Context
	img    *image.RGBA
	width  int
	height int
}

func New(width, height int) *Canvas {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	return &Canvas{
		dc:     gg.NewContextForRGBA(img),
		img:    img,
		width:  width,
		height: height,
	}
}

func (c *Canvas) Width() int  { return c.width }
func (c *Canvas) Height() int { return c.height }

// Context exposes the underlying drawing context for one-off shapes.
func (c *Canvas) Context() *gg.Context { return c.dc }

// Clear resets every pixel and all drawing state.
func (c *Canvas) Clear(bg color.Color) {
	c.dc.Identity()
	c.dc.ResetClip()
	c.dc.ClearPath()
	c.dc.SetLineWidth(1)
	c.dc.SetColor(bg)
	c.dc.Clear()
}

// Snapshot copies the current raster into a new Frame.
func (c *Canvas) Snapshot(ts time.Duration) *Frame {
	pix := make([]byte, len(c.img.Pix))
	copy(pix, c.img.Pix)
	return &Frame{Width: c.width, Height: c.height, Timestamp: ts, Pix: pix}
}

// Text draws s with its baseline-left corner at (x, y).
func (c *Canvas) Text(s string, x, y float64, face font.Face, col color.Color) {
	c.dc.SetFontFace(face)
	c.dc.SetColor(col)
	c.dc.DrawString(s, x, y)
}

// TextCentered draws s horizontally centered on cx, vertically centered on y.
func (c *Canvas) TextCentered(s string, cx, y float64, face font.Face, col color.Color) {
	c.dc.SetFontFace(face)
	c.dc.SetColor(col)
	c.dc.DrawStringAnchored(s, cx, y, 0.5, 0.5)
}

// Measure returns the advance width of s in face.
func (c *Canvas) Measure(s string, face font.Face) float64 {
	c.dc.SetFontFace(face)
	w, _ := c.dc.MeasureString(s)
	return w
}

// LineHeight is the face's line height with the given spacing factor.
func (c *Canvas) LineHeight(face font.Face, spacing float64) float64 {
	c.dc.SetFontFace(face)
	return c.dc.FontHeight() * spacing
}

// Wrap breaks s into lines no wider than width, splitting only at word
// boundaries. Words wider than width get a line of their own.
func (c *Canvas) Wrap(s string, width float64, face font.Face) []string {
	c.dc.SetFontFace(face)
	var out []string
	for _, line := range c.dc.WordWrap(strings.TrimSpace(s), width) {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Lines draws lines top-down starting at baseline y.
func (c *Canvas) Lines(lines []string, x, y, lineHeight float64, face font.Face, col color.Color) {
	c.dc.SetFontFace(face)
	c.dc.SetColor(col)
	for i, line := range lines {
		c.dc.DrawString(line, x, y+float64(i)*lineHeight)
	}
}

// Box draws a filled rounded rectangle with an optional border.
func (c *Canvas) Box(x, y, w, h, radius float64, fill, border color.Color, borderWidth float64) {
	c.dc.DrawRoundedRectangle(x, y, w, h, radius)
	c.dc.SetColor(fill)
	if border != nil && borderWidth > 0 {
		c.dc.FillPreserve()
		c.dc.SetColor(border)
		c.dc.SetLineWidth(borderWidth)
		c.dc.Stroke()
		return
	}
	c.dc.Fill()
}

// Rect draws a filled axis-aligned rectangle.
func (c *Canvas) Rect(x, y, w, h float64, fill color.Color) {
	c.dc.DrawRectangle(x, y, w, h)
	c.dc.SetColor(fill)
	c.dc.Fill()
}

// Circle draws a filled circle.
func (c *Canvas) Circle(x, y, r float64, fill color.Color) {
	c.dc.DrawCircle(x, y, r)
	c.dc.SetColor(fill)
	c.dc.Fill()
}

// Line draws a stroked segment.
func (c *Canvas) Line(x1, y1, x2, y2, width float64, col color.Color) {
	c.dc.SetLineWidth(width)
	c.dc.SetColor(col)
	c.dc.DrawLine(x1, y1, x2, y2)
	c.dc.Stroke()
}

// ProgressBar draws a track with the filled fraction clamped to [0, 1].
func (c *Canvas) ProgressBar(x, y, w, h, fraction float64, track, fill color.Color) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	c.Box(x, y, w, h, h/2, track, nil, 0)
	if fraction > 0 {
		fw := w * fraction
		if fw < h {
			fw = h
		}
		c.Box(x, y, fw, h, h/2, fill, nil, 0)
	}
}
