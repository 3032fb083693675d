package render

import (
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
)

// JPEGQuality matches what the view image endpoint serves.
const JPEGQuality = 90

// Canvas composes the layers of one view image.
type Canvas struct {
	dc *gg.Context
}

func NewCanvas(w, h int) *Canvas {
	dc := gg.NewContext(w, h)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	return &Canvas{dc: dc}
}

func (c *Canvas) Width() int  { return c.dc.Width() }
func (c *Canvas) Height() int { return c.dc.Height() }

// DrawLayer scales img to the canvas and composites it over the current content.
func (c *Canvas) DrawLayer(img image.Image) {
	dst := image.NewNRGBA(image.Rect(0, 0, c.Width(), c.Height()))
	if img.Bounds().Dx() == c.Width() && img.Bounds().Dy() == c.Height() {
		draw.Copy(dst, image.Point{}, img, img.Bounds(), draw.Src, nil)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	c.dc.DrawImage(dst, 0, 0)
}

// Line strokes an infinite line through (x, y) along (dx, dy), clipped to the canvas.
func (c *Canvas) Line(x, y, dx, dy float64, col color.RGBA, opacity float64) {
	if opacity <= 0 {
		return
	}
	n := math.Hypot(dx, dy)
	if n == 0 {
		return
	}
	span := float64(c.Width() + c.Height())
	dx, dy = dx/n*span, dy/n*span
	c.Segment(x-dx, y-dy, x+dx, y+dy, col, opacity)
}

func (c *Canvas) Segment(x0, y0, x1, y1 float64, col color.RGBA, opacity float64) {
	if opacity <= 0 {
		return
	}
	c.dc.SetRGBA(float64(col.R)/255, float64(col.G)/255, float64(col.B)/255, opacity)
	c.dc.SetLineWidth(1.5)
	c.dc.DrawLine(x0, y0, x1, y1)
	c.dc.Stroke()
}

// Label writes a short caption in the top left corner.
func (c *Canvas) Label(text string) {
	c.dc.SetRGB(1, 1, 0)
	c.dc.DrawString(text, 6, 14)
}

func (c *Canvas) Image() image.Image {
	return c.dc.Image()
}

func EncodeJPEG(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
}
