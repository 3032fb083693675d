package render

import (
	"image"
	"image/color"
	"math"

	"medviewer-be/pkg/dataset"

	"gonum.org/v1/gonum/spatial/r3"
)

// Plane is an image plane in world space. Pixel (0,0) is the top left corner
// and the plane center maps to the middle of the image.
type Plane struct {
	Center r3.Vec
	Normal r3.Vec
	ViewUp r3.Vec
	// FieldOfView is the world length covered by the larger image side.
	FieldOfView float64
}

func (p Plane) axes() (right, up r3.Vec) {
	n := r3.Unit(p.Normal)
	up = r3.Sub(p.ViewUp, r3.Scale(r3.Dot(p.ViewUp, n), n))
	if r3.Norm(up) < 1e-12 {
		up = anyPerpendicular(n)
	}
	up = r3.Unit(up)
	right = r3.Unit(r3.Cross(up, n))
	return right, up
}

func anyPerpendicular(n r3.Vec) r3.Vec {
	if math.Abs(n.X) < 0.9 {
		return r3.Cross(n, r3.Vec{X: 1})
	}
	return r3.Cross(n, r3.Vec{Y: 1})
}

func (p Plane) pixelSize(w, h int) float64 {
	side := w
	if h > side {
		side = h
	}
	if side == 0 || p.FieldOfView <= 0 {
		return 1
	}
	return p.FieldOfView / float64(side)
}

// World returns the world position of the center of pixel (x, y).
func (p Plane) World(x, y float64, w, h int) r3.Vec {
	right, up := p.axes()
	px := p.pixelSize(w, h)
	dx := (x + 0.5 - float64(w)/2) * px
	dy := (float64(h)/2 - y - 0.5) * px
	return r3.Add(p.Center, r3.Add(r3.Scale(dx, right), r3.Scale(dy, up)))
}

// Project maps a world point onto pixel coordinates.
func (p Plane) Project(q r3.Vec, w, h int) (x, y float64) {
	right, up := p.axes()
	px := p.pixelSize(w, h)
	d := r3.Sub(q, p.Center)
	x = r3.Dot(d, right)/px + float64(w)/2
	y = float64(h)/2 - r3.Dot(d, up)/px
	return x, y
}

// Direction maps a world direction onto a pixel space direction.
func (p Plane) Direction(d r3.Vec) (dx, dy float64) {
	right, up := p.axes()
	return r3.Dot(d, right), -r3.Dot(d, up)
}

// Grid holds sampled intensities; Valid marks pixels inside the volume.
type Grid struct {
	W, H   int
	Values []float64
	Valid  []bool
}

func newGrid(w, h int) *Grid {
	return &Grid{W: w, H: h, Values: make([]float64, w*h), Valid: make([]bool, w*h)}
}

// Reslice samples vol on the plane with nearest neighbour interpolation.
func Reslice(vol *dataset.Volume, p Plane, w, h int) *Grid {
	g := newGrid(w, h)
	right, up := p.axes()
	px := p.pixelSize(w, h)
	for y := 0; y < h; y++ {
		dy := (float64(h)/2 - float64(y) - 0.5) * px
		row := r3.Add(p.Center, r3.Scale(dy, up))
		for x := 0; x < w; x++ {
			dx := (float64(x) + 0.5 - float64(w)/2) * px
			v, ok := vol.Sample(r3.Add(row, r3.Scale(dx, right)))
			g.Values[y*w+x] = v
			g.Valid[y*w+x] = ok
		}
	}
	return g
}

// Colorize maps the grid through wl with the given tint and opacity.
// Pixels outside the volume are transparent.
func Colorize(g *Grid, wl WindowLevel, tint color.RGBA, opacity float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, g.W, g.H))
	alpha := uint8(math.Round(255 * math.Max(0, math.Min(1, opacity))))
	for i, v := range g.Values {
		if !g.Valid[i] {
			continue
		}
		gray := uint16(wl.Map(v))
		img.Pix[4*i+0] = uint8(gray * uint16(tint.R) / 255)
		img.Pix[4*i+1] = uint8(gray * uint16(tint.G) / 255)
		img.Pix[4*i+2] = uint8(gray * uint16(tint.B) / 255)
		img.Pix[4*i+3] = alpha
	}
	return img
}

// Segment is a line piece in world space.
type Segment [2]r3.Vec

// CutMesh intersects every triangle of m with the plane.
func CutMesh(m *dataset.Mesh, p Plane) []Segment {
	n := r3.Unit(p.Normal)
	d := r3.Dot(n, p.Center)
	var out []Segment
	for _, tri := range m.Triangles {
		var pts []r3.Vec
		for i := 0; i < 3; i++ {
			a, b := tri[i], tri[(i+1)%3]
			da, db := r3.Dot(n, a)-d, r3.Dot(n, b)-d
			if (da > 0) == (db > 0) || da == db {
				continue
			}
			t := da / (da - db)
			pts = append(pts, r3.Add(a, r3.Scale(t, r3.Sub(b, a))))
		}
		if len(pts) >= 2 {
			out = append(out, Segment{pts[0], pts[1]})
		}
	}
	return out
}
