package render

import (
	"math"

	"medviewer-be/pkg/dataset"

	"gonum.org/v1/gonum/spatial/r3"
)

// Camera is a 3D view camera.
type Camera struct {
	Position   r3.Vec `json:"position"`
	FocalPoint r3.Vec `json:"focal_point"`
	ViewUp     r3.Vec `json:"view_up"`
}

// Direction is the unit direction of projection.
func (c Camera) Direction() r3.Vec {
	d := r3.Sub(c.FocalPoint, c.Position)
	if r3.Norm(d) == 0 {
		return r3.Vec{Z: -1}
	}
	return r3.Unit(d)
}

// MaxIntensity renders a maximum intensity projection of vol seen from cam.
// The image plane passes through the focal point and covers fov world units.
func MaxIntensity(vol *dataset.Volume, cam Camera, fov float64, w, h int) *Grid {
	dir := cam.Direction()
	plane := Plane{Center: cam.FocalPoint, Normal: r3.Scale(-1, dir), ViewUp: cam.ViewUp, FieldOfView: fov}
	bounds := vol.Bounds()
	step := math.Min(vol.Spacing.X, math.Min(vol.Spacing.Y, vol.Spacing.Z))
	g := newGrid(w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			origin := plane.World(float64(x), float64(y), w, h)
			start, end, ok := clipRay(origin, dir, bounds)
			if !ok {
				continue
			}
			length := r3.Norm(r3.Sub(end, start))
			best := math.Inf(-1)
			for t := 0.0; t <= length; t += step {
				if v, ok := vol.Sample(r3.Add(start, r3.Scale(t, dir))); ok && v > best {
					best = v
				}
			}
			if !math.IsInf(best, -1) {
				g.Values[y*w+x] = best
				g.Valid[y*w+x] = true
			}
		}
	}
	return g
}

// clipRay intersects the infinite line through o along d with b.
func clipRay(o, d r3.Vec, b r3.Box) (r3.Vec, r3.Vec, bool) {
	tmin, tmax := math.Inf(-1), math.Inf(1)
	p := [3]float64{o.X, o.Y, o.Z}
	v := [3]float64{d.X, d.Y, d.Z}
	lo := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	hi := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}
	for a := 0; a < 3; a++ {
		if math.Abs(v[a]) < 1e-12 {
			if p[a] < lo[a] || p[a] > hi[a] {
				return r3.Vec{}, r3.Vec{}, false
			}
			continue
		}
		t1, t2 := (lo[a]-p[a])/v[a], (hi[a]-p[a])/v[a]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin, tmax = math.Max(tmin, t1), math.Min(tmax, t2)
	}
	if tmin > tmax || math.IsInf(tmin, 0) {
		return r3.Vec{}, r3.Vec{}, false
	}
	return r3.Add(o, r3.Scale(tmin, d)), r3.Add(o, r3.Scale(tmax, d)), true
}
