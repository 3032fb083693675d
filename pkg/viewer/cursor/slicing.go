package cursor

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const indexEpsilon = 1e-9

// SliceRange intersects the infinite line through pos along normal with
// bounds. start lies on the -normal side.
func SliceRange(pos, normal r3.Vec, bounds r3.Box) (start, end r3.Vec, ok bool) {
	n := r3.Unit(normal)
	tmin, tmax := math.Inf(-1), math.Inf(1)

	p := [3]float64{pos.X, pos.Y, pos.Z}
	d := [3]float64{n.X, n.Y, n.Z}
	lo := [3]float64{bounds.Min.X, bounds.Min.Y, bounds.Min.Z}
	hi := [3]float64{bounds.Max.X, bounds.Max.Y, bounds.Max.Z}

	for a := 0; a < 3; a++ {
		if math.Abs(d[a]) < 1e-12 {
			if p[a] < lo[a] || p[a] > hi[a] {
				return r3.Vec{}, r3.Vec{}, false
			}
			continue
		}
		t1 := (lo[a] - p[a]) / d[a]
		t2 := (hi[a] - p[a]) / d[a]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
	}
	if tmin > tmax || math.IsInf(tmin, 0) || math.IsInf(tmax, 0) {
		return r3.Vec{}, r3.Vec{}, false
	}
	return r3.Add(pos, r3.Scale(tmin, n)), r3.Add(pos, r3.Scale(tmax, n)), true
}

// voxelDistance is the length of b-a measured in voxels.
func voxelDistance(a, b, spacing r3.Vec) int {
	v := r3.Sub(b, a)
	v = r3.Vec{X: v.X / spacing.X, Y: v.Y / spacing.Y, Z: v.Z / spacing.Z}
	return int(math.Ceil(r3.Norm(v) - indexEpsilon))
}

// SliceCount is the number of slices the plane of p can take through bounds.
func (m *Model) SliceCount(p Plane, spacing r3.Vec) int {
	if !m.hasBounds {
		return 0
	}
	start, end, ok := SliceRange(m.center, m.normals[p], m.bounds)
	if !ok {
		return 0
	}
	return voxelDistance(start, end, spacing)
}

// SliceIndex is the index of the slice of p passing through pos.
func (m *Model) SliceIndex(p Plane, pos r3.Vec, spacing r3.Vec) (int, bool) {
	if !m.hasBounds {
		return 0, false
	}
	start, _, ok := SliceRange(pos, m.normals[p], m.bounds)
	if !ok {
		return 0, false
	}
	return voxelDistance(start, pos, spacing), true
}

// PositionFromIndex maps a slice index back onto the line through the cursor
// center along the normal of p.
func (m *Model) PositionFromIndex(p Plane, index int, spacing r3.Vec) (r3.Vec, bool) {
	if !m.hasBounds {
		return r3.Vec{}, false
	}
	start, end, ok := SliceRange(m.center, m.normals[p], m.bounds)
	if !ok {
		return r3.Vec{}, false
	}
	count := voxelDistance(start, end, spacing)
	if count == 0 {
		return r3.Vec{}, false
	}
	step := r3.Scale(1/float64(count), r3.Sub(end, start))
	return r3.Add(start, r3.Scale(float64(index), step)), true
}
