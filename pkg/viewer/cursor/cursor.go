// Package cursor holds the reslice cursor geometry shared by the slice views
// of one session.
package cursor

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Plane indexes the three reslice planes, one per slice view.
type Plane int

const (
	Sagittal Plane = iota
	Coronal
	Axial
)

var planeNames = [3]string{"sagittal", "coronal", "axial"}

func (p Plane) String() string {
	if p < Sagittal || p > Axial {
		return "none"
	}
	return planeNames[p]
}

func (p Plane) Valid() bool {
	return p >= Sagittal && p <= Axial
}

// ParsePlane maps a view axis name to its plane.
func ParsePlane(name string) (Plane, bool) {
	for i, n := range planeNames {
		if n == name {
			return Plane(i), true
		}
	}
	return -1, false
}

var (
	ErrAxisAligned  = errors.New("cursor is axis aligned")
	ErrZeroNormal   = errors.New("normal must not be zero")
	ErrThickness    = errors.New("thickness must not be negative")
	ErrInvalidPlane = errors.New("invalid plane")
)

var (
	defaultNormals = [3]r3.Vec{
		{X: -1, Y: 0, Z: 0},
		{X: 0, Y: 1, Z: 0},
		{X: 0, Y: 0, Z: -1},
	}
	defaultViewUps = [3]r3.Vec{
		{X: 0, Y: 0, Z: -1},
		{X: 0, Y: 0, Z: -1},
		{X: 0, Y: -1, Z: 0},
	}
)

// DefaultNormal is the axis-aligned normal of p.
func DefaultNormal(p Plane) r3.Vec {
	return defaultNormals[p]
}

// Model is the single reslice cursor of a session. Slice views hold a
// pointer to it; it is never copied.
type Model struct {
	center    r3.Vec
	normals   [3]r3.Vec
	viewUps   [3]r3.Vec
	thickness float64
	oblique   bool
	bounds    r3.Box
	hasBounds bool
}

func New() *Model {
	return &Model{
		normals: defaultNormals,
		viewUps: defaultViewUps,
	}
}

func (m *Model) Center() r3.Vec {
	return m.center
}

func (m *Model) SetCenter(c r3.Vec) {
	m.center = c
}

func (m *Model) Normal(p Plane) r3.Vec {
	return m.normals[p]
}

func (m *Model) Normals() [3]r3.Vec {
	return m.normals
}

func (m *Model) ViewUp(p Plane) r3.Vec {
	return m.viewUps[p]
}

// SetNormal replaces one plane normal. Only allowed in oblique mode, and it
// may leave the planes non-orthogonal.
func (m *Model) SetNormal(p Plane, n r3.Vec) error {
	if !p.Valid() {
		return ErrInvalidPlane
	}
	if !m.oblique {
		return ErrAxisAligned
	}
	if r3.Norm(n) == 0 {
		return ErrZeroNormal
	}
	m.normals[p] = r3.Unit(n)
	return nil
}

// Rotate turns the two other planes by angle radians around the normal of p.
func (m *Model) Rotate(p Plane, angle float64) error {
	if !p.Valid() {
		return ErrInvalidPlane
	}
	if !m.oblique {
		return ErrAxisAligned
	}
	axis := m.normals[p]
	for i := range m.normals {
		if Plane(i) == p {
			continue
		}
		m.normals[i] = r3.Unit(r3.Rotate(m.normals[i], angle, axis))
	}
	for i := range m.viewUps {
		if Plane(i) == p {
			continue
		}
		m.viewUps[i] = r3.Unit(r3.Rotate(m.viewUps[i], angle, axis))
	}
	return nil
}

// Orthogonal reports whether the three normals are pairwise orthogonal.
func (m *Model) Orthogonal() bool {
	const eps = 1e-9
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if math.Abs(r3.Dot(m.normals[i], m.normals[j])) > eps {
				return false
			}
		}
	}
	return true
}

func (m *Model) Thickness() float64 {
	return m.thickness
}

func (m *Model) SetThickness(t float64) error {
	if t < 0 {
		return ErrThickness
	}
	m.thickness = t
	return nil
}

func (m *Model) Oblique() bool {
	return m.oblique
}

// SetOblique switches mode. Leaving oblique mode pins the normals back to the
// view axes.
func (m *Model) SetOblique(enabled bool) {
	m.oblique = enabled
	if !enabled {
		m.normals = defaultNormals
		m.viewUps = defaultViewUps
	}
}

func (m *Model) Bounds() (r3.Box, bool) {
	return m.bounds, m.hasBounds
}

// Reset recenters on bounds and restores the default planes.
func (m *Model) Reset(bounds r3.Box) {
	m.bounds = bounds
	m.hasBounds = true
	m.center = bounds.Center()
	m.normals = defaultNormals
	m.viewUps = defaultViewUps
}

// ClearBounds forgets the data extent, used once no volume is displayed.
func (m *Model) ClearBounds() {
	m.bounds = r3.Box{}
	m.hasBounds = false
}
