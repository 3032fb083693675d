package cursor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func vecNear(t *testing.T, want, got r3.Vec) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-9)
	assert.InDelta(t, want.Y, got.Y, 1e-9)
	assert.InDelta(t, want.Z, got.Z, 1e-9)
}

func TestAxisAlignedRejectsNormalChanges(t *testing.T) {
	m := New()

	assert.ErrorIs(t, m.SetNormal(Axial, r3.Vec{X: 1, Y: 1, Z: 0}), ErrAxisAligned)
	assert.ErrorIs(t, m.Rotate(Axial, 0.3), ErrAxisAligned)
	assert.Equal(t, DefaultNormal(Axial), m.Normal(Axial))
}

func TestRotateKeepsOrthogonality(t *testing.T) {
	m := New()
	m.SetOblique(true)

	require.NoError(t, m.Rotate(Axial, math.Pi/6))
	assert.True(t, m.Orthogonal())
	vecNear(t, DefaultNormal(Axial), m.Normal(Axial))
	assert.NotEqual(t, DefaultNormal(Sagittal), m.Normal(Sagittal))

	m.SetOblique(false)
	assert.Equal(t, DefaultNormal(Sagittal), m.Normal(Sagittal))
	assert.Equal(t, DefaultNormal(Coronal), m.Normal(Coronal))
}

func TestSetNormalMayBreakOrthogonality(t *testing.T) {
	m := New()
	m.SetOblique(true)

	require.NoError(t, m.SetNormal(Sagittal, r3.Vec{X: 1, Y: 1, Z: 0}))
	assert.False(t, m.Orthogonal())
	assert.InDelta(t, 1.0, r3.Norm(m.Normal(Sagittal)), 1e-12)
	assert.ErrorIs(t, m.SetNormal(Sagittal, r3.Vec{}), ErrZeroNormal)
	assert.ErrorIs(t, m.SetNormal(Plane(5), r3.Vec{X: 1}), ErrInvalidPlane)
}

func TestThickness(t *testing.T) {
	m := New()
	assert.ErrorIs(t, m.SetThickness(-1), ErrThickness)
	require.NoError(t, m.SetThickness(2.5))
	assert.Equal(t, 2.5, m.Thickness())
}

func TestResetCentersOnBounds(t *testing.T) {
	m := New()
	m.SetOblique(true)
	require.NoError(t, m.Rotate(Coronal, 1))

	m.Reset(r3.NewBox(0, 0, 0, 10, 20, 30))

	assert.Equal(t, r3.Vec{X: 5, Y: 10, Z: 15}, m.Center())
	assert.True(t, m.Orthogonal())
	assert.Equal(t, DefaultNormal(Sagittal), m.Normal(Sagittal))
}

func TestParsePlane(t *testing.T) {
	tests := []struct {
		name   string
		want   Plane
		wantOk bool
	}{
		{"sagittal", Sagittal, true},
		{"coronal", Coronal, true},
		{"axial", Axial, true},
		{"3d", -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePlane(tt.name)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlicing(t *testing.T) {
	m := New()
	m.Reset(r3.NewBox(0, 0, 0, 100, 50, 20))
	spacing := r3.Vec{X: 1, Y: 0.5, Z: 2}

	tests := []struct {
		name  string
		plane Plane
		count int
	}{
		{"sagittal spans x", Sagittal, 100},
		{"coronal spans y", Coronal, 100},
		{"axial spans z", Axial, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.count, m.SliceCount(tt.plane, spacing))
		})
	}

	t.Run("index round trip", func(t *testing.T) {
		pos, ok := m.PositionFromIndex(Coronal, 30, spacing)
		require.True(t, ok)
		vecNear(t, r3.Vec{X: 50, Y: 15, Z: 10}, pos)

		idx, ok := m.SliceIndex(Coronal, pos, spacing)
		require.True(t, ok)
		assert.Equal(t, 30, idx)
	})

	t.Run("sagittal starts on the far side", func(t *testing.T) {
		start, end, ok := SliceRange(m.Center(), m.Normal(Sagittal), r3.NewBox(0, 0, 0, 100, 50, 20))
		require.True(t, ok)
		vecNear(t, r3.Vec{X: 100, Y: 25, Z: 10}, start)
		vecNear(t, r3.Vec{X: 0, Y: 25, Z: 10}, end)
	})

	t.Run("no bounds", func(t *testing.T) {
		empty := New()
		assert.Equal(t, 0, empty.SliceCount(Axial, spacing))
		_, ok := empty.PositionFromIndex(Axial, 1, spacing)
		assert.False(t, ok)
	})
}
