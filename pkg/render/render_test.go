package render

import (
	"bytes"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"medviewer-be/pkg/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func cube(n int) *dataset.Volume {
	v := &dataset.Volume{
		Dims:    [3]int{n, n, n},
		Spacing: r3.Vec{X: 1, Y: 1, Z: 1},
		Data:    make([]float64, n*n*n),
	}
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				v.Data[i+n*(j+n*k)] = float64(k)
			}
		}
	}
	return v
}

func TestWindowLevel(t *testing.T) {
	wl := FromRange(0, 200)
	assert.Equal(t, WindowLevel{Window: 200, Level: 100}, wl)

	min, max := wl.Range()
	assert.Equal(t, 0.0, min)
	assert.Equal(t, 200.0, max)

	tests := []struct {
		name string
		v    float64
		want uint8
	}{
		{"below", -10, 0},
		{"center", 100, 128},
		{"top", 200, 255},
		{"above", 500, 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wl.Map(tt.v))
		})
	}

	assert.Greater(t, wl.Adjust(-1000, 0).Window, 0.0)
}

func TestResliceAxial(t *testing.T) {
	vol := cube(8)
	p := Plane{
		Center:      r3.Vec{X: 3.5, Y: 3.5, Z: 5},
		Normal:      r3.Vec{Z: -1},
		ViewUp:      r3.Vec{Y: -1},
		FieldOfView: 8,
	}
	g := Reslice(vol, p, 8, 8)

	for i, v := range g.Values {
		if g.Valid[i] {
			assert.Equal(t, 5.0, v)
		}
	}
	assert.True(t, g.Valid[3*8+3])
}

func TestProjectInvertsWorld(t *testing.T) {
	p := Plane{Center: r3.Vec{X: 1, Y: 2, Z: 3}, Normal: r3.Vec{X: -1}, ViewUp: r3.Vec{Z: -1}, FieldOfView: 50}
	w := p.World(10, 20, 64, 32)
	x, y := p.Project(w, 64, 32)
	assert.InDelta(t, 10.5, x, 1e-9)
	assert.InDelta(t, 20.5, y, 1e-9)
}

func TestCutMesh(t *testing.T) {
	mesh := &dataset.Mesh{Triangles: []dataset.Triangle{
		{{X: 0, Y: 0, Z: -1}, {X: 1, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 1}},
		{{X: 0, Y: 0, Z: 2}, {X: 1, Y: 0, Z: 3}, {X: 0, Y: 1, Z: 3}},
	}}
	segs := CutMesh(mesh, Plane{Normal: r3.Vec{Z: 1}})
	require.Len(t, segs, 1)
	assert.InDelta(t, 0.0, segs[0][0].Z, 1e-12)
	assert.InDelta(t, 0.0, segs[0][1].Z, 1e-12)
}

func TestMaxIntensity(t *testing.T) {
	vol := cube(6)
	cam := Camera{
		Position:   r3.Vec{X: 2.5, Y: 2.5, Z: 100},
		FocalPoint: r3.Vec{X: 2.5, Y: 2.5, Z: 2.5},
		ViewUp:     r3.Vec{Y: 1},
	}
	g := MaxIntensity(vol, cam, 6, 6, 6)
	require.True(t, g.Valid[2*6+2])
	assert.Equal(t, 5.0, g.Values[2*6+2])
}

func TestCanvasEncode(t *testing.T) {
	vol := cube(4)
	g := Reslice(vol, Plane{Center: r3.Vec{X: 1.5, Y: 1.5, Z: 2}, Normal: r3.Vec{Z: 1}, ViewUp: r3.Vec{Y: 1}, FieldOfView: 4}, 4, 4)

	c := NewCanvas(32, 32)
	c.DrawLayer(Colorize(g, FromRange(0, 3), color.RGBA{255, 255, 255, 255}, 1))
	c.Line(16, 16, 1, 0, color.RGBA{R: 255, A: 255}, 1)
	c.Label("axial")

	var buf bytes.Buffer
	require.NoError(t, EncodeJPEG(&buf, c.Image()))
	img, err := jpeg.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
}

func TestPresets(t *testing.T) {
	t.Run("missing file falls back", func(t *testing.T) {
		book, err := LoadPresets(filepath.Join(t.TempDir(), "none.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultPresets().Names(), book.Names())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "presets.yaml")
		require.NoError(t, os.WriteFile(path, []byte("presets:\n  - name: Lung\n    window: 0.5\n    level: 0.25\n    opacity: 0.7\n"), 0o644))

		book, err := LoadPresets(path)
		require.NoError(t, err)
		assert.Equal(t, "Lung", book.Default)

		p, ok := book.Find("Lung")
		require.True(t, ok)
		assert.Equal(t, WindowLevel{Window: 50, Level: 25}, p.Apply(0, 100))
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "presets.yaml")
		require.NoError(t, os.WriteFile(path, []byte("presets: []\n"), 0o644))
		_, err := LoadPresets(path)
		assert.Error(t, err)
	})
}
