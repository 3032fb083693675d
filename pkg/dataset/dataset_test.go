package dataset

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func testVolume() *Volume {
	v := &Volume{
		Dims:    [3]int{4, 3, 2},
		Spacing: r3.Vec{X: 1, Y: 2, Z: 3},
		Data:    make([]float64, 24),
	}
	for i := range v.Data {
		v.Data[i] = float64(i)
	}
	return v
}

func TestClassifyPath(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"brain.nii", KindVolume},
		{"/tmp/x/BRAIN.NII.GZ", KindVolume},
		{"liver.stl", KindMesh},
		{"scan.dcm", KindUnknown},
		{"noext", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPath(tt.path))
		})
	}
}

func TestVolumeGeometry(t *testing.T) {
	v := testVolume()
	require.NoError(t, v.Validate())

	b := v.Bounds()
	assert.Equal(t, r3.Vec{}, b.Min)
	assert.Equal(t, r3.Vec{X: 3, Y: 4, Z: 3}, b.Max)

	val, ok := v.Sample(r3.Vec{X: 1.2, Y: 2.1, Z: 2.9})
	require.True(t, ok)
	assert.Equal(t, v.At(1, 1, 1), val)

	_, ok = v.Sample(r3.Vec{X: -5})
	assert.False(t, ok)

	min, max := v.ScalarRange()
	assert.Equal(t, 0.0, min)
	assert.Equal(t, 23.0, max)
	assert.InDelta(t, 11.5, v.Stats().Mean, 1e-9)
}

func TestVolumeValidate(t *testing.T) {
	v := testVolume()
	v.Data = v.Data[:10]
	assert.ErrorIs(t, v.Validate(), ErrInvalidDataset)
}

func TestNiftiRoundTrip(t *testing.T) {
	src := testVolume()
	var buf bytes.Buffer
	require.NoError(t, EncodeNifti(&buf, src))

	t.Run("plain", func(t *testing.T) {
		got, err := DecodeNifti(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, src.Dims, got.Dims)
		assert.Equal(t, src.Spacing, got.Spacing)
		assert.Equal(t, src.Data, got.Data)
	})

	t.Run("gzip", func(t *testing.T) {
		var gz bytes.Buffer
		w := gzip.NewWriter(&gz)
		_, err := w.Write(buf.Bytes())
		require.NoError(t, err)
		require.NoError(t, w.Close())

		got, err := DecodeNifti(&gz)
		require.NoError(t, err)
		assert.Equal(t, src.Data, got.Data)
	})

	t.Run("scaled int16", func(t *testing.T) {
		raw := append([]byte(nil), buf.Bytes()[:niftiHeaderSize+4]...)
		binary.LittleEndian.PutUint16(raw[70:], niftiInt16)
		binary.LittleEndian.PutUint32(raw[112:], math.Float32bits(2))
		binary.LittleEndian.PutUint32(raw[116:], math.Float32bits(-1))
		for i := 0; i < 24; i++ {
			raw = binary.LittleEndian.AppendUint16(raw, uint16(i))
		}
		got, err := DecodeNifti(bytes.NewReader(raw))
		require.NoError(t, err)
		assert.Equal(t, -1.0, got.Data[0])
		assert.Equal(t, 45.0, got.Data[23])
	})

	t.Run("unsupported datatype", func(t *testing.T) {
		raw := append([]byte(nil), buf.Bytes()...)
		binary.LittleEndian.PutUint16(raw[70:], 128)
		_, err := DecodeNifti(bytes.NewReader(raw))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := DecodeNifti(bytes.NewReader(buf.Bytes()[:100]))
		assert.ErrorIs(t, err, ErrInvalidDataset)
	})
}

const asciiSTL = `solid cube
facet normal 0 0 1
  outer loop
    vertex 1 2 3
    vertex 4 5 6
    vertex 7 8 9
  endloop
endfacet
endsolid cube
`

func binarySTL(tris ...[9]float32) []byte {
	raw := make([]byte, 80)
	raw = binary.LittleEndian.AppendUint32(raw, uint32(len(tris)))
	for _, tri := range tris {
		raw = append(raw, make([]byte, 12)...)
		for _, f := range tri {
			raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(f))
		}
		raw = append(raw, 0, 0)
	}
	return raw
}

func TestDecodeSTLFlipsXY(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"ascii", []byte(asciiSTL)},
		{"binary", binarySTL([9]float32{1, 2, 3, 4, 5, 6, 7, 8, 9})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mesh, err := DecodeSTL(tt.raw)
			require.NoError(t, err)
			require.Len(t, mesh.Triangles, 1)
			assert.Equal(t, r3.Vec{X: -1, Y: -2, Z: 3}, mesh.Triangles[0][0])
			assert.Equal(t, r3.Vec{X: -7, Y: -8, Z: 9}, mesh.Triangles[0][2])

			b := mesh.Bounds()
			assert.Equal(t, r3.Vec{X: -7, Y: -8, Z: 3}, b.Min)
			assert.Equal(t, r3.Vec{X: -1, Y: -2, Z: 9}, b.Max)
		})
	}
}

func TestDecodeSTLRejectsGarbage(t *testing.T) {
	_, err := DecodeSTL([]byte("hello world"))
	assert.ErrorIs(t, err, ErrInvalidDataset)
}

func TestFileDecoder(t *testing.T) {
	dir := t.TempDir()
	volPath := filepath.Join(dir, "head.nii")
	f, err := os.Create(volPath)
	require.NoError(t, err)
	require.NoError(t, EncodeNifti(f, testVolume()))
	require.NoError(t, f.Close())

	meshPath := filepath.Join(dir, "organ.stl")
	require.NoError(t, os.WriteFile(meshPath, []byte(asciiSTL), 0o644))

	d := NewFileDecoder()
	ctx := context.Background()

	loaded, err := d.Decode(ctx, volPath, KindVolume)
	require.NoError(t, err)
	assert.Equal(t, KindVolume, loaded.Kind)
	assert.Equal(t, "head", loaded.Volume.Name)

	loaded, err = d.Decode(ctx, meshPath, KindMesh)
	require.NoError(t, err)
	assert.Equal(t, "organ", loaded.Mesh.Name)

	_, err = d.Decode(ctx, meshPath, KindUnknown)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
