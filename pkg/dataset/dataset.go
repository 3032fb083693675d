// Package dataset defines the decoded objects a viewer session can display
// and the decoders producing them from local files.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrInvalidDataset    = errors.New("invalid dataset")
)

// Kind is the caller supplied classification used for dispatch.
type Kind int

const (
	KindUnknown Kind = iota
	KindVolume
	KindMesh
)

func (k Kind) String() string {
	switch k {
	case KindVolume:
		return "volume"
	case KindMesh:
		return "mesh"
	default:
		return "unknown"
	}
}

// ClassifyPath picks the kind from the file extension.
func ClassifyPath(path string) Kind {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".nii"), strings.HasSuffix(name, ".nii.gz"):
		return KindVolume
	case strings.HasSuffix(name, ".stl"):
		return KindMesh
	default:
		return KindUnknown
	}
}

// Volume is a scalar image on a regular grid, x varying fastest.
type Volume struct {
	Name    string
	Dims    [3]int
	Spacing r3.Vec
	Origin  r3.Vec
	Data    []float64
}

func (v *Volume) Validate() error {
	n := v.Dims[0] * v.Dims[1] * v.Dims[2]
	if n <= 0 || len(v.Data) != n {
		return fmt.Errorf("%w: %d voxels for dims %v", ErrInvalidDataset, len(v.Data), v.Dims)
	}
	if v.Spacing.X <= 0 || v.Spacing.Y <= 0 || v.Spacing.Z <= 0 {
		return fmt.Errorf("%w: spacing %v", ErrInvalidDataset, v.Spacing)
	}
	return nil
}

// Bounds spans the voxel centers.
func (v *Volume) Bounds() r3.Box {
	extent := r3.Vec{
		X: float64(v.Dims[0]-1) * v.Spacing.X,
		Y: float64(v.Dims[1]-1) * v.Spacing.Y,
		Z: float64(v.Dims[2]-1) * v.Spacing.Z,
	}
	return r3.Box{Min: v.Origin, Max: r3.Add(v.Origin, extent)}
}

func (v *Volume) At(i, j, k int) float64 {
	return v.Data[i+v.Dims[0]*(j+v.Dims[1]*k)]
}

// Sample returns the nearest voxel value at world position p.
func (v *Volume) Sample(p r3.Vec) (float64, bool) {
	rel := r3.Sub(p, v.Origin)
	i := int(math.Round(rel.X / v.Spacing.X))
	j := int(math.Round(rel.Y / v.Spacing.Y))
	k := int(math.Round(rel.Z / v.Spacing.Z))
	if i < 0 || j < 0 || k < 0 || i >= v.Dims[0] || j >= v.Dims[1] || k >= v.Dims[2] {
		return 0, false
	}
	return v.At(i, j, k), true
}

func (v *Volume) ScalarRange() (min, max float64) {
	if len(v.Data) == 0 {
		return 0, 0
	}
	return floats.Min(v.Data), floats.Max(v.Data)
}

// Stats summarises the intensities for activity records.
type Stats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

func (v *Volume) Stats() Stats {
	if len(v.Data) == 0 {
		return Stats{}
	}
	min, max := v.ScalarRange()
	mean, std := stat.MeanStdDev(v.Data, nil)
	return Stats{Min: min, Max: max, Mean: mean, StdDev: std}
}

type Triangle [3]r3.Vec

// Mesh is a triangle soup in world coordinates.
type Mesh struct {
	Name      string
	Triangles []Triangle
}

func (m *Mesh) Bounds() r3.Box {
	if len(m.Triangles) == 0 {
		return r3.Box{}
	}
	b := r3.Box{Min: m.Triangles[0][0], Max: m.Triangles[0][0]}
	for _, t := range m.Triangles {
		for _, p := range t {
			b = UnionBounds(b, r3.Box{Min: p, Max: p})
		}
	}
	return b
}

// UnionBounds encloses both boxes. Unlike r3.Box.Union it keeps flat boxes.
func UnionBounds(a, b r3.Box) r3.Box {
	return r3.Box{
		Min: r3.Vec{X: math.Min(a.Min.X, b.Min.X), Y: math.Min(a.Min.Y, b.Min.Y), Z: math.Min(a.Min.Z, b.Min.Z)},
		Max: r3.Vec{X: math.Max(a.Max.X, b.Max.X), Y: math.Max(a.Max.Y, b.Max.Y), Z: math.Max(a.Max.Z, b.Max.Z)},
	}
}

// Loaded is a decoded dataset with the kind chosen by the caller.
type Loaded struct {
	Kind   Kind
	Path   string
	Volume *Volume
	Mesh   *Mesh
}

func (l Loaded) Bounds() (r3.Box, bool) {
	switch {
	case l.Kind == KindVolume && l.Volume != nil:
		return l.Volume.Bounds(), true
	case l.Kind == KindMesh && l.Mesh != nil:
		return l.Mesh.Bounds(), true
	default:
		return r3.Box{}, false
	}
}

// Decoder turns a local file into a Loaded dataset.
type Decoder interface {
	Decode(ctx context.Context, path string, kind Kind) (Loaded, error)
}

// FileDecoder reads NIfTI volumes and STL meshes from disk.
type FileDecoder struct{}

func NewFileDecoder() *FileDecoder {
	return &FileDecoder{}
}

func (d *FileDecoder) Decode(ctx context.Context, path string, kind Kind) (Loaded, error) {
	if err := ctx.Err(); err != nil {
		return Loaded{}, err
	}
	switch kind {
	case KindVolume:
		vol, err := ReadNifti(path)
		if err != nil {
			return Loaded{}, err
		}
		return Loaded{Kind: kind, Path: path, Volume: vol}, nil
	case KindMesh:
		mesh, err := ReadSTL(path)
		if err != nil {
			return Loaded{}, err
		}
		return Loaded{Kind: kind, Path: path, Mesh: mesh}, nil
	default:
		return Loaded{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}
