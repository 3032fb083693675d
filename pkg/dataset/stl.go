package dataset

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ReadSTL decodes a binary or ASCII STL file. Vertices are mirrored in x and
// y to move them into the image coordinate frame.
func ReadSTL(path string) (*Mesh, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mesh, err := DecodeSTL(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	mesh.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return mesh, nil
}

func DecodeSTL(raw []byte) (*Mesh, error) {
	var (
		tris []Triangle
		err  error
	)
	if isBinarySTL(raw) {
		tris, err = decodeBinarySTL(raw)
	} else {
		tris, err = decodeASCIISTL(bytes.NewReader(raw))
	}
	if err != nil {
		return nil, err
	}
	for i := range tris {
		for j := range tris[i] {
			tris[i][j].X = -tris[i][j].X
			tris[i][j].Y = -tris[i][j].Y
		}
	}
	return &Mesh{Triangles: tris}, nil
}

func isBinarySTL(raw []byte) bool {
	if len(raw) < 84 {
		return false
	}
	count := binary.LittleEndian.Uint32(raw[80:84])
	return uint64(len(raw)) == 84+50*uint64(count)
}

func decodeBinarySTL(raw []byte) ([]Triangle, error) {
	count := int(binary.LittleEndian.Uint32(raw[80:84]))
	tris := make([]Triangle, count)
	vec := func(b []byte) r3.Vec {
		return r3.Vec{
			X: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[0:]))),
			Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))),
			Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[8:]))),
		}
	}
	for i := 0; i < count; i++ {
		rec := raw[84+50*i:]
		tris[i] = Triangle{vec(rec[12:]), vec(rec[24:]), vec(rec[36:])}
	}
	return tris, nil
}

func decodeASCIISTL(r io.Reader) ([]Triangle, error) {
	sc := bufio.NewScanner(r)
	var (
		tris  []Triangle
		cur   Triangle
		n     int
		solid bool
	)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "solid":
			solid = true
		case "vertex":
			if len(fields) != 4 || n > 2 {
				return nil, fmt.Errorf("%w: malformed vertex line %q", ErrInvalidDataset, sc.Text())
			}
			var p [3]float64
			for a := 0; a < 3; a++ {
				v, err := strconv.ParseFloat(fields[a+1], 64)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
				}
				p[a] = v
			}
			cur[n] = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
			n++
		case "endfacet":
			if n != 3 {
				return nil, fmt.Errorf("%w: facet with %d vertices", ErrInvalidDataset, n)
			}
			tris = append(tris, cur)
			n = 0
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !solid {
		return nil, fmt.Errorf("%w: not an STL file", ErrInvalidDataset)
	}
	return tris, nil
}
