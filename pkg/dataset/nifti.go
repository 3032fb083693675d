package dataset

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

const niftiHeaderSize = 348

// NIfTI-1 datatype codes.
const (
	niftiUint8   = 2
	niftiInt16   = 4
	niftiInt32   = 8
	niftiFloat32 = 16
	niftiFloat64 = 64
	niftiInt8    = 256
	niftiUint16  = 512
	niftiUint32  = 768
)

// ReadNifti decodes a .nii or .nii.gz file.
func ReadNifti(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vol, err := DecodeNifti(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	vol.Name = strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), ".gz"), ".nii")
	return vol, nil
}

// DecodeNifti reads a single-file NIfTI-1 image. Gzip input is detected by
// its magic bytes. Origin is left at zero and orientation is ignored.
func DecodeNifti(r io.Reader) (*Volume, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		br = bufio.NewReader(gz)
	}

	raw, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	if len(raw) < niftiHeaderSize {
		return nil, fmt.Errorf("%w: short header", ErrInvalidDataset)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if int32(order.Uint32(raw[0:4])) != niftiHeaderSize {
		order = binary.BigEndian
		if int32(order.Uint32(raw[0:4])) != niftiHeaderSize {
			return nil, fmt.Errorf("%w: bad sizeof_hdr", ErrInvalidDataset)
		}
	}
	if magic := string(raw[344:347]); magic != "n+1" && magic != "ni1" {
		return nil, fmt.Errorf("%w: bad magic %q", ErrInvalidDataset, magic)
	}

	i16 := func(off int) int { return int(int16(order.Uint16(raw[off:]))) }
	f32 := func(off int) float64 { return float64(math.Float32frombits(order.Uint32(raw[off:]))) }

	ndim := i16(40)
	if ndim < 1 || ndim > 7 {
		return nil, fmt.Errorf("%w: dim[0]=%d", ErrInvalidDataset, ndim)
	}
	dims := [3]int{1, 1, 1}
	for a := 0; a < 3 && a < ndim; a++ {
		dims[a] = i16(42 + 2*a)
	}
	datatype := i16(70)
	spacing := r3.Vec{X: math.Abs(f32(80)), Y: math.Abs(f32(84)), Z: math.Abs(f32(88))}
	if spacing.X == 0 {
		spacing.X = 1
	}
	if spacing.Y == 0 {
		spacing.Y = 1
	}
	if spacing.Z == 0 {
		spacing.Z = 1
	}
	offset := int(f32(108))
	if offset < niftiHeaderSize {
		offset = niftiHeaderSize
	}
	slope, inter := f32(112), f32(116)
	if slope == 0 {
		slope, inter = 1, 0
	}

	n := dims[0] * dims[1] * dims[2]
	if n <= 0 {
		return nil, fmt.Errorf("%w: dims %v", ErrInvalidDataset, dims)
	}
	size, read := sampleReader(datatype, order)
	if read == nil {
		return nil, fmt.Errorf("%w: nifti datatype %d", ErrUnsupportedFormat, datatype)
	}
	body := raw[offset:]
	if len(body) < n*size {
		return nil, fmt.Errorf("%w: %d bytes of voxel data, want %d", ErrInvalidDataset, len(body), n*size)
	}

	data := make([]float64, n)
	for i := range data {
		data[i] = read(body[i*size:])*slope + inter
	}
	return &Volume{Dims: dims, Spacing: spacing, Data: data}, nil
}

func sampleReader(datatype int, order binary.ByteOrder) (int, func([]byte) float64) {
	switch datatype {
	case niftiUint8:
		return 1, func(b []byte) float64 { return float64(b[0]) }
	case niftiInt8:
		return 1, func(b []byte) float64 { return float64(int8(b[0])) }
	case niftiInt16:
		return 2, func(b []byte) float64 { return float64(int16(order.Uint16(b))) }
	case niftiUint16:
		return 2, func(b []byte) float64 { return float64(order.Uint16(b)) }
	case niftiInt32:
		return 4, func(b []byte) float64 { return float64(int32(order.Uint32(b))) }
	case niftiUint32:
		return 4, func(b []byte) float64 { return float64(order.Uint32(b)) }
	case niftiFloat32:
		return 4, func(b []byte) float64 { return float64(math.Float32frombits(order.Uint32(b))) }
	case niftiFloat64:
		return 8, func(b []byte) float64 { return math.Float64frombits(order.Uint64(b)) }
	default:
		return 0, nil
	}
}

// EncodeNifti writes vol as an uncompressed little endian float32 NIfTI-1 image.
func EncodeNifti(w io.Writer, vol *Volume) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	hdr := make([]byte, niftiHeaderSize+4)
	le := binary.LittleEndian
	le.PutUint32(hdr[0:], niftiHeaderSize)
	le.PutUint16(hdr[40:], 3)
	for a := 0; a < 3; a++ {
		le.PutUint16(hdr[42+2*a:], uint16(vol.Dims[a]))
	}
	le.PutUint16(hdr[70:], niftiFloat32)
	le.PutUint16(hdr[72:], 32)
	le.PutUint32(hdr[76:], math.Float32bits(1))
	le.PutUint32(hdr[80:], math.Float32bits(float32(vol.Spacing.X)))
	le.PutUint32(hdr[84:], math.Float32bits(float32(vol.Spacing.Y)))
	le.PutUint32(hdr[88:], math.Float32bits(float32(vol.Spacing.Z)))
	le.PutUint32(hdr[108:], math.Float32bits(float32(niftiHeaderSize+4)))
	le.PutUint32(hdr[112:], math.Float32bits(1))
	copy(hdr[344:], "n+1\x00")

	var buf bytes.Buffer
	buf.Write(hdr)
	sample := make([]byte, 4)
	for _, v := range vol.Data {
		le.PutUint32(sample, math.Float32bits(float32(v)))
		buf.Write(sample)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
