package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"

	"dcmvolume/internal/models"
)

// OutputMode selects what ReadVolume returns.
type OutputMode int

const (
	// ModeImage returns the voxel data and its shape.
	ModeImage OutputMode = iota
	// ModeAffine returns the affine only; voxel data is not read.
	ModeAffine
	// ModeAll returns data, shape, affine, element type and header.
	ModeAll
)

// ReadOptions controls ReadVolume.
type ReadOptions struct {
	// NaNReplacement, when set, replaces every NaN voxel.
	NaNReplacement *float64
	Mode           OutputMode
}

// Image is a decoded volume. Fields not selected by the output mode are
// left at their zero value.
type Image struct {
	// Data holds the voxels in memory order: (nz, ny, nx) for 3D files and
	// (nt, nz, ny, nx) for 4D files.
	Data   []float32
	Shape  []int
	Affine models.Affine
	// DType is the element type stored on disk.
	DType  string
	Header *Header
}

// ReadVolume loads a .nii or .nii.gz file.
func ReadVolume(path string, opts ReadOptions) (*Image, error) {
	r, closer, err := open(path)
	if err != nil {
		return nil, err
	}
	defer closer()

	h, order, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	dims := h.Dims()
	if len(dims) != 3 && len(dims) != 4 {
		return nil, fmt.Errorf("read %s: %d dimensions: %w", path, len(dims), models.ErrUnsupportedDims)
	}

	logger := log.WithFields(log.Fields{
		"path":  path,
		"dims":  dims,
		"dtype": h.DTypeName(),
		"order": order,
	})

	img := &Image{}
	if opts.Mode == ModeAffine || opts.Mode == ModeAll {
		img.Affine = h.Affine()
	}
	if opts.Mode == ModeAffine {
		logger.Debug("Read volume affine")
		return img, nil
	}

	// Skip extensions between the header and the data.
	if skip := int64(h.VoxOffset) - headerSize; skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, fmt.Errorf("read %s: %w: skip to data: %w", path, models.ErrUnreadableVolume, err)
		}
	}

	n := 1
	for _, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("read %s: non-positive dimension %v: %w", path, dims, models.ErrUnsupportedDims)
		}
		if n > math.MaxInt/d {
			return nil, fmt.Errorf("read %s: %w: voxel count of %v overflows", path, models.ErrUnreadableVolume, dims)
		}
		n *= d
	}

	raw, err := readVoxelBytes(r, n, h.bytesPerVoxel())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	disk, err := readSamples(bytes.NewReader(raw), order, h.DataType, n)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	slope, inter := h.SclSlope, h.SclInter
	scale := slope != 0 && !(slope == 1 && inter == 0)
	for i, v := range disk {
		if scale {
			v = v*slope + inter
		}
		if opts.NaNReplacement != nil && math.IsNaN(float64(v)) {
			v = float32(*opts.NaNReplacement)
		}
		disk[i] = v
	}

	img.Data, img.Shape = toMemoryOrder(disk, dims)
	if opts.Mode == ModeAll {
		img.DType = h.DTypeName()
		img.Header = h
	}

	logger.WithField("shape", img.Shape).Debug("Read volume")
	return img, nil
}

// ReadHeader returns the header of a .nii or .nii.gz file.
func ReadHeader(path string) (*Header, error) {
	r, closer, err := open(path)
	if err != nil {
		return nil, err
	}
	defer closer()

	h, _, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return h, nil
}

// ReadDescription parses the description header field of path.
func ReadDescription(path string) (Description, error) {
	h, err := ReadHeader(path)
	if err != nil {
		return nil, err
	}
	return ParseDescription(h.Description()), nil
}

// open returns a buffered reader over the file, decompressing .gz files.
func open(path string) (io.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", models.ErrUnreadableVolume, err)
	}

	if !strings.HasSuffix(path, GzipSuffix) {
		return bufio.NewReader(f), func() { _ = f.Close() }, nil
	}

	zr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%w: %s: %w", models.ErrUnreadableVolume, path, err)
	}
	return zr, func() {
		_ = zr.Close()
		_ = f.Close()
	}, nil
}

// readVoxelBytes reads the n*size bytes of voxel data. The buffer grows with
// the bytes actually present, so a header claiming more data than the file
// holds fails without allocating for the claim.
func readVoxelBytes(r io.Reader, n, size int) ([]byte, error) {
	if n > math.MaxInt/size {
		return nil, fmt.Errorf("%w: %d voxels of %d bytes overflow", models.ErrUnreadableVolume, n, size)
	}
	need := int64(n * size)

	raw, err := io.ReadAll(io.LimitReader(r, need))
	if err != nil {
		return nil, fmt.Errorf("%w: read voxel data: %w", models.ErrUnreadableVolume, err)
	}
	if int64(len(raw)) < need {
		return nil, fmt.Errorf("%w: truncated voxel data, %d of %d bytes", models.ErrUnreadableVolume, len(raw), need)
	}
	return raw, nil
}

// readSamples reads n samples of datatype dt and widens them to float32.
func readSamples(r io.Reader, order binary.ByteOrder, dt int16, n int) ([]float32, error) {
	out := make([]float32, n)

	var err error
	switch dt {
	case DTFloat32:
		err = binary.Read(r, order, out)
	case DTFloat64:
		err = convert(r, order, make([]float64, n), out)
	case DTUint8:
		err = convert(r, order, make([]uint8, n), out)
	case DTInt8:
		err = convert(r, order, make([]int8, n), out)
	case DTInt16:
		err = convert(r, order, make([]int16, n), out)
	case DTUint16:
		err = convert(r, order, make([]uint16, n), out)
	case DTInt32:
		err = convert(r, order, make([]int32, n), out)
	case DTUint32:
		err = convert(r, order, make([]uint32, n), out)
	default:
		return nil, fmt.Errorf("%w: unsupported datatype %d", models.ErrUnreadableVolume, dt)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read voxel data: %w", models.ErrUnreadableVolume, err)
	}
	return out, nil
}

type sample interface {
	~uint8 | ~int8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~float64
}

func convert[T sample](r io.Reader, order binary.ByteOrder, buf []T, out []float32) error {
	if err := binary.Read(r, order, buf); err != nil {
		return err
	}
	for i, v := range buf {
		out[i] = float32(v)
	}
	return nil
}

// toMemoryOrder maps on-disk voxels (x fastest) to memory order: the y and z
// axes are reversed, then all axes are transposed.
func toMemoryOrder(disk []float32, dims []int) ([]float32, []int) {
	nx, ny, nz, nt := dims[0], dims[1], dims[2], 1
	shape := []int{nz, ny, nx}
	if len(dims) == 4 {
		nt = dims[3]
		shape = []int{nt, nz, ny, nx}
	}

	mem := make([]float32, len(disk))
	d := 0
	for t := 0; t < nt; t++ {
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				for i := 0; i < nx; i++ {
					mem[memIndex(i, j, k, t, nx, ny, nz)] = disk[d]
					d++
				}
			}
		}
	}
	return mem, shape
}

// memIndex returns the memory offset of on-disk voxel (i, j, k, t).
func memIndex(i, j, k, t, nx, ny, nz int) int {
	a := nz - 1 - k
	b := ny - 1 - j
	return ((t*nz+a)*ny+b)*nx + i
}
