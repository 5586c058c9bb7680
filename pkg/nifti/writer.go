package nifti

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"

	"dcmvolume/internal/models"
)

// WriteVolume stores data, laid out in memory order with the given shape,
// as a float32 NIfTI-1 file. Shape is (nz, ny, nx) or (nt, nz, ny, nx).
// The affine is written as a scanner-coordinate sform, cal_min and cal_max
// are set from the data range and description is stored verbatim. Paths
// ending in .gz are written compressed.
func WriteVolume(data []float32, shape []int, affine models.Affine, path, description string) error {
	if len(shape) != 3 && len(shape) != 4 {
		return fmt.Errorf("write %s: %d dimensions: %w", path, len(shape), models.ErrUnsupportedDims)
	}
	n := 1
	for _, d := range shape {
		if d <= 0 || d > math.MaxInt16 {
			return fmt.Errorf("write %s: dimension out of range in %v: %w", path, shape, models.ErrUnsupportedDims)
		}
		n *= d
	}
	if len(data) != n {
		return fmt.Errorf("write %s: %d voxels for shape %v: %w", path, len(data), shape, models.ErrInvalidMetadata)
	}
	if len(description) > len(Header{}.Descrip) {
		return fmt.Errorf("write %s: description is %d bytes, at most %d fit: %w",
			path, len(description), len(Header{}.Descrip), models.ErrInvalidMetadata)
	}

	dims := diskDims(shape)
	h := newHeader(dims, affine)
	h.CalMin, h.CalMax = dataRange(data)
	copy(h.Descrip[:], description)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var zw *gzip.Writer
	if strings.HasSuffix(path, GzipSuffix) {
		zw = gzip.NewWriter(bw)
		w = zw
	}

	if err := encode(w, h, toDiskOrder(data, dims)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	size := int64(0)
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	log.WithFields(log.Fields{
		"path":  path,
		"dims":  dims,
		"size":  humanize.Bytes(uint64(size)),
		"range": fmt.Sprintf("[%g, %g]", h.CalMin, h.CalMax),
	}).Debug("Wrote volume")
	return nil
}

func encode(w io.Writer, h *Header, disk []float32) error {
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}
	// Empty extension block up to vox_offset.
	if _, err := w.Write(make([]byte, voxOffset-headerSize)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, disk)
}

// diskDims reverses a memory shape into on-disk dims (x first, then t).
func diskDims(shape []int) []int {
	if len(shape) == 4 {
		return []int{shape[3], shape[2], shape[1], shape[0]}
	}
	return []int{shape[2], shape[1], shape[0]}
}

// toDiskOrder is the inverse of toMemoryOrder.
func toDiskOrder(mem []float32, dims []int) []float32 {
	nx, ny, nz, nt := dims[0], dims[1], dims[2], 1
	if len(dims) == 4 {
		nt = dims[3]
	}

	disk := make([]float32, len(mem))
	d := 0
	for t := 0; t < nt; t++ {
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				for i := 0; i < nx; i++ {
					disk[d] = mem[memIndex(i, j, k, t, nx, ny, nz)]
					d++
				}
			}
		}
	}
	return disk
}

// dataRange returns the minimum and maximum ignoring NaN. An all-NaN
// volume yields (0, 0).
func dataRange(data []float32) (lo, hi float32) {
	first := true
	for _, v := range data {
		if math.IsNaN(float64(v)) {
			continue
		}
		if first {
			lo, hi, first = v, v, false
			continue
		}
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}
