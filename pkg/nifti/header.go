// Package nifti reads and writes single-file NIfTI-1 volumes.
//
// Volumes are exchanged in the slice assembler's voxel order: the second and
// third on-disk axes are reversed and the axis order is inverted, so a 3D
// file with dims (nx, ny, nz) is held in memory with shape (nz, ny, nx) and
// the fastest-varying on-disk axis last. Writing applies the exact inverse.
package nifti

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"dcmvolume/internal/models"
)

const (
	headerSize = 348
	voxOffset  = 352
)

var magicSingleFile = [4]byte{'n', '+', '1', 0}

// NIfTI-1 datatype codes.
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
	DTUint32  int16 = 768
)

// Coordinate system codes for qform_code and sform_code.
const (
	XformUnknown int16 = 0
	XformScanner int16 = 1
)

// unitsMMSec is xyzt_units for millimetres and seconds.
const unitsMMSec = 2 | 8

var dtypeNames = map[int16]string{
	DTUint8:   "uint8",
	DTInt16:   "int16",
	DTInt32:   "int32",
	DTFloat32: "float32",
	DTFloat64: "float64",
	DTInt8:    "int8",
	DTUint16:  "uint16",
	DTUint32:  "uint32",
}

// Header is the 348-byte NIfTI-1 header. Field order and sizes follow the
// nifti1.h layout so the struct can be moved with encoding/binary.
type Header struct {
	SizeOfHdr      int32
	DataTypeLegacy [10]byte
	DbName         [18]byte
	Extents        int32
	SessionError   int16
	Regular        byte
	DimInfo        byte

	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	DataType      int16
	BitPix        int16
	SliceStart    int16
	PixDim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	Glmax         int32
	Glmin         int32

	Descrip [80]byte
	AuxFile [24]byte

	QFormCode int16
	SFormCode int16

	QuaternB float32
	QuaternC float32
	QuaternD float32
	QOffsetX float32
	QOffsetY float32
	QOffsetZ float32

	SRowX [4]float32
	SRowY [4]float32
	SRowZ [4]float32

	IntentName [16]byte
	Magic      [4]byte
}

// DTypeName returns the element type name of the stored data.
func (h *Header) DTypeName() string {
	if name, ok := dtypeNames[h.DataType]; ok {
		return name
	}
	return fmt.Sprintf("dt%d", h.DataType)
}

// Description returns the descrip field without trailing NUL padding.
func (h *Header) Description() string {
	return strings.TrimRight(string(h.Descrip[:]), "\x00")
}

// Dims returns the on-disk dimensions dim[1..dim[0]].
func (h *Header) Dims() []int {
	n := int(h.Dim[0])
	if n < 0 || n > 7 {
		return nil
	}
	dims := make([]int, n)
	for i := range dims {
		dims[i] = int(h.Dim[i+1])
	}
	return dims
}

// Affine returns the sform rows. Files without an sform fall back to a
// diagonal scaling by the voxel sizes.
func (h *Header) Affine() models.Affine {
	if h.SFormCode == XformUnknown && h.SRowX == [4]float32{} && h.SRowY == [4]float32{} && h.SRowZ == [4]float32{} {
		a := models.IdentityAffine()
		for i := 0; i < 3; i++ {
			if d := h.PixDim[i+1]; d > 0 {
				a[i][i] = float64(d)
			}
		}
		return a
	}

	var a models.Affine
	for c := 0; c < 4; c++ {
		a[0][c] = float64(h.SRowX[c])
		a[1][c] = float64(h.SRowY[c])
		a[2][c] = float64(h.SRowZ[c])
	}
	a[3] = [4]float64{0, 0, 0, 1}
	return a
}

// bytesPerVoxel returns the storage size of one sample, or 0 for datatypes
// the codec does not handle.
func (h *Header) bytesPerVoxel() int {
	switch h.DataType {
	case DTUint8, DTInt8:
		return 1
	case DTInt16, DTUint16:
		return 2
	case DTInt32, DTUint32, DTFloat32:
		return 4
	case DTFloat64:
		return 8
	}
	return 0
}

// readHeader decodes a header, detecting the byte order from sizeof_hdr.
func readHeader(r io.Reader) (*Header, binary.ByteOrder, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, fmt.Errorf("%w: read header: %w", models.ErrUnreadableVolume, err)
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(buf) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(buf) == headerSize:
		order = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("%w: cannot infer byte order from header size", models.ErrUnreadableVolume)
	}

	h := &Header{}
	if err := binary.Read(bytes.NewReader(buf), order, h); err != nil {
		return nil, nil, fmt.Errorf("%w: decode header: %w", models.ErrUnreadableVolume, err)
	}

	if h.Magic != magicSingleFile {
		return nil, nil, fmt.Errorf("%w: header and data must be stored in the same file", models.ErrUnreadableVolume)
	}
	if h.bytesPerVoxel() == 0 {
		return nil, nil, fmt.Errorf("%w: unsupported datatype %d", models.ErrUnreadableVolume, h.DataType)
	}
	return h, order, nil
}

// newHeader builds a float32 single-file header for on-disk dims.
func newHeader(dims []int, affine models.Affine) *Header {
	h := &Header{
		SizeOfHdr: headerSize,
		Regular:   'r',
		DataType:  DTFloat32,
		BitPix:    32,
		VoxOffset: voxOffset,
		XYZTUnits: unitsMMSec,
		QFormCode: XformUnknown,
		SFormCode: XformScanner,
		Magic:     magicSingleFile,
	}

	h.Dim[0] = int16(len(dims))
	for i := range h.Dim[1:] {
		h.Dim[i+1] = 1
	}
	for i, d := range dims {
		h.Dim[i+1] = int16(d)
	}

	h.PixDim[0] = 1
	for i := range h.PixDim[1:] {
		h.PixDim[i+1] = 1
	}
	for c := 0; c < 3; c++ {
		h.PixDim[c+1] = float32(affine.ColumnNorm(c))
	}

	for c := 0; c < 4; c++ {
		h.SRowX[c] = float32(affine[0][c])
		h.SRowY[c] = float32(affine[1][c])
		h.SRowZ[c] = float32(affine[2][c])
	}
	return h
}
