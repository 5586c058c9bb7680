package models

import (
	"gonum.org/v1/gonum/mat"
)

// SliceRecord represents a single scanner cross-section with its geometry.
// Optional header fields are nil when the source record did not carry them.
type SliceRecord struct {
	// Pixels is the raw stored pixel array, indexed (row, column) as read
	// from the source record.
	Pixels *mat.Dense

	// Position is the patient-space coordinate of the top-left pixel.
	Position *[3]float64

	// Orientation holds the row direction cosines followed by the
	// column direction cosines.
	Orientation *[6]float64

	// PixelSpacing is (row spacing, column spacing) in mm.
	PixelSpacing *[2]float64

	// SliceThickness is the nominal thickness of the slice in mm.
	SliceThickness *float64

	// RescaleSlope and RescaleIntercept map stored values to true intensity.
	RescaleSlope     *float64
	RescaleIntercept *float64

	// Rows and Columns are the declared pixel-array dimensions, 0 if absent.
	Rows    int
	Columns int

	// PatientPosition is the declared patient position, e.g. "HFS".
	PatientPosition string

	// SeriesUID identifies the acquisition series.
	SeriesUID string

	// Source is the file the record was read from, used in error reports.
	Source string
}

// Slope returns the rescale slope, 1 when absent.
func (s *SliceRecord) Slope() float64 {
	if s.RescaleSlope == nil {
		return 1
	}
	return *s.RescaleSlope
}

// Intercept returns the rescale intercept, 0 when absent.
func (s *SliceRecord) Intercept() float64 {
	if s.RescaleIntercept == nil {
		return 0
	}
	return *s.RescaleIntercept
}

// UnknownOrientation is reported when the first slice declares no patient position.
const UnknownOrientation = "unknown"

// Volume represents a 3D volume assembled from a slice collection
type Volume struct {
	// Data is the rescaled volume in row-major order, indexed
	// [slice][row][column] with the last index varying fastest.
	Data []float32

	// Shape is (numSlices, in-plane rows, in-plane columns) of Data.
	Shape [3]int

	// Affine maps voxel indices to patient coordinates.
	Affine Affine

	// SeriesOrientation and SeriesUID are passed through from the first slice header.
	SeriesOrientation string
	SeriesUID         string

	// SliceThickness is the declared thickness of the first slice.
	SliceThickness float64

	// SlicePositions lists the slice positions in stacking order.
	SlicePositions [][3]float64

	// Diagnostics lists the consistency warnings raised during assembly.
	Diagnostics []Diagnostic
}

// At returns the voxel value at (slice, row, column).
func (v *Volume) At(i, j, k int) float32 {
	return v.Data[(i*v.Shape[1]+j)*v.Shape[2]+k]
}

// Volume4D represents a time-ordered stack of co-registered frames.
type Volume4D struct {
	// Data holds all frames in row-major order, indexed [frame][z][y][x].
	Data []float32

	// Shape is (numFrames, z, y, x).
	Shape [4]int

	// Affine is taken from one of the placed frames.
	Affine Affine

	// DType is the on-disk datatype shared by every placed frame.
	DType string

	// Files holds the source file of each frame slot, empty for blank slots.
	Files []string

	// FrameIndex holds the parsed frame index of each input file, -1 if none.
	FrameIndex []int

	// NumImages is the number of recognised volume files in the input.
	NumImages int

	Diagnostics []Diagnostic
}

// Frame returns the voxel data of frame t without copying.
func (v *Volume4D) Frame(t int) []float32 {
	n := v.Shape[1] * v.Shape[2] * v.Shape[3]
	return v.Data[t*n : (t+1)*n]
}
