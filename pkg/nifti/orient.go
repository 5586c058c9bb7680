package nifti

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"dcmvolume/internal/models"
)

var axisLabels = [3]string{"L-R", "S-I", "A-P"}

// Orientation reports, for each world axis, the label of the voxel axis that
// contributes most to it according to the spatial part of affine.
func Orientation(affine models.Affine) [3]string {
	var out [3]string
	for row := 0; row < 3; row++ {
		abs := make([]float64, 3)
		for c := range abs {
			abs[c] = math.Abs(affine[row][c])
		}
		out[row] = axisLabels[floats.MaxIdx(abs)]
	}
	return out
}

// FileOrientation reads the affine of path and reports its orientation.
func FileOrientation(path string) ([3]string, error) {
	img, err := ReadVolume(path, ReadOptions{Mode: ModeAffine})
	if err != nil {
		return [3]string{}, err
	}
	return Orientation(img.Affine), nil
}
