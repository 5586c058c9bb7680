// Package util holds small helpers shared by the command-line driver.
package util

import (
	"fmt"
	"math"
	"os"
	"time"
)

// DefaultVoxelSize is the voxel size in mm assumed by FWHMToSigma callers
// that have no image geometry at hand.
const DefaultVoxelSize = 2.0

// CreateDir creates path and any missing parents. An existing directory is
// not an error.
func CreateDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// TimeStamp formats t as "YYYY-M-D H:M" without zero padding.
func TimeStamp(t time.Time) string {
	return fmt.Sprintf("%d-%d-%d %d:%d", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute())
}

// FWHMToSigma converts a Gaussian full width at half maximum in mm into a
// standard deviation in voxels.
func FWHMToSigma(fwhm, voxSize float64) float64 {
	return (fwhm / voxSize) / (2 * math.Sqrt(2*math.Ln2))
}
