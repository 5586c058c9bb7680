package reconstruction

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"dcmvolume/internal/models"
)

// checkConsistency compares every slice's orientation and pixel spacing with
// the first slice. A summed absolute deviation above tol is reported, but the
// caller still proceeds with the first slice geometry, which can produce a
// wrong affine for a genuinely heterogeneous series.
func checkConsistency(geo *geometry, tol float64) []models.Diagnostic {
	var diags []models.Diagnostic

	var ornDev, resDev float64
	ref := geo.orientations[0]
	refSpacing := geo.spacings[0]
	for i := range geo.orientations {
		ornDev += floats.Distance(geo.orientations[i][:], ref[:], 1)
		resDev += floats.Distance(geo.spacings[i][:], refSpacing[:], 1)
	}

	if ornDev > tol {
		diags = append(diags, models.Diagnostic{
			Kind:    models.VaryingOrientation,
			Message: fmt.Sprintf("varying orientation for slices (summed deviation %g), using first slice", ornDev),
		})
	}
	if resDev > tol {
		diags = append(diags, models.Diagnostic{
			Kind:    models.VaryingResolution,
			Message: fmt.Sprintf("varying resolution for slices (summed deviation %g), using first slice", resDev),
		})
	}
	return diags
}

// throughPlaneAxis returns the patient axis least represented by the two
// in-plane direction cosines: the index of the smallest |row + col|
// component. tied is set when another axis is within tol of that minimum.
func throughPlaneAxis(orn [6]float64, tol float64) (k int, tied bool) {
	sums := make([]float64, 3)
	for i := range sums {
		sums[i] = math.Abs(orn[i] + orn[i+3])
	}

	k = floats.MinIdx(sums)
	for i, s := range sums {
		if i != k && s-sums[k] <= tol {
			tied = true
		}
	}
	return k, tied
}

// sortAlongAxis returns the slice indices ordered by position along axis k,
// smallest first. Equal coordinates along k fall back to the remaining
// coordinates so that the order depends only on positions.
func sortAlongAxis(positions [][3]float64, k int) []int {
	order := make([]int, len(positions))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := positions[order[a]], positions[order[b]]
		if pa[k] != pb[k] {
			return pa[k] < pb[k]
		}
		for ax := 0; ax < 3; ax++ {
			if pa[ax] != pb[ax] {
				return pa[ax] < pb[ax]
			}
		}
		return false
	})
	return order
}

// countDuplicatePositions counts neighbours in sorted order whose positions
// along axis k are within tol of each other.
func countDuplicatePositions(positions [][3]float64, order []int, k int, tol float64) int {
	dup := 0
	for i := 1; i < len(order); i++ {
		if math.Abs(positions[order[i]][k]-positions[order[i-1]][k]) <= tol {
			dup++
		}
	}
	return dup
}

// deriveAffine builds the voxel-to-world transform:
//
//	column 0: row direction cosines x column spacing (spacing[1])
//	column 1: column direction cosines x row spacing (spacing[0])
//	column 2: per-axis step between the first and last sorted slice
//	column 3: position of the first sorted slice
//
// A single slice leaves the step undefined and is rejected.
func deriveAffine(orn [6]float64, spacing [2]float64, first, last [3]float64, n int) (models.Affine, error) {
	if n < 2 {
		return models.Affine{}, fmt.Errorf("derive affine from %d slice(s): %w", n, models.ErrInsufficientSlices)
	}

	var step [3]float64
	for ax := range step {
		step[ax] = (last[ax] - first[ax]) / float64(n-1)
	}

	return models.Affine{
		{spacing[1] * orn[0], spacing[0] * orn[3], step[0], first[0]},
		{spacing[1] * orn[1], spacing[0] * orn[4], step[1], first[1]},
		{spacing[1] * orn[2], spacing[0] * orn[5], step[2], first[2]},
		{0, 0, 0, 1},
	}, nil
}
