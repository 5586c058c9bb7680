package reconstruction

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"dcmvolume/internal/models"
)

// needsTranspose reports whether pixel arrays must be transposed before
// stacking: they are used as-is only when the leading dimension of the first
// array equals the declared column count. Without a declared column count
// there is nothing to compare against and the arrays are used as-is.
func needsTranspose(first *models.SliceRecord) bool {
	if first.Columns == 0 {
		return false
	}
	r, _ := first.Pixels.Dims()
	return r != first.Columns
}

// stackSlices allocates the final volume once and fills it in sorted order,
// transposing when needed and applying each slice's own slope/intercept.
func stackSlices(records []models.SliceRecord, order []int) ([]float32, [3]int, error) {
	r0, c0 := records[0].Pixels.Dims()
	for i := range records {
		r, c := records[i].Pixels.Dims()
		if r != r0 || c != c0 {
			return nil, [3]int{}, &models.SliceError{
				Index: i, Path: records[i].Source, Field: "pixel data", Kind: models.ErrInconsistentPixels,
				Err: fmt.Errorf("got %dx%d, first slice is %dx%d", r, c, r0, c0),
			}
		}
	}

	transpose := needsTranspose(&records[0])
	rows, cols := r0, c0
	if transpose {
		rows, cols = c0, r0
	}

	n := len(order)
	plane := rows * cols
	data := make([]float32, n*plane)
	for i, idx := range order {
		rec := &records[idx]
		var px mat.Matrix = rec.Pixels
		if transpose {
			px = px.T()
		}

		slope, intercept := rec.Slope(), rec.Intercept()
		base := i * plane
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				data[base+y*cols+x] = float32(px.At(y, x)*slope + intercept)
			}
		}
	}

	return data, [3]int{n, rows, cols}, nil
}
