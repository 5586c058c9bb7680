package reconstruction

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"dcmvolume/internal/models"
)

// DefaultTolerance is the summed absolute deviation of orientation or pixel
// spacing across a series above which the series is reported as inconsistent.
const DefaultTolerance = 1e-6

// Params holds the slice assembly parameters.
type Params struct {
	// Tolerance bounds the geometric deviation accepted without a diagnostic.
	// It is also the margin under which two candidate through-plane axes are
	// considered tied.
	Tolerance float64

	// StrictAxisTies makes a tied through-plane axis an error. When false the
	// first tied axis (x before y before z) is used and a diagnostic is raised.
	StrictAxisTies bool
}

// DefaultParams returns the parameters used by AssembleVolume.
func DefaultParams() *Params {
	return &Params{Tolerance: DefaultTolerance}
}

// Reconstructor assembles a collection of scanner slices into a single volume
// with its voxel-to-world affine.
//
// The assembly consists of several steps:
// 1. Scanning the first header for series-level passthrough metadata
// 2. Extracting and validating per-slice geometry
// 3. Checking that orientation and pixel spacing agree across slices
// 4. Selecting the through-plane axis and sorting slices along it
// 5. Correcting pixel-array transposition and applying rescale slope/intercept
// 6. Deriving the affine from the first slice geometry and the extreme positions
//
// A Reconstructor holds no per-call state and never mutates its input.
type Reconstructor struct {
	params *Params
}

// NewReconstructor creates a reconstructor with the provided parameters.
// A nil params value selects DefaultParams.
func NewReconstructor(params *Params) *Reconstructor {
	if params == nil {
		params = DefaultParams()
	}
	return &Reconstructor{params: params}
}

// AssembleVolume assembles records with the default parameters.
func AssembleVolume(records []models.SliceRecord) (*models.Volume, error) {
	return NewReconstructor(nil).Assemble(records)
}

// Assemble runs the complete assembly pipeline. It either returns a fully
// built volume or an error; partial volumes are never returned. Consistency
// problems that have a documented fallback are reported on
// Volume.Diagnostics instead of failing the call.
func (r *Reconstructor) Assemble(records []models.SliceRecord) (*models.Volume, error) {
	n := len(records)
	if n == 0 {
		return nil, fmt.Errorf("assemble volume: %w", models.ErrEmptySeries)
	}

	// Series-level passthrough from the first record; absence is not fatal.
	orientation := records[0].PatientPosition
	if orientation == "" {
		orientation = models.UnknownOrientation
	}
	seriesUID := records[0].SeriesUID
	logger := log.WithFields(log.Fields{"series": seriesUID, "slices": n})

	geo, err := extractGeometry(records)
	if err != nil {
		return nil, err
	}

	var diags []models.Diagnostic
	report := func(d models.Diagnostic) {
		diags = append(diags, d)
		logger.WithField("kind", d.Kind).Warn(d.Message)
	}

	for _, d := range checkConsistency(geo, r.params.Tolerance) {
		report(d)
	}

	// From here on only the first slice geometry is used, whether or not the
	// series was consistent.
	orn := geo.orientations[0]
	spacing := geo.spacings[0]

	k, tied := throughPlaneAxis(orn, r.params.Tolerance)
	if tied {
		if r.params.StrictAxisTies {
			return nil, fmt.Errorf("assemble volume: %w: orientation %v", models.ErrAmbiguousAxis, orn)
		}
		report(models.Diagnostic{
			Kind:    models.AxisTie,
			Message: fmt.Sprintf("through-plane axis is tied for orientation %v, using axis %d", orn, k),
		})
	}

	order := sortAlongAxis(geo.positions, k)
	if dup := countDuplicatePositions(geo.positions, order, k, r.params.Tolerance); dup > 0 {
		report(models.Diagnostic{
			Kind:    models.DuplicatePosition,
			Message: fmt.Sprintf("%d slice(s) share a position along axis %d", dup, k),
		})
	}

	data, shape, err := stackSlices(records, order)
	if err != nil {
		return nil, err
	}

	first := geo.positions[order[0]]
	last := geo.positions[order[n-1]]
	affine, err := deriveAffine(orn, spacing, first, last, n)
	if err != nil {
		return nil, err
	}

	sorted := make([][3]float64, n)
	for i, idx := range order {
		sorted[i] = geo.positions[idx]
	}

	logger.WithFields(log.Fields{
		"axis":  k,
		"shape": shape,
	}).Debug("Assembled volume")

	return &models.Volume{
		Data:              data,
		Shape:             shape,
		Affine:            affine,
		SeriesOrientation: orientation,
		SeriesUID:         seriesUID,
		SliceThickness:    geo.thickness[0],
		SlicePositions:    sorted,
		Diagnostics:       diags,
	}, nil
}

// geometry holds the per-slice metadata in input order.
type geometry struct {
	positions    [][3]float64
	orientations [][6]float64
	spacings     [][2]float64
	thickness    []float64
}

// extractGeometry copies the required geometric fields out of every record.
// The first record missing a field, or carrying a non-finite value, fails
// the whole collection.
func extractGeometry(records []models.SliceRecord) (*geometry, error) {
	n := len(records)
	geo := &geometry{
		positions:    make([][3]float64, n),
		orientations: make([][6]float64, n),
		spacings:     make([][2]float64, n),
		thickness:    make([]float64, n),
	}

	for i := range records {
		rec := &records[i]
		missing := func(field string) error {
			return &models.SliceError{Index: i, Path: rec.Source, Field: field, Kind: models.ErrMissingMetadata}
		}

		switch {
		case rec.Pixels == nil:
			return nil, missing("pixel data")
		case rec.Position == nil:
			return nil, missing("position")
		case rec.Orientation == nil:
			return nil, missing("orientation")
		case rec.PixelSpacing == nil:
			return nil, missing("pixel spacing")
		case rec.SliceThickness == nil:
			return nil, missing("slice thickness")
		}

		geo.positions[i] = *rec.Position
		geo.orientations[i] = *rec.Orientation
		geo.spacings[i] = *rec.PixelSpacing
		geo.thickness[i] = *rec.SliceThickness

		checks := []struct {
			field  string
			values []float64
		}{
			{"position", geo.positions[i][:]},
			{"orientation", geo.orientations[i][:]},
			{"pixel spacing", geo.spacings[i][:]},
			{"slice thickness", geo.thickness[i : i+1]},
			{"rescale slope", []float64{rec.Slope()}},
			{"rescale intercept", []float64{rec.Intercept()}},
		}
		for _, c := range checks {
			if !allFinite(c.values) {
				return nil, &models.SliceError{
					Index: i, Path: rec.Source, Field: c.field, Kind: models.ErrInvalidMetadata,
					Err: fmt.Errorf("non-finite value in %v", c.values),
				}
			}
		}
	}

	return geo, nil
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
