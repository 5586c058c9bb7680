// Package dicomio reads scanner slice files into typed slice records.
//
// This is the only place where DICOM tags are looked up. Every numeric
// header field is parsed and validated here, so the assembler works on
// typed values and never sees raw tags.
package dicomio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/mat"

	"dcmvolume/internal/models"
)

// DefaultExtensions are the file suffixes recognised as slice files.
var DefaultExtensions = []string{"dcm", "DCM", "ima", "IMA"}

// ListSliceFiles returns the regular files in dir whose names end with one
// of exts, sorted by name.
func ListSliceFiles(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list slice files: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		for _, ext := range exts {
			if strings.HasSuffix(name, ext) {
				files = append(files, filepath.Join(dir, name))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// ReadSeriesDir reads every recognised slice file in dir.
func ReadSeriesDir(dir string, exts []string) ([]models.SliceRecord, error) {
	files, err := ListSliceFiles(dir, exts)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no slice files in %s: %w", dir, models.ErrEmptySeries)
	}
	return ReadSeries(files)
}

// ReadSeries reads the given files in order. The first failing file aborts
// the read; its error carries the file's index in paths.
func ReadSeries(paths []string) ([]models.SliceRecord, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("read series: %w", models.ErrEmptySeries)
	}

	records := make([]models.SliceRecord, len(paths))
	for i, p := range paths {
		rec, err := ReadSliceRecord(p)
		if err != nil {
			var se *models.SliceError
			if errors.As(err, &se) {
				se.Index = i
			}
			return nil, err
		}
		records[i] = rec
	}

	log.WithFields(log.Fields{
		"slices": len(records),
		"series": records[0].SeriesUID,
	}).Debug("Read slice files")
	return records, nil
}

// ReadSliceRecord parses one slice file. Absent tags leave the matching
// record field unset; malformed tags fail with ErrInvalidMetadata.
func ReadSliceRecord(path string) (models.SliceRecord, error) {
	rec := models.SliceRecord{Source: path}

	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return rec, &models.SliceError{Index: -1, Path: path, Kind: models.ErrUnreadableSlice, Err: err}
	}

	h := header{ds: ds, path: path}

	if v := h.floats(tag.ImagePositionPatient, "position", 3); v != nil {
		rec.Position = &[3]float64{v[0], v[1], v[2]}
	}
	if v := h.floats(tag.ImageOrientationPatient, "orientation", 6); v != nil {
		rec.Orientation = &[6]float64{v[0], v[1], v[2], v[3], v[4], v[5]}
	}
	if v := h.floats(tag.PixelSpacing, "pixel spacing", 2); v != nil {
		rec.PixelSpacing = &[2]float64{v[0], v[1]}
	}
	if v := h.floats(tag.SliceThickness, "slice thickness", 1); v != nil {
		rec.SliceThickness = &v[0]
	}

	// Slope and intercept only count as a pair.
	slope := h.floats(tag.RescaleSlope, "rescale slope", 1)
	intercept := h.floats(tag.RescaleIntercept, "rescale intercept", 1)
	if slope != nil && intercept != nil {
		rec.RescaleSlope = &slope[0]
		rec.RescaleIntercept = &intercept[0]
	}

	if v := h.ints(tag.Rows, "rows"); v != nil {
		rec.Rows = v[0]
	}
	if v := h.ints(tag.Columns, "columns"); v != nil {
		rec.Columns = v[0]
	}
	rec.PatientPosition = h.str(tag.PatientPosition)
	rec.SeriesUID = h.str(tag.SeriesInstanceUID)

	if h.err != nil {
		return rec, h.err
	}

	px, err := readPixels(ds, path)
	if err != nil {
		return rec, err
	}
	rec.Pixels = px

	return rec, nil
}

// header wraps a parsed dataset and keeps the first parse error.
type header struct {
	ds   dicom.Dataset
	path string
	err  error
}

func (h *header) invalid(field string, cause error) {
	if h.err == nil {
		h.err = &models.SliceError{Index: -1, Path: h.path, Field: field, Kind: models.ErrInvalidMetadata, Err: cause}
	}
}

// values returns the raw value of t, or nil if the tag is absent.
func (h *header) values(t tag.Tag) any {
	elem, err := h.ds.FindElementByTag(t)
	if err != nil || elem == nil || elem.Value == nil {
		return nil
	}
	return elem.Value.GetValue()
}

// floats parses a decimal-string or floating-point tag holding exactly n
// values. It returns nil when the tag is absent or empty.
func (h *header) floats(t tag.Tag, field string, n int) []float64 {
	var out []float64
	switch v := h.values(t).(type) {
	case nil:
		return nil
	case []string:
		if isBlank(v) {
			return nil
		}
		for _, s := range v {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				h.invalid(field, err)
				return nil
			}
			out = append(out, f)
		}
	case []float64:
		out = v
	case []int:
		for _, i := range v {
			out = append(out, float64(i))
		}
	default:
		h.invalid(field, fmt.Errorf("unexpected value type %T", v))
		return nil
	}

	if len(out) != n {
		h.invalid(field, fmt.Errorf("expected %d value(s), got %d", n, len(out)))
		return nil
	}
	return out
}

func (h *header) ints(t tag.Tag, field string) []int {
	switch v := h.values(t).(type) {
	case nil:
		return nil
	case []int:
		if len(v) == 0 {
			return nil
		}
		return v
	case []string:
		if isBlank(v) {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v[0]))
		if err != nil {
			h.invalid(field, err)
			return nil
		}
		return []int{n}
	default:
		h.invalid(field, fmt.Errorf("unexpected value type %T", v))
		return nil
	}
}

func (h *header) str(t tag.Tag) string {
	if v, ok := h.values(t).([]string); ok && len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func isBlank(v []string) bool {
	for _, s := range v {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// readPixels copies the first native frame into a rows x columns matrix,
// sign-extending stored values when the pixel representation is signed.
// A file without pixel data yields a nil matrix.
func readPixels(ds dicom.Dataset, path string) (*mat.Dense, error) {
	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, nil
	}

	unreadable := func(cause error) error {
		return &models.SliceError{Index: -1, Path: path, Field: "pixel data", Kind: models.ErrUnreadableSlice, Err: cause}
	}

	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, unreadable(fmt.Errorf("no frames"))
	}
	fr := info.Frames[0]
	if fr.Encapsulated || fr.NativeData == nil {
		return nil, unreadable(fmt.Errorf("encapsulated pixel data is not supported"))
	}

	nf := fr.NativeData
	if nf.SamplesPerPixel() != 1 {
		return nil, &models.SliceError{
			Index: -1, Path: path, Field: "pixel data", Kind: models.ErrInvalidMetadata,
			Err: fmt.Errorf("%d samples per pixel, expected 1", nf.SamplesPerPixel()),
		}
	}

	h := header{ds: ds, path: path}
	signed := false
	if v := h.ints(tag.PixelRepresentation, "pixel representation"); v != nil {
		signed = v[0] == 1
	}
	bits := nf.BitsPerSample()

	rows, cols := nf.Rows(), nf.Cols()
	if rows <= 0 || cols <= 0 {
		return nil, unreadable(fmt.Errorf("empty %dx%d frame", rows, cols))
	}
	px := mat.NewDense(rows, cols, nil)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			sample, err := nf.GetPixel(x, y)
			if err != nil {
				return nil, unreadable(err)
			}
			v := sample[0]
			if signed && bits > 0 && bits < 64 && v >= 1<<(bits-1) {
				v -= 1 << bits
			}
			px.Set(y, x, float64(v))
		}
	}
	return px, nil
}
