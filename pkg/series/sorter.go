// Package series stacks the single-frame volumes of a dynamic acquisition
// into one 4D volume ordered by the frame index embedded in each file name.
package series

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"dcmvolume/internal/models"
	"dcmvolume/pkg/nifti"
)

// Defaults for Options.
var (
	DefaultFrameMarker = "_frm-"
	DefaultExtensions  = []string{".nii", ".nii.gz"}
)

// MaxFrameIndex is the largest frame index accepted in a file name.
const MaxFrameIndex = 1<<16 - 1

// Options controls frame detection.
type Options struct {
	// FrameMarker precedes the decimal frame index in a file name.
	FrameMarker string
	// Extensions are the recognised volume file suffixes.
	Extensions []string
	// NaNReplacement, when set, replaces NaN voxels of every frame.
	NaNReplacement *float64
}

// DefaultOptions returns the options used when nil is passed.
func DefaultOptions() *Options {
	return &Options{
		FrameMarker: DefaultFrameMarker,
		Extensions:  slices.Clone(DefaultExtensions),
	}
}

// SortSeriesDir sorts the recognised volume files found in dir.
func SortSeriesDir(dir string, opts *Options) (*models.Volume4D, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("sort series: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return SortSeries(paths, opts)
}

// SortSeries places each recognised file at the frame slot named by its
// frame index and stacks the slots into a 4D volume. Slots without a file
// are zero-filled. When no file carries an index, input order is the frame
// order; when only some do, the unindexed files are left out and a
// diagnostic is raised.
func SortSeries(paths []string, opts *Options) (*models.Volume4D, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	files := filterExtensions(paths, opts.Extensions)
	if len(files) == 0 {
		return nil, fmt.Errorf("sort series: no volume files: %w", models.ErrEmptySeries)
	}

	out := &models.Volume4D{NumImages: len(files)}
	report := func(d models.Diagnostic) {
		out.Diagnostics = append(out.Diagnostics, d)
		log.WithField("kind", d.Kind).Warn(d.Message)
	}

	marker := regexp.MustCompile(regexp.QuoteMeta(opts.FrameMarker) + `(\d+)`)
	indices, missing, err := parseFrameIndices(files, marker)
	if err != nil {
		return nil, fmt.Errorf("sort series: %w", err)
	}

	switch {
	case missing == len(files):
		report(models.Diagnostic{
			Kind:    models.NoFrameIndex,
			Message: fmt.Sprintf("none of %d volumes carries a frame index, using input order", len(files)),
		})
		for i := range indices {
			indices[i] = i
		}
	case missing > 0:
		report(models.Diagnostic{
			Kind:    models.PartialFrames,
			Message: fmt.Sprintf("only some volumes are dynamic frames, %d of %d left unplaced", missing, len(files)),
		})
	}
	out.FrameIndex = indices

	numFrames := slices.Max(indices) + 1
	out.Files = make([]string, numFrames)
	for i, idx := range indices {
		if idx < 0 {
			continue
		}
		if out.Files[idx] != "" {
			return nil, fmt.Errorf("sort series: frame %d in %s and %s: %w",
				idx, out.Files[idx], files[i], models.ErrDuplicateFrame)
		}
		out.Files[idx] = files[i]
	}

	var refShape []int
	var frameSize int
	for t, path := range out.Files {
		if path == "" {
			continue
		}

		img, err := nifti.ReadVolume(path, nifti.ReadOptions{
			NaNReplacement: opts.NaNReplacement,
			Mode:           nifti.ModeAll,
		})
		if err != nil {
			return nil, fmt.Errorf("sort series: %w", err)
		}
		if len(img.Shape) != 3 {
			return nil, fmt.Errorf("sort series: %s has %d dimensions, frames must be 3D: %w",
				path, len(img.Shape), models.ErrUnsupportedDims)
		}

		if refShape == nil {
			refShape = img.Shape
			out.DType = img.DType
			out.Affine = img.Affine
			out.Shape = [4]int{numFrames, refShape[0], refShape[1], refShape[2]}
			frameSize = refShape[0] * refShape[1] * refShape[2]
			out.Data = make([]float32, numFrames*frameSize)
		} else if !slices.Equal(img.Shape, refShape) || img.DType != out.DType {
			return nil, &models.ShapeMismatchError{
				Path:      path,
				WantShape: refShape,
				GotShape:  img.Shape,
				WantType:  out.DType,
				GotType:   img.DType,
			}
		}

		copy(out.Data[t*frameSize:(t+1)*frameSize], img.Data)
	}

	log.WithFields(log.Fields{
		"images": out.NumImages,
		"frames": numFrames,
		"shape":  out.Shape,
	}).Debug("Sorted dynamic series")
	return out, nil
}

func filterExtensions(paths, exts []string) []string {
	var out []string
	for _, p := range paths {
		for _, ext := range exts {
			if strings.HasSuffix(p, ext) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// parseFrameIndices returns the frame index found in each base name, -1 when
// absent, and the number of files without one. Indices above MaxFrameIndex
// are rejected.
func parseFrameIndices(files []string, marker *regexp.Regexp) ([]int, int, error) {
	indices := make([]int, len(files))
	missing := 0
	for i, f := range files {
		indices[i] = -1
		m := marker.FindStringSubmatch(filepath.Base(f))
		if m == nil {
			missing++
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n > MaxFrameIndex {
			return nil, 0, fmt.Errorf("frame index %s in %s exceeds %d: %w",
				m[1], f, MaxFrameIndex, models.ErrInvalidMetadata)
		}
		indices[i] = n
	}
	return indices, missing, nil
}
