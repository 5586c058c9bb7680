package models

import (
	"errors"
	"fmt"
	"strings"
)

// Validation failures: malformed or missing metadata, never retried.
var (
	ErrEmptySeries        = errors.New("empty series")
	ErrMissingMetadata    = errors.New("missing metadata")
	ErrInvalidMetadata    = errors.New("invalid metadata")
	ErrInsufficientSlices = errors.New("insufficient slices for affine")
	ErrInconsistentPixels = errors.New("inconsistent pixel array dimensions")
	ErrAmbiguousAxis      = errors.New("ambiguous through-plane axis")
	ErrUnsupportedDims    = errors.New("unsupported dimensionality")
	ErrDuplicateFrame     = errors.New("duplicate frame index")
)

// I/O failures on local files.
var (
	ErrUnreadableSlice  = errors.New("unreadable slice")
	ErrUnreadableVolume = errors.New("unreadable volume")
)

// ErrShapeMismatch is returned when the volumes of a multi-file series differ.
var ErrShapeMismatch = errors.New("shape/dtype mismatch")

var validationKinds = []error{
	ErrEmptySeries, ErrMissingMetadata, ErrInvalidMetadata, ErrInsufficientSlices,
	ErrInconsistentPixels, ErrAmbiguousAxis, ErrUnsupportedDims, ErrDuplicateFrame,
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	for _, kind := range validationKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsIO reports whether err stems from an unreadable file.
func IsIO(err error) bool {
	return errors.Is(err, ErrUnreadableSlice) || errors.Is(err, ErrUnreadableVolume)
}

// SliceError reports a failure tied to one slice of a collection.
type SliceError struct {
	// Index is the position of the slice in the input collection, -1 if unknown.
	Index int
	Path  string
	Field string
	Kind  error
	Err   error
}

func (e *SliceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Field != "" {
		fmt.Fprintf(&b, " %q", e.Field)
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, " in slice %d", e.Index)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is.
func (e *SliceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ShapeMismatchError reports a volume whose shape or datatype differs from
// the first placed volume of a series.
type ShapeMismatchError struct {
	Path      string
	WantShape []int
	GotShape  []int
	WantType  string
	GotType   string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%v: %s has shape %v (%s), expected %v (%s)",
		ErrShapeMismatch, e.Path, e.GotShape, e.GotType, e.WantShape, e.WantType)
}

func (e *ShapeMismatchError) Unwrap() error { return ErrShapeMismatch }
