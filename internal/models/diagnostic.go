package models

// DiagnosticKind classifies a non-fatal consistency warning.
type DiagnosticKind string

const (
	VaryingOrientation DiagnosticKind = "varying-orientation"
	VaryingResolution  DiagnosticKind = "varying-resolution"
	AxisTie            DiagnosticKind = "axis-tie"
	DuplicatePosition  DiagnosticKind = "duplicate-position"
	PartialFrames      DiagnosticKind = "partial-frames"
	NoFrameIndex       DiagnosticKind = "no-frame-index"
)

// Diagnostic is a condition that did not stop processing but should be
// audited: the result may rest on a documented fallback.
type Diagnostic struct {
	Kind    DiagnosticKind
	Message string
}

func (d Diagnostic) String() string {
	return string(d.Kind) + ": " + d.Message
}
