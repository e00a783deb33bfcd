package retarget

import "errors"

// Precondition errors. Each one is fatal to a single build or retarget call.
var (
	ErrEmptyReference       = errors.New("reference mesh has no triangles")
	ErrTopologyMismatch     = errors.New("deformed reference does not match weight table topology")
	ErrDependentMismatch    = errors.New("dependent mesh does not match weight table")
	ErrCorrectionOutOfRange = errors.New("correction vertex out of range")
	ErrUnknownMode          = errors.New("unknown deformation mode")
)
