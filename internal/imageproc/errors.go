package imageproc

import (
	"errors"
	"fmt"
)

// Failure kinds. A *ProcessError matches its kind with errors.Is.
var (
	ErrMissingInput      = errors.New("input file does not exist")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrOutputUnwritable  = errors.New("output folder is not writable")
	ErrEmptySequence     = errors.New("animated image has no frames")
	ErrEncodeFailure     = errors.New("failed to encode result image")
	ErrDecodeFailure     = errors.New("failed to decode image")
	ErrInvalidOpacity    = errors.New("opacity must be in (0, 1]")
)

// Stage names the step of ProcessImages that failed.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageClassify  Stage = "classify"
	StagePrepare   Stage = "prepare"
	StageDecode    Stage = "decode"
	StageComposite Stage = "composite"
	StageEncode    Stage = "encode"
)

// ProcessError is the failure value returned by the engine. Path is the file the failure
// relates to (base, overlay or output), so callers can quarantine the right input.
type ProcessError struct {
	Kind  error
	Stage Stage
	Path  string
	Err   error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (stage %s, path %q): %v", e.Kind, e.Stage, e.Path, e.Err)
	}
	return fmt.Sprintf("%s (stage %s, path %q)", e.Kind, e.Stage, e.Path)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

func (e *ProcessError) Is(target error) bool {
	return target == e.Kind
}

func newProcessError(kind error, stage Stage, path string, err error) *ProcessError {
	return &ProcessError{Kind: kind, Stage: stage, Path: path, Err: err}
}
