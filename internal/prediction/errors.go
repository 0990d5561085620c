package prediction

import (
	"errors"

	"github.com/trashscanner/predictor/internal/imaging"
	"github.com/trashscanner/predictor/internal/model"
)

var (
	ErrDecode     = imaging.ErrDecode
	ErrPreprocess = imaging.ErrPreprocess
	ErrInference  = model.ErrInference
	// ErrShapeMismatch means the score vector and the label set disagree in
	// length: the model and its labels are from different versions.
	ErrShapeMismatch = errors.New("score vector does not match label set")
)

// Stage identifies a pipeline step.
type Stage int

const (
	StageDecode Stage = iota
	StagePreprocess
	StageInfer
	StageMap
)

func (s Stage) String() string {
	switch s {
	case StageDecode:
		return "decode"
	case StagePreprocess:
		return "preprocess"
	case StageInfer:
		return "infer"
	case StageMap:
		return "map"
	}
	return "unknown"
}

func (s Stage) sentinel() error {
	switch s {
	case StageDecode:
		return ErrDecode
	case StagePreprocess:
		return ErrPreprocess
	case StageInfer:
		return ErrInference
	case StageMap:
		return ErrShapeMismatch
	}
	return nil
}

// StageError reports which pipeline step failed. errors.Is matches it
// against the sentinel for its stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage.String() + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) Is(target error) bool {
	return target != nil && target == e.Stage.sentinel()
}

// ClientFault reports whether err was caused by the submitted image rather
// than by the service.
func ClientFault(err error) bool {
	return errors.Is(err, ErrDecode) || errors.Is(err, ErrPreprocess)
}
