package runtime

import (
	"errors"
	"fmt"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageValidate  Stage = "validate"
	StageHooks     Stage = "hooks"
	StageCommit    Stage = "commit"
)

var (
	// ErrIDExhausted is returned when every generated id collided.
	ErrIDExhausted = errors.New("could not allocate a free id")

	// ErrStorageUnavailable is returned when a commit has no store to write to.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// FaultError is a system fault raised by a stage. It never carries
// user-facing field problems.
type FaultError struct {
	Stage Stage
	Err   error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

func fault(stage Stage, err error) error {
	return &FaultError{Stage: stage, Err: err}
}
