package media

import (
	"errors"
	"fmt"
)

// Stage names the step of a save at which it failed.
type Stage string

const (
	StageSource   Stage = "source"
	StageAllocate Stage = "allocate"
	StageOpen     Stage = "open"
	StageCopy     Stage = "copy"
	StageFinalize Stage = "finalize"
)

// ErrNoHandle is reported when the registry declines to allocate an entry
// without giving a reason.
var ErrNoHandle = errors.New("registry returned no handle")

// SaveError is returned by every failed save.
type SaveError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %s: %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// FailedAt reports whether err is a SaveError raised at the given stage.
func FailedAt(err error, stage Stage) bool {
	var saveErr *SaveError
	return errors.As(err, &saveErr) && saveErr.Stage == stage
}
