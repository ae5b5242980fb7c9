package db

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by mutations whose target row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRunActive is returned when an operation needs the project to be idle.
	ErrRunActive = errors.New("a run is in progress for this project")
	// ErrRunNotActive is returned when a run is no longer running.
	ErrRunNotActive = errors.New("run is not running")
	// ErrStageOrder is returned by AcquireRun when the project's stage and
	// status do not allow the requested stage to start.
	ErrStageOrder = errors.New("project cannot start this stage")
)

// RunConflictError is returned by AcquireRun when another run holds the project.
type RunConflictError struct {
	Running *Run
}

func (e *RunConflictError) Error() string {
	if e.Running == nil {
		return ErrRunActive.Error()
	}
	return fmt.Sprintf("stage %d (%s) is already running", e.Running.Stage, e.Running.StageName)
}

func (e *RunConflictError) Unwrap() error {
	return ErrRunActive
}
