package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/content-writer/internal/db"
)

var (
	// ErrProjectNotFound is returned when the project does not exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrRunNotFound is returned when the run does not exist for the project.
	ErrRunNotFound = errors.New("run not found")
	// ErrArtifactNotFound is returned when the artifact does not exist for the project.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrInvalidStage is returned for stage numbers outside 1..5.
	ErrInvalidStage = errors.New("invalid stage")
	// ErrBusy is returned by StartStage when every background worker is taken.
	ErrBusy = errors.New("too many background runs, try again later")
)

// PreconditionError is returned when an operation cannot start. Nothing has
// been written when it is returned.
type PreconditionError struct {
	Stage   int
	Missing []string
	Reason  string
}

func (e *PreconditionError) Error() string {
	var b strings.Builder
	if e.Stage > 0 {
		fmt.Fprintf(&b, "stage %d cannot run", e.Stage)
	} else {
		b.WriteString("precondition failed")
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	return b.String()
}

// ConflictError is returned when another run holds the project.
type ConflictError struct {
	ProjectID    uuid.UUID
	RunID        uuid.UUID
	RunningStage int
	RunningLabel string
}

func (e *ConflictError) Error() string {
	if e.RunningStage == 0 {
		return "a stage is already running; stop it first"
	}
	return fmt.Sprintf("stage %d (%s) is already running; stop it first", e.RunningStage, e.RunningLabel)
}

// Unwrap lets callers match the store sentinel.
func (e *ConflictError) Unwrap() error {
	return db.ErrRunActive
}

// GeneratorError is a failed generator call or an unusable result. It is
// recorded on the run, the project and for the content stage on the section.
type GeneratorError struct {
	Stage   int
	Section *int
	Message string
	Cause   error
}

func (e *GeneratorError) Error() string {
	prefix := fmt.Sprintf("stage %d", e.Stage)
	if e.Section != nil {
		prefix += fmt.Sprintf(" section %d", *e.Section)
	}
	msg := prefix + " failed: " + e.Message
	if e.Cause != nil && !strings.Contains(e.Message, e.Cause.Error()) {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *GeneratorError) Unwrap() error {
	return e.Cause
}

// ConfigError is returned when a stage's workflow has no binding.
type ConfigError struct {
	Stage    int
	Workflow string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("stage %d: workflow %q is not configured", e.Stage, e.Workflow)
}

func conflictFrom(projectID uuid.UUID, err error) error {
	var rc *db.RunConflictError
	if !errors.As(err, &rc) {
		return err
	}
	ce := &ConflictError{ProjectID: projectID}
	if rc.Running != nil {
		ce.RunID = rc.Running.ID
		ce.RunningStage = rc.Running.Stage
		ce.RunningLabel = rc.Running.StageName
	}
	return ce
}
