package pipeline

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned by TryRun when another run holds the lock.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// StageError wraps the failure of one stage. The underlying error keeps its
// kind (GenerationError, RenderError, ...) and is reachable with errors.As.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage name carried by err, or "" when err did not
// come from a stage.
func FailedStage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
