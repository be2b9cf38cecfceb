package workflow

import (
	"errors"
	"fmt"
)

// Step names a pipeline stage for failure triage.
type Step string

const (
	StepLoad     Step = "load"
	StepDownload Step = "download"
	StepExtract  Step = "extract"
	StepIdentify Step = "identify"
	StepClassify Step = "classify"
	StepPersist  Step = "persist"
)

// StepError is a pipeline failure tagged with the step that produced it.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep returns the step recorded on err, or "" when err carries none.
func FailedStep(err error) Step {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}

func stepError(step Step, err error) error {
	return &StepError{Step: step, Err: err}
}
