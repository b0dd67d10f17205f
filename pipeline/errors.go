package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPipeline is wrapped by every graph validation error.
var ErrInvalidPipeline = errors.New("invalid pipeline")

// DatasetProducer names the producer of initial slots in errors.
const DatasetProducer = "(dataset)"

// Slot kinds.
const (
	KindData   = "data"
	KindRecord = "record"
	KindTask   = "task"
)

// DuplicateOutputError reports two producers for one slot, or two tasks
// with one name (Kind "task").
type DuplicateOutputError struct {
	Kind          string
	Slot          string
	First, Second string
}

func (e *DuplicateOutputError) Error() string {
	if e.Kind == KindTask {
		return fmt.Sprintf("%s: duplicate task name %q", ErrInvalidPipeline, e.Slot)
	}
	return fmt.Sprintf("%s: %s slot %q produced by both %s and %s", ErrInvalidPipeline, e.Kind, e.Slot, e.First, e.Second)
}

func (e *DuplicateOutputError) Unwrap() error { return ErrInvalidPipeline }

// UnsatisfiedRequirementError reports a required slot nobody produces.
type UnsatisfiedRequirementError struct {
	Task string
	Slot string
	Kind string
}

func (e *UnsatisfiedRequirementError) Error() string {
	return fmt.Sprintf("%s: task %q requires %s slot %q, which no dataset or task produces", ErrInvalidPipeline, e.Task, e.Kind, e.Slot)
}

func (e *UnsatisfiedRequirementError) Unwrap() error { return ErrInvalidPipeline }

// CyclicPipelineError reports a dependency cycle. Path starts and ends with
// the same task.
type CyclicPipelineError struct {
	Path []string
}

func (e *CyclicPipelineError) Error() string {
	return fmt.Sprintf("%s: cycle: %s", ErrInvalidPipeline, strings.Join(e.Path, " -> "))
}

func (e *CyclicPipelineError) Unwrap() error { return ErrInvalidPipeline }

// UnknownTaskError reports a task type missing from the registry.
type UnknownTaskError struct {
	Type string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task type %q", e.Type)
}

// OutputContractViolationError reports task output that does not match the
// declared output contract.
type OutputContractViolationError struct {
	Task       string
	Unexpected []string
	Missing    []string
	Reason     string
}

func (e *OutputContractViolationError) Error() string {
	var parts []string
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected "+strings.Join(e.Unexpected, ", "))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	return fmt.Sprintf("task %q broke its output contract: %s", e.Task, strings.Join(parts, "; "))
}

// InsufficientObservationsError is returned by a task that has too little
// valid data to produce anything. The executor records empty results for
// the task's record outputs instead of failing the pixel.
type InsufficientObservationsError struct {
	Task string
	Err  error
}

func (e *InsufficientObservationsError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("task %q: insufficient observations", e.Task)
	}
	return fmt.Sprintf("task %q: insufficient observations: %v", e.Task, e.Err)
}

func (e *InsufficientObservationsError) Unwrap() error { return e.Err }

// IsInsufficient reports whether err carries an InsufficientObservationsError.
func IsInsufficient(err error) bool {
	return errors.As(err, new(*InsufficientObservationsError))
}

// TaskError is a pixel failure attributed to one task.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string { return fmt.Sprintf("task %q: %v", e.Task, e.Err) }

func (e *TaskError) Unwrap() error { return e.Err }

// FailedTask returns the task a pixel error is attributed to, or "" when
// the failure happened outside any task.
func FailedTask(err error) string {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Task
	}
	return ""
}
