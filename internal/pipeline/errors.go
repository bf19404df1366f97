package pipeline

import (
	"errors"
	"fmt"
)

// Usage errors, raised before the target file is even opened.
var (
	ErrNoPath        = errors.New("no target path provided")
	ErrOddValueCount = errors.New("values must be provided in [ORIGINAL REPLACEMENT] pairs")
	ErrNoValues      = errors.New("no patch data provided")
)

// Stage identifies the pipeline stage an error originated from.
type Stage int

const (
	StageGuard Stage = iota
	StageOwnership
	StageBackup
	StagePatch
	StageReconcile
)

func (s Stage) String() string {
	switch s {
	case StageGuard:
		return "guard"
	case StageOwnership:
		return "ownership"
	case StageBackup:
		return "backup"
	case StagePatch:
		return "patch"
	case StageReconcile:
		return "reconcile"
	}
	return "unknown"
}

// StageError wraps a failure with the stage it occurred in. Every stage is
// a hard gate: a StageError means no later stage ran.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Process exit codes. Completed runs exit with the substitution count
// instead; these negative codes mark runs that stopped short.
const (
	ExitNoPath        = -2
	ExitOddValueCount = -3
	ExitNoValues      = -4
	ExitAuthorization = -5
	ExitOwnership     = -6
	ExitBackup        = -7
	ExitReconcile     = -8
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch {
	case errors.Is(err, ErrNoPath):
		return ExitNoPath
	case errors.Is(err, ErrOddValueCount):
		return ExitOddValueCount
	case errors.Is(err, ErrNoValues):
		return ExitNoValues
	}

	var se *StageError
	if errors.As(err, &se) {
		switch se.Stage {
		case StageGuard:
			return ExitAuthorization
		case StageOwnership:
			return ExitOwnership
		case StageBackup:
			return ExitBackup
		}
	}
	return ExitReconcile
}
