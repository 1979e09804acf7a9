package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when the target row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrReadOnly is returned for writes to a read-only table.
	ErrReadOnly = errors.New("table is read-only")

	// ErrUnknownTable is returned for tables missing from the registry.
	ErrUnknownTable = errors.New("unknown table")

	// ErrInvalidFields wraps field and filter validation failures.
	ErrInvalidFields = errors.New("invalid fields")

	// ErrSkipped marks a cascade step that was not attempted because an
	// earlier step failed.
	ErrSkipped = errors.New("skipped after earlier failure")
)

// StepError is one failed step of a multi-step mutation.
type StepError struct {
	Table string
	ID    int64
	Err   error
}

func (e StepError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Table, e.ID, e.Err)
}

func (e StepError) Unwrap() error {
	return e.Err
}

// MutationError reports the failed steps of a best-effort multi-step
// mutation. Steps that succeeded are not rolled back.
type MutationError struct {
	Op    string
	Table string
	ID    int64
	Steps []StepError
}

func (e *MutationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %d: %d step(s) failed", e.Op, e.Table, e.ID, len(e.Steps))
	for _, s := range e.Steps {
		b.WriteString("; ")
		b.WriteString(s.Error())
	}
	return b.String()
}

// Unwrap exposes every step error to errors.Is and errors.As.
func (e *MutationError) Unwrap() []error {
	errs := make([]error, len(e.Steps))
	for i, s := range e.Steps {
		errs[i] = s
	}
	return errs
}

// IsMutationError checks if err is a MutationError.
func IsMutationError(err error) bool {
	var me *MutationError
	return errors.As(err, &me)
}
