// Package domain holds the core types shared across the RAG subsystem:
// registry entities, retrieval results, and the error taxonomy components
// translate external failures into at their public boundary.
package domain

import "fmt"

// InputError represents a caller mistake: a malformed request or an invalid
// configuration. Never retried.
type InputError struct {
	Msg string
	Err error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input error: %s: %v", e.Msg, e.Err)
	}
	return "input error: " + e.Msg
}

func (e *InputError) Unwrap() error { return e.Err }

func NewInputError(msg string, err error) error {
	return &InputError{Msg: msg, Err: err}
}

// DependencyError wraps a failure from an external collaborator: a vector
// store, LLM, model, or database call. Callers are expected to degrade
// gracefully rather than propagate it as a hard failure.
type DependencyError struct {
	Dependency string
	Msg        string
	Err        error
}

func (e *DependencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dependency error (%s): %s: %v", e.Dependency, e.Msg, e.Err)
	}
	return fmt.Sprintf("dependency error (%s): %s", e.Dependency, e.Msg)
}

func (e *DependencyError) Unwrap() error { return e.Err }

func NewDependencyError(dependency, msg string, err error) error {
	return &DependencyError{Dependency: dependency, Msg: msg, Err: err}
}

// StateError represents an operation attempted from an invalid component
// state: bridge not initialized, a fine-tune already running for a model
// type. No retry helps.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string { return "state error: " + e.Msg }

func NewStateError(msg string) error {
	return &StateError{Msg: msg}
}

// StorageError represents a registry read/write failure. Surfaced to the
// caller; partial writes are never allowed to occur.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// TransientError represents a timeout or other transitory failure that a
// caller absorbs locally and counts in stats rather than propagates.
type TransientError struct {
	Msg string
	Err error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient error: %s: %v", e.Msg, e.Err)
	}
	return "transient error: " + e.Msg
}

func (e *TransientError) Unwrap() error { return e.Err }

func NewTransientError(msg string, err error) error {
	return &TransientError{Msg: msg, Err: err}
}
