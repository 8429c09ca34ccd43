package models

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies import failures.
type ErrorKind string

const (
	// ErrorKindValidation covers malformed input and broken preconditions.
	// Never retried; no work has been performed.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindExternalService covers collaborator failures (fetch, vision)
	// after retries are exhausted. The run aborts before any persistence.
	ErrorKindExternalService ErrorKind = "external_service"
	// ErrorKindPersistence covers failures during the catalog replace. The
	// transaction rolls back and the prior snapshot stays live.
	ErrorKindPersistence ErrorKind = "persistence"
	// ErrorKindConcurrentReplace means another replace for the same tenant
	// was already persisting. The caller may retry later.
	ErrorKindConcurrentReplace ErrorKind = "concurrent_replace"
)

// ImportError is the terminal failure of an import run. It records the stage
// reached so callers know how far the run got; the prior catalog is untouched
// in all cases by contract.
type ImportError struct {
	Stage   ImportStage
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("import failed at %s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("import failed at %s: %s", e.Stage, e.Message)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// StatusCode maps the failure kind to the HTTP status surfaced by the API.
func (e *ImportError) StatusCode() int {
	switch e.Kind {
	case ErrorKindValidation:
		return http.StatusBadRequest
	case ErrorKindConcurrentReplace:
		return http.StatusConflict
	case ErrorKindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func NewValidationError(message string) *ImportError {
	return &ImportError{Stage: StageValidating, Kind: ErrorKindValidation, Message: message}
}

func NewExternalServiceError(stage ImportStage, message string, err error) *ImportError {
	return &ImportError{Stage: stage, Kind: ErrorKindExternalService, Message: message, Err: err}
}

func NewPersistenceError(err error) *ImportError {
	return &ImportError{Stage: StagePersisting, Kind: ErrorKindPersistence, Message: "catalog replace failed", Err: err}
}

func NewConcurrentReplaceError() *ImportError {
	return &ImportError{Stage: StagePersisting, Kind: ErrorKindConcurrentReplace, Message: "a catalog replace for this tenant is already in progress"}
}

func IsImportError(err error) bool {
	_, ok := err.(*ImportError)
	return ok
}
