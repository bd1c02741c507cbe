package domain

import "errors"

// Common domain errors
var (
	// Dataset errors
	ErrEmptyDataset    = errors.New("dataset is empty")
	ErrEmptyVocabulary = errors.New("label vocabulary is empty")
	ErrDuplicateLabel  = errors.New("label vocabulary contains duplicates")
	ErrInvalidRow      = errors.New("dataset row is missing a required field")
	ErrUnknownLabel    = errors.New("dataset label is not in the vocabulary")
	ErrMissingColumn   = errors.New("dataset column not found")

	// Prompt pool errors
	ErrEmptyPool = errors.New("prompt pool is empty")

	// LLM errors
	ErrLLMUnavailable   = errors.New("LLM service unavailable")
	ErrLLMRequestFailed = errors.New("LLM request failed")
	ErrLLMEmptyResponse = errors.New("LLM returned no choices")

	// Evolution errors
	ErrRunNotFound   = errors.New("evolution run not found")
	ErrNoIterations  = errors.New("run has no iteration records")
	ErrInvalidConfig = errors.New("invalid evolution configuration")

	// Validation errors
	ErrInvalidID    = errors.New("invalid ID format")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")
)

// DomainError wraps a domain error with additional context
type DomainError struct {
	Err     error
	Message string
	Code    string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NewDomainError(err error, message string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
	}
}

func NewDomainErrorWithCode(err error, message, code string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}
