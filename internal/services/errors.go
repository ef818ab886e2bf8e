package services

import "fmt"

// ValidationError means the request itself is malformed. It is raised
// before any remote call and maps to a 400 at the handler boundary.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// UploadError wraps a blob storage failure. Surfaced as an upstream
// (bad gateway) failure, never retried.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("blob upload failed: %v", e.Err) }
func (e *UploadError) Unwrap() error { return e.Err }

// TranscriptionError wraps a speech backend failure or an empty transcript.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string { return fmt.Sprintf("transcription failed: %v", e.Err) }
func (e *TranscriptionError) Unwrap() error { return e.Err }

// FeedbackGenerationError wraps a generation backend failure or an
// unparseable structured response.
type FeedbackGenerationError struct {
	Err error
}

func (e *FeedbackGenerationError) Error() string {
	return fmt.Sprintf("feedback generation failed: %v", e.Err)
}
func (e *FeedbackGenerationError) Unwrap() error { return e.Err }

// PersistenceError wraps a Turn Log write failure. Logged by the persist
// worker, never surfaced to the caller.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("turn persistence failed: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }
