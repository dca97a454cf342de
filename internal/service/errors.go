package service

import "fmt"

// Error codes returned to callers. A failed run carries one of these; a
// completed-but-flagged run returns a normal report with RequiresReview
// set, which callers must distinguish from failure.
const (
	CodeNotFound     = "not_found"
	CodeInvalidInput = "invalid_input"
	CodeUploadFailed = "upload_failed"
	CodeProcessing   = "processing_failed"
)

// Error is a service failure with a machine-readable code.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func notFound(resource, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

func invalidInput(msg string, err error) *Error {
	return &Error{Code: CodeInvalidInput, Message: msg, Err: err}
}

func uploadFailed(msg string, err error) *Error {
	return &Error{Code: CodeUploadFailed, Message: msg, Err: err}
}

func processingFailed(msg string, err error) *Error {
	return &Error{Code: CodeProcessing, Message: msg, Err: err}
}
