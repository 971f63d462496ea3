package common

import "errors"

// ErrNotFound is the base sentinel for missing records. Storage errors wrap
// it so handlers can match without depending on the storage package.
var ErrNotFound = errors.New("not found")

// AppError carries an error code, a client-facing message and the HTTP
// status it should render as.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError builds an AppError wrapping err, which may be nil.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}
