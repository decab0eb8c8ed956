package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound       = "not_found"
	CodeCorruptData    = "corrupt_data"
	CodeInvalidRequest = "invalid_request"
	CodeUploadFailed   = "upload_failed"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NotFound(err error) *Error {
	return New(http.StatusNotFound, CodeNotFound, err)
}

func CorruptData(err error) *Error {
	return New(http.StatusInternalServerError, CodeCorruptData, err)
}

func InvalidRequest(err error) *Error {
	return New(http.StatusBadRequest, CodeInvalidRequest, err)
}

// StatusOf maps any error to an HTTP status, defaulting to 500.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// CodeOf maps any error to a machine code, defaulting to "internal".
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	return "internal"
}
