package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	CodeUploadFailed     = "upload_failed"
	CodeFileNotFound     = "file_not_found"
	CodeInvalidRequest   = "invalid_request"
	CodeExtractionFailed = "extraction_failed"
	CodeGenerationFailed = "generation_failed"
	CodeExportFailed     = "export_failed"
	CodeRequestTimeout   = "request_timeout"
	CodeInternal         = "internal_error"
)

type Error struct {
	Status int
	Code   string
	Err    error
	// File names the user-visible file the failure concerns, if any.
	File string
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

// WithFile records the user-visible file name the error concerns.
func (e *Error) WithFile(name string) *Error {
	e.File = name
	return e
}

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Upload(err error) *Error {
	return New(http.StatusInternalServerError, CodeUploadFailed, err)
}

func NotFound(format string, args ...any) *Error {
	return New(http.StatusNotFound, CodeFileNotFound, fmt.Errorf(format, args...))
}

func Invalid(format string, args ...any) *Error {
	return New(http.StatusBadRequest, CodeInvalidRequest, fmt.Errorf(format, args...))
}

func Extraction(err error) *Error {
	return New(http.StatusInternalServerError, CodeExtractionFailed, err)
}

// Generation wraps an LLM failure. Deadline expiry becomes a Timeout instead.
func Generation(status int, err error) *Error {
	if IsDeadline(err) {
		return Timeout(err)
	}
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return New(status, CodeGenerationFailed, err)
}

func Export(err error) *Error {
	return New(http.StatusInternalServerError, CodeExportFailed, err)
}

func Timeout(err error) *Error {
	return New(http.StatusGatewayTimeout, CodeRequestTimeout, err)
}

// From returns err as an *Error, classifying unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if IsDeadline(err) {
		return Timeout(err)
	}
	return New(http.StatusInternalServerError, CodeInternal, err)
}

// IsDeadline reports whether err stems from an expired deadline.
func IsDeadline(err error) bool {
	if err == nil {
		return false
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "context deadline exceeded")
}
