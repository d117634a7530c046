// Package huberrors provides the standardized error model for hubd.
//
// Every fault the correlator can raise maps to exactly one of the Code
// constants below; ToResponse renders it as a stable JSON shape for the
// HTTP surface, and StatusCode carries the matching HTTP status for
// handlers that report over HTTP (the duplex transport itself never
// needs a status code - Invoke returns a plain *HubError there).
package huberrors

import (
	"fmt"
	"net/http"
)

// HubError is a standardized application error with HTTP context.
type HubError struct {
	// Code is a machine-readable identifier, one of the Code* constants.
	Code string `json:"code"`

	// Message is human-readable and safe to surface to a caller.
	Message string `json:"message"`

	// Details carries additional context, omitted unless set.
	Details string `json:"details,omitempty"`

	// StatusCode is the HTTP status for handlers that report over HTTP.
	StatusCode int `json:"-"`
}

func (e *HubError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse is the JSON error response shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// The eight error kinds the correlator surfaces.
const (
	CodeOverloaded   = "OVERLOADED"
	CodeNoTarget     = "NO_TARGET"
	CodeTimeout      = "TIMEOUT"
	CodeCancelled    = "CANCELLED"
	CodeBlobMissing  = "BLOB_MISSING"
	CodeDecodeFailed = "DECODE_FAILED"
	CodeClientError  = "CLIENT_ERROR"
	CodeStoreFailure = "STORE_FAILURE"
)

// New creates a HubError for code with a message.
func New(code string, message string) *HubError {
	return &HubError{
		Code:       code,
		Message:    message,
		StatusCode: statusForCode(code),
	}
}

// NewWithDetails creates a HubError carrying extra debug detail.
func NewWithDetails(code string, message string, details string) *HubError {
	return &HubError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusForCode(code),
	}
}

// Wrap attaches err's message as Details on a new HubError.
func Wrap(code string, message string, err error) *HubError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewWithDetails(code, message, details)
}

func statusForCode(code string) int {
	switch code {
	case CodeOverloaded:
		return http.StatusServiceUnavailable
	case CodeNoTarget:
		return http.StatusNotFound
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeCancelled:
		return http.StatusRequestTimeout
	case CodeBlobMissing:
		return http.StatusNotFound
	case CodeDecodeFailed:
		return http.StatusUnprocessableEntity
	case CodeClientError:
		return http.StatusBadGateway
	case CodeStoreFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ToResponse converts a HubError to its wire ErrorResponse shape.
func (e *HubError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Code,
		Message: e.Message,
		Code:    e.Code,
		Details: e.Details,
	}
}

// Constructors for each error kind.

func Overloaded() *HubError {
	return New(CodeOverloaded, "admission permit not acquired in time")
}

func NoTarget(message string) *HubError {
	return New(CodeNoTarget, message)
}

func Timeout() *HubError {
	return New(CodeTimeout, "no reply received before deadline")
}

func Cancelled() *HubError {
	return New(CodeCancelled, "caller cancelled the request")
}

func BlobMissing(path string) *HubError {
	return New(CodeBlobMissing, fmt.Sprintf("blob not found: %s", path))
}

func DecodeFailed(err error) *HubError {
	return Wrap(CodeDecodeFailed, "response payload did not match the requested type", err)
}

func ClientError(message string) *HubError {
	return New(CodeClientError, message)
}

func StoreFailure(err error) *HubError {
	return Wrap(CodeStoreFailure, "durable registry store rejected a write", err)
}
