// Package errors provides structured domain errors with stable codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeInvalidCoordinate Code = "INVALID_COORDINATE"

	// Session errors
	CodeNotFound            Code = "NOT_FOUND"
	CodeActiveSessionExists Code = "ACTIVE_SESSION_EXISTS"
	CodeSessionNotPending   Code = "SESSION_NOT_PENDING"
	CodeEntropyExhausted    Code = "ENTROPY_EXHAUSTED"

	// Scan errors
	CodeInvalidToken   Code = "INVALID_TOKEN"
	CodeSessionExpired Code = "SESSION_EXPIRED"
	CodeOutOfRange     Code = "OUT_OF_RANGE"
	CodeDuplicateScan  Code = "DUPLICATE_SCAN"
)

// HTTPStatus maps a domain code to the HTTP status returned to callers.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument, CodeInvalidCoordinate:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeActiveSessionExists, CodeSessionNotPending, CodeDuplicateScan:
		return http.StatusConflict
	case CodeInvalidToken:
		return http.StatusUnauthorized
	case CodeSessionExpired:
		return http.StatusGone
	case CodeOutOfRange:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
