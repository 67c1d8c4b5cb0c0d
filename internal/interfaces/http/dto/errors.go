package dto

import "net/http"

// Error codes surfaced by the API. Domain errors carry these codes
// directly; the HTTP layer only maps them to status codes.
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeValidation is used when LLM-generated or user SQL fails validation
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeParse is used when a file cannot be parsed
	ErrCodeParse = "PARSE_ERROR"
	// ErrCodeUnavailable is used when a required backing service is down
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
)

// errorCodeHTTPStatus maps error codes to HTTP status codes. Codes come
// from the domain layer (shared.DomainError) and from this package.
var errorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:     http.StatusBadRequest,
	ErrCodeInvalidInput:   http.StatusBadRequest,
	ErrCodeParse:          http.StatusBadRequest,
	"INVALID_MAPPING":     http.StatusBadRequest,
	"INVALID_STRATEGY":    http.StatusBadRequest,
	"INVALID_TABLE_NAME":  http.StatusBadRequest,
	"INVALID_FILE_NAME":   http.StatusBadRequest,
	"INVALID_STORAGE_KEY": http.StatusBadRequest,
	"INVALID_UPLOAD":      http.StatusBadRequest,

	// Resource errors
	ErrCodeNotFound:    http.StatusNotFound,
	"UPLOAD_NOT_FOUND": http.StatusNotFound,

	// Conflicts -> 409
	"ALREADY_EXISTS":     http.StatusConflict,
	"DUPLICATE_FILE":     http.StatusConflict,
	"IMPORT_IN_PROGRESS": http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	"INVALID_STATE":    http.StatusUnprocessableEntity,
	ErrCodeValidation:  http.StatusUnprocessableEntity,
	"IMPORT_CANCELLED": http.StatusUnprocessableEntity,

	// Protected system tables -> 403
	"PROTECTED_TABLE": http.StatusForbidden,

	// Size and time limits
	"PAYLOAD_TOO_LARGE": http.StatusRequestEntityTooLarge,
	"TIMEOUT":           http.StatusGatewayTimeout,
	ErrCodeUnavailable:  http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
