package dto

import (
	"net/http"
	"strings"
)

// Error codes returned in the error envelope. Domain errors keep their own
// code on the wire, so most of these match shared.DomainError codes.

// General error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
)

// Input error codes
const (
	// ErrCodeValidation is used when request binding or validation fails
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeInvalidInput is used for semantically invalid input
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeInvalidTripDraft is used when a draft has no destination
	ErrCodeInvalidTripDraft = "INVALID_TRIP_DRAFT"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeTokenExpired = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "INVALID_TOKEN"
	ErrCodeForbidden    = "FORBIDDEN"
	// ErrCodeTenantMismatch is used when the request host or X-Agency-ID names another agency
	ErrCodeTenantMismatch = "TENANT_MISMATCH"
)

// Resource error codes
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeDuplicateRequest = "DUPLICATE_REQUEST"
)

// Quota error codes
const (
	// ErrCodeQuotaDenied is the expected refusal when a limit is reached
	ErrCodeQuotaDenied = "QUOTA_DENIED"
	// ErrCodeQuotaCheckFailed is a transient failure; the client may retry
	ErrCodeQuotaCheckFailed = "QUOTA_CHECK_FAILED"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
)

// Tenant credential error codes
const (
	// ErrCodeCredentialNotConfigured means the agency never stored the credential
	ErrCodeCredentialNotConfigured = "CREDENTIAL_NOT_CONFIGURED"
	// ErrCodeTenantConfigUnreadable means a stored credential failed to decrypt
	ErrCodeTenantConfigUnreadable = "TENANT_CONFIG_UNREADABLE"
)

// Upstream error codes
const (
	ErrCodeGeneratorFailed      = "GENERATOR_FAILED"
	ErrCodeGeneratorKeyRejected = "GENERATOR_KEY_REJECTED"
	ErrCodePublicationFailed    = "PUBLICATION_FAILED"
	ErrCodePaymentProvider      = "PAYMENT_PROVIDER_ERROR"
	ErrCodeMailDelivery         = "MAIL_DELIVERY_FAILED"
	ErrCodeRenderFailed         = "RENDER_FAILED"
	ErrCodeRenderTimeout        = "RENDER_TIMEOUT"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	// Input errors -> 400 Bad Request
	ErrCodeValidation:       http.StatusBadRequest,
	ErrCodeInvalidInput:     http.StatusBadRequest,
	ErrCodeInvalidTripDraft: http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized:   http.StatusUnauthorized,
	ErrCodeTokenExpired:   http.StatusUnauthorized,
	ErrCodeTokenInvalid:   http.StatusUnauthorized,
	ErrCodeForbidden:      http.StatusForbidden,
	ErrCodeTenantMismatch: http.StatusForbidden,

	// Resource errors
	ErrCodeNotFound:         http.StatusNotFound,
	ErrCodeDuplicateRequest: http.StatusConflict,

	// Quota
	ErrCodeQuotaDenied:      http.StatusTooManyRequests,
	ErrCodeQuotaCheckFailed: http.StatusServiceUnavailable,
	ErrCodeRateLimited:      http.StatusTooManyRequests,

	// Credentials: missing is the agency's to fix, unreadable is ours
	ErrCodeCredentialNotConfigured: http.StatusUnprocessableEntity,
	ErrCodeTenantConfigUnreadable:  http.StatusBadGateway,

	// Upstream failures -> 502 Bad Gateway
	ErrCodeGeneratorFailed:      http.StatusBadGateway,
	ErrCodeGeneratorKeyRejected: http.StatusUnprocessableEntity,
	ErrCodePublicationFailed:    http.StatusBadGateway,
	ErrCodePaymentProvider:      http.StatusBadGateway,
	ErrCodeMailDelivery:         http.StatusBadGateway,
	ErrCodeRenderFailed:         http.StatusBadGateway,
	ErrCodeRenderTimeout:        http.StatusGatewayTimeout,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unlisted INVALID_* domain codes are input errors; anything else is 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	if strings.HasPrefix(code, "INVALID_") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether a client may repeat the same request unchanged
func IsRetryable(code string) bool {
	switch code {
	case ErrCodeQuotaCheckFailed, ErrCodeRenderTimeout:
		return true
	}
	return false
}
