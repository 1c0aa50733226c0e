package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidRoute  ErrorCode = "validation_invalid_route"
	ErrCodeValidationInvalidDate   ErrorCode = "validation_invalid_date"
	ErrCodeValidationInvalidClass  ErrorCode = "validation_invalid_travel_class"
	ErrCodeValidationMaxResults    ErrorCode = "validation_max_results_out_of_range"
	ErrCodeValidationMissingSource ErrorCode = "validation_missing_provider_tag"

	// Auth (401)
	ErrCodeAuthTokenMissing     ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid     ErrorCode = "auth_token_invalid"
	ErrCodeAuthTokenExpired     ErrorCode = "auth_token_expired"
	ErrCodeAuthInvalidCreds     ErrorCode = "auth_invalid_credentials"
	ErrCodeAuthUserNotFound     ErrorCode = "auth_user_not_found"
	ErrCodeAuthAccountSuspended ErrorCode = "auth_account_suspended"
	ErrCodeAuthGuestForbidden   ErrorCode = "auth_guest_not_permitted"

	// Limits (403/429)
	ErrCodeLimitBookmarks   ErrorCode = "limit_bookmarks_exceeded"
	ErrCodeLimitSeatmaps    ErrorCode = "limit_seatmap_calls_exceeded"
	ErrCodeLimitGuestViews  ErrorCode = "limit_guest_views_exceeded"
	ErrCodeLimitNotIncluded ErrorCode = "limit_capability_not_in_tier"

	// Not Found / Gone (404/410)
	ErrCodeNotFoundBookmark ErrorCode = "not_found_bookmark"
	ErrCodeNotFoundUser     ErrorCode = "not_found_user"
	ErrCodeBookmarkExpired  ErrorCode = "bookmark_expired"

	// Conflict (409)
	ErrCodeConflictEmail         ErrorCode = "conflict_email_exists"
	ErrCodeConflictTierDowngrade ErrorCode = "conflict_tier_cannot_downgrade"

	// Tier catalog (503)
	ErrCodeTierCatalogEmpty ErrorCode = "tier_catalog_empty"

	// Provider/upstream (502/503)
	ErrCodeProviderUnavailable ErrorCode = "provider_unavailable"
	ErrCodeProviderAuth        ErrorCode = "provider_auth_failed"
	ErrCodeProviderAllFailed   ErrorCode = "provider_all_sources_failed"
	ErrCodeSeatmapUnavailable  ErrorCode = "seatmap_temporarily_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"

	// Internal (500)
	ErrCodeInternalStore      ErrorCode = "internal_store_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case s == string(ErrCodeAuthAccountSuspended),
		s == string(ErrCodeAuthGuestForbidden):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "limit_"):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case s == string(ErrCodeBookmarkExpired):
		return http.StatusGone // 410
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case s == string(ErrCodeTierCatalogEmpty),
		s == string(ErrCodeSeatmapUnavailable):
		return http.StatusServiceUnavailable // 503
	case strings.HasPrefix(s, "provider_"), strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// Retryable reports whether the condition behind this code is transient from
// the caller's point of view. Bookmark replay failures are retryable (the
// snapshot proves a seat map existed); auth and limit rejections are not.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrCodeSeatmapUnavailable, ErrCodeProviderUnavailable,
		ErrCodeProviderAllFailed, ErrCodeUpstreamRateLimited:
		return true
	default:
		return false
	}
}

// AppError is the standard application error type used throughout the service.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
