package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Category classifies a feed failure by what should happen next.
type Category int

const (
	// CategoryTransient failures are safe to retry on a later attempt:
	// rate limits, server errors, timeouts.
	CategoryTransient Category = iota

	// CategoryAuthRequired failures mean the user must re-establish the
	// credential; retrying with the stored one cannot succeed.
	CategoryAuthRequired

	// CategoryFatal failures are malformed-request-class programmer
	// errors; retrying is pointless.
	CategoryFatal
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryAuthRequired:
		return "auth_required"
	case CategoryFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// APIError is a non-2xx response from the provider API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (status %d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Message)
}

// authRequiredCodes are the provider's login-required-class error codes.
var authRequiredCodes = map[string]bool{
	"ITEM_LOGIN_REQUIRED": true,
	"INVALID_CREDENTIALS": true,
	"INVALID_API_KEY":     true,
	"ITEM_LOCKED":         true,
	"MFA_NOT_SUPPORTED":   true,
}

// Classify maps a feed failure into a Category. Unknown failures classify as
// transient: an error we cannot identify is cheaper to retry than to
// mislabel as needing user action.
func Classify(err error) Category {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if authRequiredCodes[apiErr.Code] {
			return CategoryAuthRequired
		}
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized,
			apiErr.StatusCode == http.StatusForbidden:
			return CategoryAuthRequired
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= 500:
			return CategoryTransient
		case apiErr.StatusCode >= 400:
			return CategoryFatal
		}
		return CategoryTransient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTransient
	}

	return CategoryTransient
}

// ErrorCode extracts a stable code for persistence on the connection row.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		return apiErr.Code
	}
	return Classify(err).String()
}
