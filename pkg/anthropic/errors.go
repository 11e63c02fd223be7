package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// APIError is a non-2xx response from the Anthropic API, translated out of
// the SDK's error type so callers can classify failures without depending on
// SDK internals.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anthropic: api error %d: %s", e.StatusCode, e.Message)
}

// wrapSDKError converts SDK API errors into *APIError and leaves transport
// errors untouched.
func wrapSDKError(err error) error {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		return &APIError{StatusCode: apierr.StatusCode, Message: apierr.RawJSON()}
	}
	return err
}

// IsRateLimited reports whether err is an API rate-limit (429) or
// overloaded (529) response.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode == 529
	}
	return false
}

// IsRequestTooLarge reports whether err is a rejection for a prompt that
// exceeds the model's context window. The API reports this as a 400
// invalid_request_error.
func IsRequestTooLarge(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "prompt is too long") ||
		strings.Contains(msg, "context length") ||
		strings.Contains(msg, "maximum context")
}

// IsTimeout reports whether err is a connect or round-trip timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
