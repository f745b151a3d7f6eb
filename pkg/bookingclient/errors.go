package bookingclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"stay-booking/pkg/utils"
)

// APIError is a failed call. StatusCode is zero when the request never got
// an HTTP response; Err then holds the transport error.
type APIError struct {
	StatusCode   int
	Code         string
	Message      string
	BlockedDates []string
	Err          error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("booking api: %v", e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("booking api: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("booking api: %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether resending the same request may succeed.
// Transport failures count unless the caller cancelled the request.
func (e *APIError) Retryable() bool {
	if e.StatusCode == 0 {
		return e.Err != nil && !errors.Is(e.Err, context.Canceled)
	}
	switch e.Code {
	case utils.CodeGatewayUnavailable, utils.CodeRequestInProgress, utils.CodeRateLimited:
		return true
	}
	return e.StatusCode >= 500 ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests
}

// DatesUnavailable reports whether the stay lost its nights to another
// booking; the guest has to pick new dates.
func (e *APIError) DatesUnavailable() bool {
	return e.Code == utils.CodeDatesUnavailable
}

// IsTimeout reports whether err is a transport or context timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsRetryable reports whether err is an *APIError worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}
