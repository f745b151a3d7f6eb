package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrAuth       = errors.New("gateway authentication failed")
	ErrOrder      = errors.New("gateway order creation failed")
	ErrPaymentKey = errors.New("gateway payment key creation failed")
	ErrRefund     = errors.New("gateway refund failed")
)

// Error describes a failed gateway call. Kind is one of the sentinel errors
// above; Err is the underlying transport or decoding error, if any.
type Error struct {
	Op         string
	StatusCode int
	Body       string
	Kind       error
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsGatewayError reports whether err came from any gateway call.
func IsGatewayError(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr)
}
