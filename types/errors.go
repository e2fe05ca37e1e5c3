package types

import (
	"errors"
	"fmt"
)

// PaymentError is an error carrying a payment error kind. The client and the
// chain-facing paths return it so callers can branch on the kind instead of
// matching error strings.
type PaymentError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *PaymentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Cause
}

// NewPaymentError creates a new PaymentError.
func NewPaymentError(kind ErrorKind, message string, cause error) *PaymentError {
	return &PaymentError{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the error kind of err, or the empty kind if err is not a
// PaymentError.
func KindOf(err error) ErrorKind {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
