package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestPaymentError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewPaymentError(ErrorKindChainUnavailable, "rpc call failed", cause)

	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if KindOf(err) != ErrorKindChainUnavailable {
		t.Errorf("kind is %v", KindOf(err))
	}

	// The kind survives wrapping
	wrapped := fmt.Errorf("settlement failed: %w", err)
	if KindOf(wrapped) != ErrorKindChainUnavailable {
		t.Errorf("kind lost through wrapping: %v", KindOf(wrapped))
	}

	// A plain error has no kind
	if KindOf(cause) != "" {
		t.Errorf("plain error reported kind %v", KindOf(cause))
	}
}

func TestErrorKindRetriable(t *testing.T) {

	retriable := []ErrorKind{
		ErrorKindPaymentExpired,
		ErrorKindNonceAlreadyUsed,
		ErrorKindInsufficientBalance,
		ErrorKindChainUnavailable,
	}
	for _, kind := range retriable {
		if !kind.Retriable() {
			t.Errorf("%v should be retriable", kind)
		}
	}

	terminal := []ErrorKind{
		ErrorKindNoPayment,
		ErrorKindInvalidFormat,
		ErrorKindInsufficientPayment,
		ErrorKindInvalidPayee,
		ErrorKindInvalidSignature,
		ErrorKindPaymentExecutionFailed,
		ErrorKindPaymentDeclined,
		ErrorKindProtocolViolation,
	}
	for _, kind := range terminal {
		if kind.Retriable() {
			t.Errorf("%v should not be retriable", kind)
		}
	}
}
