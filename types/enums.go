package types

// ProtocolVersion is the protocol version enum.
type ProtocolVersion string

const (
	ProtocolVersion1 ProtocolVersion = "1"
)

// Protocol header names. The challenge travels in a response header and the
// authorization in a request header so that response bodies stay free for the
// eventual paid payload.
const (
	HeaderPayment         = "X-Payment"
	HeaderPaymentRequired = "X-Payment-Required"
)

// ErrorKind is the payment error kind enum. Kinds are wire values: they appear
// in 4xx response bodies so callers can distinguish retriable failures
// (PaymentExpired, NonceAlreadyUsed, InsufficientBalance) from terminal
// configuration errors (InvalidPayee, ProtocolViolation).
type ErrorKind string

const (
	// ErrorKindNoPayment means no payment header was present. It triggers
	// challenge issuance and is not a failure.
	ErrorKindNoPayment ErrorKind = "NO_PAYMENT"

	// ErrorKindInvalidFormat means the payment header did not decode to a
	// well-formed authorization.
	ErrorKindInvalidFormat ErrorKind = "INVALID_PAYMENT_FORMAT"

	// ErrorKindInsufficientPayment means the authorized value is below the
	// required amount.
	ErrorKindInsufficientPayment ErrorKind = "INSUFFICIENT_PAYMENT"

	// ErrorKindInvalidPayee means the authorization pays an address other
	// than the configured payee.
	ErrorKindInvalidPayee ErrorKind = "INVALID_PAYEE"

	// ErrorKindPaymentExpired means the current time is outside the
	// authorization's validity window.
	ErrorKindPaymentExpired ErrorKind = "PAYMENT_EXPIRED"

	// ErrorKindInvalidSignature means the signature did not recover to the
	// authorization's from address.
	ErrorKindInvalidSignature ErrorKind = "INVALID_SIGNATURE"

	// ErrorKindNonceAlreadyUsed means the (from, nonce) pair is already
	// consumed on-chain. This is the authoritative replay guard.
	ErrorKindNonceAlreadyUsed ErrorKind = "NONCE_ALREADY_USED"

	// ErrorKindInsufficientBalance means the payer's token balance is below
	// the authorized value.
	ErrorKindInsufficientBalance ErrorKind = "INSUFFICIENT_BALANCE"

	// ErrorKindPaymentExecutionFailed means the settlement transaction
	// reverted for a reason other than nonce reuse. Not retriable with the
	// same authorization.
	ErrorKindPaymentExecutionFailed ErrorKind = "PAYMENT_EXECUTION_FAILED"

	// ErrorKindChainUnavailable means on-chain reads or submission failed
	// after bounded retries. Distinct from a definitive on-chain rejection.
	ErrorKindChainUnavailable ErrorKind = "CHAIN_UNAVAILABLE"

	// ErrorKindSignerUnavailable means no signing key is bound.
	ErrorKindSignerUnavailable ErrorKind = "SIGNER_UNAVAILABLE"

	// ErrorKindRequirementExpired means the requirement's expiry had already
	// passed when signing was attempted.
	ErrorKindRequirementExpired ErrorKind = "REQUIREMENT_EXPIRED"

	// ErrorKindPaymentDeclined means the confirmation callback declined the
	// payment. No network call follows.
	ErrorKindPaymentDeclined ErrorKind = "PAYMENT_DECLINED"

	// ErrorKindProtocolViolation means the peer broke the x402 exchange, for
	// example a 402 without a requirement header or a second 402 after paying.
	ErrorKindProtocolViolation ErrorKind = "PROTOCOL_VIOLATION"
)

// Retriable reports whether a fresh challenge and fresh signature may
// succeed where this kind failed.
func (k ErrorKind) Retriable() bool {
	switch k {
	case ErrorKindPaymentExpired, ErrorKindNonceAlreadyUsed, ErrorKindInsufficientBalance, ErrorKindChainUnavailable:
		return true
	}
	return false
}
