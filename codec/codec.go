// Package codec encodes and decodes x402 protocol objects for header
// transport. Encoding is base64 of the canonical JSON form; decoding fails
// closed, so a malformed header never yields a partially populated value.
package codec

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aureo-labs/x402-go/types"
)

// EncodeRequirement encodes a payment requirement for the
// X-Payment-Required response header.
func EncodeRequirement(requirement types.PaymentRequirement) (string, error) {
	requirementJSON, err := json.Marshal(requirement)
	if err != nil {
		return "", fmt.Errorf("failed to marshal requirement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(requirementJSON), nil
}

// DecodeRequirement decodes and validates a payment requirement from the
// X-Payment-Required response header.
func DecodeRequirement(encoded string) (types.PaymentRequirement, error) {

	var requirement types.PaymentRequirement

	// Decode the header from base64
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return types.PaymentRequirement{}, fmt.Errorf("failed to decode base64: %w", err)
	}

	// Unmarshal the canonical JSON form
	if err := json.Unmarshal(decoded, &requirement); err != nil {
		return types.PaymentRequirement{}, fmt.Errorf("failed to unmarshal requirement: %w", err)
	}

	// Validate the decoded requirement
	if err := ValidateRequirement(requirement); err != nil {
		return types.PaymentRequirement{}, err
	}

	return requirement, nil
}

// EncodePayment encodes a signed payment for the X-Payment request header.
func EncodePayment(payment types.Payment) (string, error) {
	paymentJSON, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(paymentJSON), nil
}

// DecodePayment decodes and validates a signed payment from the X-Payment
// request header.
func DecodePayment(encoded string) (types.Payment, error) {

	var payment types.Payment

	// Decode the header from base64
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return types.Payment{}, fmt.Errorf("failed to decode base64: %w", err)
	}

	// Unmarshal the canonical JSON form
	if err := json.Unmarshal(decoded, &payment); err != nil {
		return types.Payment{}, fmt.Errorf("failed to unmarshal payment: %w", err)
	}

	// Validate the decoded payment
	if err := ValidatePayment(payment); err != nil {
		return types.Payment{}, err
	}

	return payment, nil
}

// ValidateRequirement checks a requirement for structural validity.
func ValidateRequirement(r types.PaymentRequirement) error {

	// Verify the protocol version is supported
	if r.Version != types.ProtocolVersion1 {
		return fmt.Errorf("unsupported protocol version %q", r.Version)
	}

	// Verify the chain ID is positive
	if r.ChainID <= 0 {
		return fmt.Errorf("invalid chain id %d", r.ChainID)
	}

	// Verify the payee is a valid address
	if !common.IsHexAddress(r.Payee) {
		return fmt.Errorf("invalid payee address %q", r.Payee)
	}

	// Verify the token is a valid address
	if !common.IsHexAddress(r.Token) {
		return fmt.Errorf("invalid token address %q", r.Token)
	}

	// Verify the amount is a positive integer in minor units
	amount, ok := new(big.Int).SetString(r.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return fmt.Errorf("invalid amount %q", r.Amount)
	}

	// Verify an expiry is set
	if r.ValidUntil <= 0 {
		return fmt.Errorf("invalid validUntil %d", r.ValidUntil)
	}

	// Verify the resource identifier is present
	if r.Resource == "" {
		return fmt.Errorf("missing resource")
	}

	return nil
}

// ValidatePayment checks a payment envelope for structural validity.
func ValidatePayment(p types.Payment) error {

	// Verify the protocol version is supported
	if p.Version != types.ProtocolVersion1 {
		return fmt.Errorf("unsupported protocol version %q", p.Version)
	}

	a := p.Authorization

	// Verify the from address
	if !common.IsHexAddress(a.From) {
		return fmt.Errorf("invalid from address %q", a.From)
	}

	// Verify the to address
	if !common.IsHexAddress(a.To) {
		return fmt.Errorf("invalid to address %q", a.To)
	}

	// Verify the value is a non-negative integer in minor units
	value, ok := new(big.Int).SetString(a.Value, 10)
	if !ok || value.Sign() < 0 {
		return fmt.Errorf("invalid value %q", a.Value)
	}

	// Verify the validity window is ordered
	if a.ValidAfter >= a.ValidBefore {
		return fmt.Errorf("invalid validity window [%d, %d]", a.ValidAfter, a.ValidBefore)
	}

	// Verify the nonce is exactly 32 bytes of hex
	if err := validateHex32(a.Nonce); err != nil {
		return fmt.Errorf("invalid nonce: %w", err)
	}

	// Verify the signature components (v may use either the legacy 27/28
	// form or the raw 0/1 recovery id)
	if a.V != 27 && a.V != 28 && a.V != 0 && a.V != 1 {
		return fmt.Errorf("invalid signature v %d", a.V)
	}
	if err := validateHex32(a.R); err != nil {
		return fmt.Errorf("invalid signature r: %w", err)
	}
	if err := validateHex32(a.S); err != nil {
		return fmt.Errorf("invalid signature s: %w", err)
	}

	return nil
}

// validateHex32 checks that s is a 0x-prefixed hex string of exactly 32 bytes.
func validateHex32(s string) error {
	if !strings.HasPrefix(s, "0x") {
		return fmt.Errorf("missing 0x prefix")
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return err
	}
	if len(raw) != 32 {
		return fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	return nil
}
