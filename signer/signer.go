// Package signer turns payment requirements into signed, time-bounded,
// single-use transfer authorizations bound to a payer key.
package signer

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/aureo-labs/x402-go/types"
)

// Signer produces signed payment authorizations for a payer address.
type Signer interface {
	// Address returns the payer address the signer signs for.
	Address() common.Address

	// SignRequirement produces a fresh single-use authorization satisfying
	// the requirement. Each call generates a new random nonce; an
	// authorization is never re-signed or retried with the same nonce.
	SignRequirement(requirement types.PaymentRequirement) (types.Payment, error)
}

// PrivateKeySigner signs authorizations with an in-process ECDSA key.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address

	domainName    string
	domainVersion string

	now func() time.Time
}

// Option configures a PrivateKeySigner.
type Option func(*PrivateKeySigner)

// WithDomain overrides the EIP-712 domain name and version. The defaults
// match the USDC token contract ("USDC", "1"); other EIP-3009 tokens report
// their own name and version.
func WithDomain(name, version string) Option {
	return func(s *PrivateKeySigner) {
		s.domainName = name
		s.domainVersion = version
	}
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *PrivateKeySigner) {
		s.now = now
	}
}

// NewPrivateKeySigner creates a signer from a hex-encoded private key.
func NewPrivateKeySigner(hexKey string, opts ...Option) (*PrivateKeySigner, error) {

	// Parse the payer private key
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, types.NewPaymentError(types.ErrorKindSignerUnavailable, "failed to parse payer private key", err)
	}

	s := &PrivateKeySigner{
		key:           key,
		address:       crypto.PubkeyToAddress(key.PublicKey),
		domainName:    "USDC",
		domainVersion: "1",
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Address returns the payer address.
func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

// SignRequirement signs a fresh authorization for the requirement. The
// authorization is active immediately (validAfter 0) and expires with the
// requirement (validBefore = requirement.validUntil).
func (s *PrivateKeySigner) SignRequirement(requirement types.PaymentRequirement) (types.Payment, error) {

	// Verify a signing key is bound
	if s.key == nil {
		return types.Payment{}, types.NewPaymentError(types.ErrorKindSignerUnavailable, "no signing key bound", nil)
	}

	// Verify the requirement has not already expired
	if requirement.ValidUntil <= s.now().Unix() {
		return types.Payment{}, types.NewPaymentError(types.ErrorKindRequirementExpired, "requirement expired before signing", nil)
	}

	// Generate a fresh cryptographically random 32 byte nonce. Nonce
	// uniqueness is the sole replay-protection token; 256-bit randomness
	// makes a collision negligible and it is not otherwise checked here.
	var nonceBytes [32]byte
	if _, err := rand.Read(nonceBytes[:]); err != nil {
		return types.Payment{}, types.NewPaymentError(types.ErrorKindSignerUnavailable, "failed to generate nonce", err)
	}

	// Construct the authorization
	auth := types.Authorization{
		From:        s.address.Hex(),
		To:          requirement.Payee,
		Value:       requirement.Amount,
		ValidAfter:  0,
		ValidBefore: requirement.ValidUntil,
		Nonce:       "0x" + hex.EncodeToString(nonceBytes[:]),
	}

	// Construct the typed data bound to the requirement's token and chain
	typedData, err := AuthorizationTypedData(s.domainName, s.domainVersion, requirement.ChainID, requirement.Token, auth)
	if err != nil {
		return types.Payment{}, types.NewPaymentError(types.ErrorKindSignerUnavailable, "failed to build typed data", err)
	}

	// Compute the signature hash
	sighash, err := SigHash(typedData)
	if err != nil {
		return types.Payment{}, types.NewPaymentError(types.ErrorKindSignerUnavailable, "failed to hash typed data", err)
	}

	// Sign the typed data with the payer's key
	signature, err := crypto.Sign(sighash, s.key)
	if err != nil {
		return types.Payment{}, types.NewPaymentError(types.ErrorKindSignerUnavailable, "failed to sign authorization", err)
	}

	// Split the signature into its components (27/28 form for v)
	auth.V = signature[64] + 27
	auth.R = "0x" + hex.EncodeToString(signature[0:32])
	auth.S = "0x" + hex.EncodeToString(signature[32:64])

	return types.Payment{
		Version:       types.ProtocolVersion1,
		Authorization: auth,
	}, nil
}
