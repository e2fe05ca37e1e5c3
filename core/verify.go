// Package core implements payment verification and on-chain settlement for
// the x402 protocol.
package core

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/aureo-labs/x402-go/codec"
	"github.com/aureo-labs/x402-go/signer"
	"github.com/aureo-labs/x402-go/token"
	"github.com/aureo-labs/x402-go/types"
)

// VerifierConfig is the configuration for the payment verifier.
type VerifierConfig struct {
	// ChainID is the chain the settlement token lives on.
	ChainID int64

	// Payee is the address that must receive funds.
	Payee string

	// Token is the settlement token binding.
	Token *token.Binding

	// Settler executes the on-chain settlement. Required unless VerifyOnly
	// is set: verification without payment capture means the resource is
	// served while funds never move, so it must be an explicit choice.
	Settler *Settler

	// VerifyOnly allows running without a settler. Inappropriate for
	// production.
	VerifyOnly bool

	// RPCAttempts and RPCBackoff bound retries of transient on-chain read
	// failures. Defaults: 3 attempts, 500ms initial backoff.
	RPCAttempts int
	RPCBackoff  time.Duration

	Logger *slog.Logger
}

// Verifier validates received payment authorizations against protocol
// invariants and on-chain state, and settles them synchronously. It holds no
// mutable state between requests; the on-chain nonce flag is the only
// persisted state the protocol needs.
type Verifier struct {
	chainID  int64
	payee    common.Address
	token    *token.Binding
	settler  *Settler
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewVerifier creates a payment verifier.
func NewVerifier(c VerifierConfig) (*Verifier, error) {

	// Verify the payee address
	if !common.IsHexAddress(c.Payee) {
		return nil, fmt.Errorf("invalid payee address %q", c.Payee)
	}

	// Verify the chain ID is positive
	if c.ChainID <= 0 {
		return nil, fmt.Errorf("invalid chain id %d", c.ChainID)
	}

	// Verify the token binding is present
	if c.Token == nil {
		return nil, fmt.Errorf("token binding is required")
	}

	// Refuse to run without settlement capability unless verify-only mode
	// was requested explicitly
	if c.Settler == nil && !c.VerifyOnly {
		return nil, fmt.Errorf("settler is required: set VerifyOnly to run without payment capture")
	}

	if c.RPCAttempts <= 0 {
		c.RPCAttempts = defaultRPCAttempts
	}
	if c.RPCBackoff <= 0 {
		c.RPCBackoff = defaultRPCBackoff
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Verifier{
		chainID:  c.ChainID,
		payee:    common.HexToAddress(c.Payee),
		token:    c.Token,
		settler:  c.Settler,
		attempts: c.RPCAttempts,
		backoff:  c.RPCBackoff,
		logger:   c.Logger,
		now:      time.Now,
	}, nil
}

// Payee returns the configured payee address.
func (v *Verifier) Payee() common.Address {
	return v.payee
}

// Verify validates the payment header against the required amount. Checks
// run in order and fail closed on the first violation, each yielding a
// distinct reason. A returned error means on-chain state could not be read;
// an invalid result means the payment was definitively rejected.
func (v *Verifier) Verify(ctx context.Context, paymentHeader string, requiredAmount *big.Int) (types.VerifyResult, error) {

	// Verify a payment header is present. Absence is not a failure; it
	// triggers challenge issuance.
	if paymentHeader == "" {
		return types.VerifyResult{Valid: false, Reason: types.ErrorKindNoPayment}, nil
	}

	// Decode the payment header
	payment, err := codec.DecodePayment(paymentHeader)
	if err != nil {
		return types.VerifyResult{Valid: false, Reason: types.ErrorKindInvalidFormat}, nil
	}

	auth := payment.Authorization

	// Convert the authorization value from string to big.Int
	authValue := new(big.Int)
	if _, ok := authValue.SetString(auth.Value, 10); !ok {
		return types.VerifyResult{Valid: false, Reason: types.ErrorKindInvalidFormat}, nil
	}

	// Verify the authorized value covers the required amount
	if authValue.Cmp(requiredAmount) < 0 {
		return types.VerifyResult{Valid: false, Reason: types.ErrorKindInsufficientPayment}, nil
	}

	// Verify the authorization pays the configured payee (address compare
	// is case-insensitive by construction)
	if common.HexToAddress(auth.To) != v.payee {
		return types.VerifyResult{Valid: false, Reason: types.ErrorKindInvalidPayee}, nil
	}

	// Verify the current time is within the validity window
	now := v.now().Unix()
	if now < auth.ValidAfter || now > auth.ValidBefore {
		return types.VerifyResult{Valid: false, Reason: types.ErrorKindPaymentExpired}, nil
	}

	// Read the token metadata for the EIP-712 domain
	meta, err := v.token.Metadata(ctx)
	if err != nil {
		return types.VerifyResult{}, types.NewPaymentError(types.ErrorKindChainUnavailable, "failed to read token metadata", err)
	}

	// Recover the signer and verify it matches the from address
	sender, reason := recoverAuthorizationSigner(meta.Name, meta.Version, v.chainID, v.token.Address().Hex(), auth)
	if reason != "" {
		return types.VerifyResult{Valid: false, Reason: reason}, nil
	}
	fromAddress := common.HexToAddress(auth.From)
	if sender != fromAddress {
		return types.VerifyResult{Valid: false, Reason: types.ErrorKindInvalidSignature}, nil
	}

	// Decode the nonce for the on-chain replay check
	var nonce [32]byte
	nonceBytes, err := hex.DecodeString(strings.TrimPrefix(auth.Nonce, "0x"))
	if err != nil || len(nonceBytes) != 32 {
		return types.VerifyResult{Valid: false, Reason: types.ErrorKindInvalidFormat}, nil
	}
	copy(nonce[:], nonceBytes)

	// Verify on-chain that the nonce has not been consumed. This is the
	// authoritative replay guard; the static checks above are necessary but
	// not sufficient.
	used, err := withRetry(ctx, v.attempts, v.backoff, "authorization state query", func() (bool, error) {
		return v.token.AuthorizationState(ctx, fromAddress, nonce)
	})
	if err != nil {
		return types.VerifyResult{}, err
	}
	if used {
		return types.VerifyResult{Valid: false, Reason: types.ErrorKindNonceAlreadyUsed}, nil
	}

	// Verify on-chain that the payer holds enough funds
	balance, err := withRetry(ctx, v.attempts, v.backoff, "balance query", func() (*big.Int, error) {
		return v.token.BalanceOf(ctx, fromAddress)
	})
	if err != nil {
		return types.VerifyResult{}, err
	}
	if balance.Cmp(authValue) < 0 {
		return types.VerifyResult{Valid: false, Reason: types.ErrorKindInsufficientBalance}, nil
	}

	return types.VerifyResult{Valid: true, Payer: sender.Hex()}, nil
}

// Process verifies the payment header and, when a settler is configured,
// settles it synchronously, blocking until the settlement transaction
// confirms. Access must only be granted on a valid result, which then means
// funds have actually moved.
func (v *Verifier) Process(ctx context.Context, paymentHeader string, requiredAmount *big.Int) (types.VerifyResult, types.SettleResult, error) {

	// Verify the payment
	result, err := v.Verify(ctx, paymentHeader, requiredAmount)
	if err != nil || !result.Valid {
		return result, types.SettleResult{}, err
	}

	// Running verify-only: report validity without capture
	if v.settler == nil {
		v.logger.Warn("verify-only mode: payment accepted without settlement",
			"payer", result.Payer)
		return result, types.SettleResult{}, nil
	}

	// The header decoded once already; decode failures cannot occur here
	payment, _ := codec.DecodePayment(paymentHeader)

	// Settle the payment on-chain and block on confirmation
	settle, err := v.settler.Settle(ctx, payment)
	if err != nil {
		return types.VerifyResult{}, types.SettleResult{}, err
	}
	if !settle.Success {
		return types.VerifyResult{Valid: false, Reason: settle.Reason}, settle, nil
	}

	v.logger.Info("payment settled",
		"payer", result.Payer,
		"value", payment.Authorization.Value,
		"tx", settle.Transaction)

	return result, settle, nil
}

// recoverAuthorizationSigner recovers the address that signed the
// authorization. It returns a non-empty reason when the signature is
// malformed or unrecoverable.
func recoverAuthorizationSigner(domainName, domainVersion string, chainID int64, tokenAddress string, auth types.Authorization) (common.Address, types.ErrorKind) {

	// Construct the typed data the payer signed
	typedData, err := signer.AuthorizationTypedData(domainName, domainVersion, chainID, tokenAddress, auth)
	if err != nil {
		return common.Address{}, types.ErrorKindInvalidFormat
	}

	// Compute the signature hash
	sighash, err := signer.SigHash(typedData)
	if err != nil {
		return common.Address{}, types.ErrorKindInvalidFormat
	}

	// Reassemble the 65 byte signature from its components
	rBytes, err := hex.DecodeString(strings.TrimPrefix(auth.R, "0x"))
	if err != nil || len(rBytes) != 32 {
		return common.Address{}, types.ErrorKindInvalidSignature
	}
	sBytes, err := hex.DecodeString(strings.TrimPrefix(auth.S, "0x"))
	if err != nil || len(sBytes) != 32 {
		return common.Address{}, types.ErrorKindInvalidSignature
	}
	signature := make([]byte, 65)
	copy(signature[0:32], rBytes)
	copy(signature[32:64], sBytes)
	signature[64] = auth.V

	// Convert the V value of the signature if necessary (27/28 -> 0/1)
	if signature[64] == 27 || signature[64] == 28 {
		signature[64] -= 27
	}

	// Recover the public key
	pubkey, err := crypto.Ecrecover(sighash, signature)
	if err != nil {
		return common.Address{}, types.ErrorKindInvalidSignature
	}

	// Unmarshal the public key
	recoveredPubkey, err := crypto.UnmarshalPubkey(pubkey)
	if err != nil {
		return common.Address{}, types.ErrorKindInvalidSignature
	}

	// Convert the public key to an address
	return crypto.PubkeyToAddress(*recoveredPubkey), ""
}
