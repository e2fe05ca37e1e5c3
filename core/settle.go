package core

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/aureo-labs/x402-go/token"
	"github.com/aureo-labs/x402-go/types"
)

// SettlerConfig is the configuration for the settlement submitter.
type SettlerConfig struct {
	// ChainID is the chain the settlement token lives on.
	ChainID int64

	// PrivateKey is the hex-encoded service settlement key. It is the sole
	// writer used for authorized-transfer submission; the contract's nonce
	// semantics make concurrent submissions safe to interleave.
	PrivateKey string

	// Token is the settlement token binding.
	Token *token.Binding

	// GasLimitCap bounds the estimated gas limit when positive.
	GasLimitCap uint64

	// ConfirmTimeout bounds the wait for transaction confirmation.
	// Default: 90 seconds.
	ConfirmTimeout time.Duration

	// PollInterval is the receipt polling interval. Default: 2 seconds.
	PollInterval time.Duration

	// RPCAttempts and RPCBackoff bound retries of transient RPC failures.
	RPCAttempts int
	RPCBackoff  time.Duration

	Logger *slog.Logger
}

// Settler executes authorized transfers on-chain with a service-held key and
// waits for confirmation before reporting success.
type Settler struct {
	chainID        *big.Int
	key            *ecdsa.PrivateKey
	address        common.Address
	token          *token.Binding
	gasLimitCap    uint64
	confirmTimeout time.Duration
	pollInterval   time.Duration
	attempts       int
	backoff        time.Duration
	logger         *slog.Logger
}

// NewSettler creates a settlement submitter.
func NewSettler(c SettlerConfig) (*Settler, error) {

	// Verify the chain ID is positive
	if c.ChainID <= 0 {
		return nil, fmt.Errorf("invalid chain id %d", c.ChainID)
	}

	// Verify the token binding is present
	if c.Token == nil {
		return nil, fmt.Errorf("token binding is required")
	}

	// Parse the service settlement private key
	if c.PrivateKey == "" {
		return nil, fmt.Errorf("settlement private key is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse settlement private key: %v", err)
	}

	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 90 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
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

	return &Settler{
		chainID:        big.NewInt(c.ChainID),
		key:            key,
		address:        crypto.PubkeyToAddress(key.PublicKey),
		token:          c.Token,
		gasLimitCap:    c.GasLimitCap,
		confirmTimeout: c.ConfirmTimeout,
		pollInterval:   c.PollInterval,
		attempts:       c.RPCAttempts,
		backoff:        c.RPCBackoff,
		logger:         c.Logger,
	}, nil
}

// Address returns the settlement submitter's address.
func (s *Settler) Address() common.Address {
	return s.address
}

// Settle submits the authorized transfer on-chain and waits for
// confirmation. An on-chain nonce-reuse rejection reports NonceAlreadyUsed;
// any other revert reports PaymentExecutionFailed and requires a fresh
// authorization. A returned error means chain access failed and nothing
// definitive is known.
func (s *Settler) Settle(ctx context.Context, payment types.Payment) (types.SettleResult, error) {

	auth := payment.Authorization

	// Convert the authorization value from string to big.Int
	authValue := new(big.Int)
	if _, ok := authValue.SetString(auth.Value, 10); !ok {
		return types.SettleResult{Success: false, Reason: types.ErrorKindInvalidFormat}, nil
	}

	// Decode the authorization nonce from hex to a 32 byte array
	nonceBytes, err := hex.DecodeString(strings.TrimPrefix(auth.Nonce, "0x"))
	if err != nil || len(nonceBytes) != 32 {
		return types.SettleResult{Success: false, Reason: types.ErrorKindInvalidFormat}, nil
	}
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	// Decode the signature components
	rBytes, err := hex.DecodeString(strings.TrimPrefix(auth.R, "0x"))
	if err != nil || len(rBytes) != 32 {
		return types.SettleResult{Success: false, Reason: types.ErrorKindInvalidFormat}, nil
	}
	sBytes, err := hex.DecodeString(strings.TrimPrefix(auth.S, "0x"))
	if err != nil || len(sBytes) != 32 {
		return types.SettleResult{Success: false, Reason: types.ErrorKindInvalidFormat}, nil
	}
	var sigR, sigS [32]byte
	copy(sigR[:], rBytes)
	copy(sigS[:], sBytes)

	// Convert the V value of the signature if necessary (0/1 -> 27/28)
	sigV := auth.V
	if sigV == 0 || sigV == 1 {
		sigV += 27
	}

	fromAddress := common.HexToAddress(auth.From)
	toAddress := common.HexToAddress(auth.To)
	contractAddress := s.token.Address()

	// Pack the settlement call data with the exact authorization tuple
	txData, err := s.token.ReceiveWithAuthorizationData(
		fromAddress,
		toAddress,
		authValue,
		big.NewInt(auth.ValidAfter),
		big.NewInt(auth.ValidBefore),
		nonce,
		sigV,
		sigR,
		sigS,
	)
	if err != nil {
		return types.SettleResult{Success: false, Reason: types.ErrorKindInvalidFormat}, nil
	}

	// Bound the whole settlement attempt
	ctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	client := s.token.Client()

	// Get the estimated gas limit. A failing estimate means the call would
	// revert; classify it against the on-chain nonce state.
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From: s.address,
		To:   &contractAddress,
		Data: txData,
	})
	if err != nil {
		return s.classifyRevert(ctx, fromAddress, nonce, err)
	}

	// Add 20% buffer to the gas estimate
	gasLimit = gasLimit * 120 / 100

	// Ensure the gas limit does not exceed the configured cap
	if s.gasLimitCap > 0 && gasLimit > s.gasLimitCap {
		return types.SettleResult{Success: false, Reason: types.ErrorKindPaymentExecutionFailed}, nil
	}

	// Get the pending nonce for the settlement account
	txNonce, err := withRetry(ctx, s.attempts, s.backoff, "pending nonce query", func() (uint64, error) {
		return client.PendingNonceAt(ctx, s.address)
	})
	if err != nil {
		return types.SettleResult{}, err
	}

	// Get the suggested gas tip cap
	gasTipCap, err := withRetry(ctx, s.attempts, s.backoff, "gas tip query", func() (*big.Int, error) {
		return client.SuggestGasTipCap(ctx)
	})
	if err != nil {
		return types.SettleResult{}, err
	}

	// Get the latest block header for the base fee
	blockHeader, err := withRetry(ctx, s.attempts, s.backoff, "block header query", func() (*ethtypes.Header, error) {
		return client.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		return types.SettleResult{}, err
	}

	// Verify the block header base fee is not nil
	if blockHeader.BaseFee == nil {
		return types.SettleResult{}, types.NewPaymentError(
			types.ErrorKindChainUnavailable,
			"block header missing base fee: network may not support EIP-1559",
			nil,
		)
	}

	// Determine the gas fee cap (2x base fee + gas tip cap)
	gasFeeCap := new(big.Int).Add(
		new(big.Int).Mul(blockHeader.BaseFee, big.NewInt(2)),
		gasTipCap,
	)

	// Create the transaction using EIP-1559
	transaction := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     txNonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &contractAddress,
		Value:     big.NewInt(0),
		Data:      txData,
	})

	// Sign the transaction with the settlement key
	signedTx, err := ethtypes.SignTx(transaction, ethtypes.NewLondonSigner(s.chainID), s.key)
	if err != nil {
		return types.SettleResult{}, types.NewPaymentError(types.ErrorKindChainUnavailable, "failed to sign transaction", err)
	}

	// Send the signed transaction. Resending the same signed transaction is
	// idempotent, so transient failures are safe to retry.
	_, err = withRetry(ctx, s.attempts, s.backoff, "transaction submission", func() (struct{}, error) {
		return struct{}{}, client.SendTransaction(ctx, signedTx)
	})
	if err != nil {
		return types.SettleResult{}, err
	}

	s.logger.Info("settlement transaction sent",
		"tx", signedTx.Hash().Hex(),
		"from", auth.From,
		"value", auth.Value)

	// Wait for the transaction confirmation
	receipt, err := s.waitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		return types.SettleResult{}, err
	}

	// Verify the transaction succeeded
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		result, err := s.classifyRevert(ctx, fromAddress, nonce, fmt.Errorf("transaction %s reverted", signedTx.Hash().Hex()))
		result.Transaction = signedTx.Hash().Hex()
		return result, err
	}

	return types.SettleResult{
		Success:     true,
		Transaction: signedTx.Hash().Hex(),
	}, nil
}

// waitForReceipt polls for the transaction receipt until the context expires.
func (s *Settler) waitForReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	client := s.token.Client()
	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, types.NewPaymentError(
				types.ErrorKindChainUnavailable,
				"timed out waiting for settlement confirmation of "+txHash.Hex(),
				ctx.Err(),
			)
		case <-time.After(s.pollInterval):
		}
	}
}

// classifyRevert distinguishes a nonce-reuse rejection from any other revert.
// A competing submission consuming the nonce is equivalent to a verifier-time
// NonceAlreadyUsed rejection; everything else needs a fresh authorization.
func (s *Settler) classifyRevert(ctx context.Context, from common.Address, nonce [32]byte, cause error) (types.SettleResult, error) {
	used, err := withRetry(ctx, s.attempts, s.backoff, "authorization state query", func() (bool, error) {
		return s.token.AuthorizationState(ctx, from, nonce)
	})
	if err != nil {
		return types.SettleResult{}, err
	}
	if used {
		return types.SettleResult{Success: false, Reason: types.ErrorKindNonceAlreadyUsed}, nil
	}

	s.logger.Warn("settlement reverted", "from", from.Hex(), "error", cause)
	return types.SettleResult{Success: false, Reason: types.ErrorKindPaymentExecutionFailed}, nil
}
