package core

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/aureo-labs/x402-go/codec"
	"github.com/aureo-labs/x402-go/signer"
	"github.com/aureo-labs/x402-go/token"
	"github.com/aureo-labs/x402-go/types"
)

const (
	testChainID      = int64(5003)
	testPayeeAddress = "0x1111111111111111111111111111111111111111"
	testTokenAddress = "0x2222222222222222222222222222222222222222"
	testSettleKey    = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

// Method selectors for dispatching mocked read-only contract calls.
var (
	selectorAuthorizationState = crypto.Keccak256([]byte("authorizationState(address,bytes32)"))[:4]
	selectorBalanceOf          = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
)

type mockEthClient struct {
	authorizationUsed bool
	balance           *big.Int

	callContract     func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	pendingNonceAt   func(ctx context.Context, account common.Address) (uint64, error)
	suggestGasTipCap func(ctx context.Context) (*big.Int, error)
	headerByNumber   func(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	estimateGas      func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	sendTransaction  func(ctx context.Context, tx *ethtypes.Transaction) error
	txReceipt        func(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

func (m *mockEthClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if m.callContract != nil {
		return m.callContract(ctx, msg, blockNumber)
	}

	// Dispatch on the method selector
	if len(msg.Data) >= 4 {
		selector := msg.Data[:4]
		switch {
		case string(selector) == string(selectorAuthorizationState):
			return encodeBool(m.authorizationUsed), nil
		case string(selector) == string(selectorBalanceOf):
			balance := m.balance
			if balance == nil {
				balance = big.NewInt(1000000000)
			}
			return common.LeftPadBytes(balance.Bytes(), 32), nil
		}
	}
	return make([]byte, 32), nil
}

func (m *mockEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if m.pendingNonceAt != nil {
		return m.pendingNonceAt(ctx, account)
	}
	return 0, nil
}

func (m *mockEthClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if m.suggestGasTipCap != nil {
		return m.suggestGasTipCap(ctx)
	}
	return big.NewInt(1000000000), nil
}

func (m *mockEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	if m.headerByNumber != nil {
		return m.headerByNumber(ctx, number)
	}
	return &ethtypes.Header{BaseFee: big.NewInt(20000000000)}, nil
}

func (m *mockEthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if m.estimateGas != nil {
		return m.estimateGas(ctx, msg)
	}
	return 21000, nil
}

func (m *mockEthClient) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	if m.sendTransaction != nil {
		return m.sendTransaction(ctx, tx)
	}
	return nil
}

func (m *mockEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	if m.txReceipt != nil {
		return m.txReceipt(ctx, txHash)
	}
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful}, nil
}

func encodeBool(value bool) []byte {
	result := make([]byte, 32)
	if value {
		result[31] = 1
	}
	return result
}

func testBinding(t *testing.T, client *mockEthClient) *token.Binding {
	t.Helper()
	binding, err := token.NewBinding(client, testTokenAddress, &token.Metadata{
		Name:     "USDC",
		Version:  "1",
		Symbol:   "USDC",
		Decimals: 6,
	})
	if err != nil {
		t.Fatalf("failed to create binding: %v", err)
	}
	return binding
}

func testVerifier(t *testing.T, client *mockEthClient, settler *Settler) *Verifier {
	t.Helper()
	verifier, err := NewVerifier(VerifierConfig{
		ChainID:     testChainID,
		Payee:       testPayeeAddress,
		Token:       testBinding(t, client),
		Settler:     settler,
		VerifyOnly:  settler == nil,
		RPCAttempts: 2,
		RPCBackoff:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}
	return verifier
}

func testSettler(t *testing.T, client *mockEthClient) *Settler {
	t.Helper()
	settler, err := NewSettler(SettlerConfig{
		ChainID:     testChainID,
		PrivateKey:  testSettleKey,
		Token:       testBinding(t, client),
		RPCAttempts: 2,
		RPCBackoff:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create settler: %v", err)
	}
	return settler
}

// signAuthorization signs the authorization tuple with a fresh payer key and
// fills in the signature components.
func signAuthorization(t *testing.T, auth types.Authorization) (types.Payment, common.Address) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	payer := crypto.PubkeyToAddress(key.PublicKey)
	auth.From = payer.Hex()

	typedData, err := signer.AuthorizationTypedData("USDC", "1", testChainID, testTokenAddress, auth)
	if err != nil {
		t.Fatalf("failed to build typed data: %v", err)
	}
	sighash, err := signer.SigHash(typedData)
	if err != nil {
		t.Fatalf("failed to hash typed data: %v", err)
	}
	signature, err := crypto.Sign(sighash, key)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	auth.V = signature[64] + 27
	auth.R = "0x" + hex.EncodeToString(signature[0:32])
	auth.S = "0x" + hex.EncodeToString(signature[32:64])

	return types.Payment{Version: types.ProtocolVersion1, Authorization: auth}, payer
}

// validAuthorization is an unsigned authorization covering the default test
// requirement: 10000 minor units to the test payee, valid for five minutes.
func validAuthorization() types.Authorization {
	return types.Authorization{
		To:          testPayeeAddress,
		Value:       "10000",
		ValidAfter:  0,
		ValidBefore: time.Now().Add(5 * time.Minute).Unix(),
		Nonce:       "0x" + strings.Repeat("ab", 32),
	}
}

func encodePayment(t *testing.T, payment types.Payment) string {
	t.Helper()
	encoded, err := codec.EncodePayment(payment)
	if err != nil {
		t.Fatalf("failed to encode payment: %v", err)
	}
	return encoded
}
