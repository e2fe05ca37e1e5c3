// Package token binds the settlement token contract. The contract is assumed
// to implement the EIP-3009 authorized-transfer interface alongside the
// standard ERC-20 queries.
package token

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/aureo-labs/x402-go/clients"
)

// Set the raw JSON for the token contract surface used by the protocol
const tokenJSON = `[
	{
		"type": "function",
		"name": "balanceOf",
		"inputs": [
			{"name": "account", "type": "address"}
		],
		"outputs": [
			{"name": "", "type": "uint256"}
		],
		"constant": true
	},
	{
		"type": "function",
		"name": "authorizationState",
		"inputs": [
			{"name": "authorizer", "type": "address"},
			{"name": "nonce", "type": "bytes32"}
		],
		"outputs": [
			{"name": "", "type": "bool"}
		],
		"constant": true
	},
	{
		"type": "function",
		"name": "receiveWithAuthorization",
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "validAfter", "type": "uint256"},
			{"name": "validBefore", "type": "uint256"},
			{"name": "nonce", "type": "bytes32"},
			{"name": "v", "type": "uint8"},
			{"name": "r", "type": "bytes32"},
			{"name": "s", "type": "bytes32"}
		],
		"outputs": [],
		"constant": false
	},
	{
		"type": "function",
		"name": "name",
		"inputs": [],
		"outputs": [{"name": "", "type": "string"}],
		"constant": true
	},
	{
		"type": "function",
		"name": "version",
		"inputs": [],
		"outputs": [{"name": "", "type": "string"}],
		"constant": true
	},
	{
		"type": "function",
		"name": "symbol",
		"inputs": [],
		"outputs": [{"name": "", "type": "string"}],
		"constant": true
	},
	{
		"type": "function",
		"name": "decimals",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint8"}],
		"constant": true
	}
]`

// Metadata is the token metadata used to build the EIP-712 domain and to
// format amounts for display.
type Metadata struct {
	Name     string
	Version  string
	Symbol   string
	Decimals uint8
}

// Binding is the on-chain binding to the settlement token contract.
type Binding struct {
	address common.Address
	client  clients.EthClientInterface
	abi     abi.ABI

	mu   sync.Mutex
	meta *Metadata
}

// NewBinding creates a token binding for the contract at address. If meta is
// non-nil it overrides the on-chain metadata reads entirely.
func NewBinding(client clients.EthClientInterface, address string, meta *Metadata) (*Binding, error) {

	// Verify the token contract address
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid token contract address %q", address)
	}

	// Parse the contract ABI
	tokenABI, err := abi.JSON(strings.NewReader(tokenJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ABI: %v", err)
	}

	return &Binding{
		address: common.HexToAddress(address),
		client:  client,
		abi:     tokenABI,
		meta:    meta,
	}, nil
}

// Address returns the token contract address.
func (b *Binding) Address() common.Address {
	return b.address
}

// Client returns the underlying Ethereum client.
func (b *Binding) Client() clients.EthClientInterface {
	return b.client
}

// AuthorizationState reports whether the (authorizer, nonce) pair has been
// consumed on-chain.
func (b *Binding) AuthorizationState(ctx context.Context, authorizer common.Address, nonce [32]byte) (bool, error) {

	// Pack the authorizationState call data
	data, err := b.abi.Pack("authorizationState", authorizer, nonce)
	if err != nil {
		return false, fmt.Errorf("failed to pack authorizationState call data: %v", err)
	}

	// Call the contract
	result, err := b.call(ctx, data)
	if err != nil {
		return false, fmt.Errorf("failed to get authorization state: %w", err)
	}

	// Unpack the boolean result
	values, err := b.abi.Unpack("authorizationState", result)
	if err != nil {
		return false, fmt.Errorf("failed to unpack authorization state: %v", err)
	}
	used, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected authorization state result type %T", values[0])
	}

	return used, nil
}

// BalanceOf returns the token balance of account.
func (b *Binding) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {

	// Pack the balanceOf call data
	data, err := b.abi.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call data: %v", err)
	}

	// Call the contract
	result, err := b.call(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to get token balance: %w", err)
	}

	// Verify the balance result is 32 bytes
	if len(result) != 32 {
		return nil, fmt.Errorf("failed to get token balance: balance result is not 32 bytes")
	}

	return new(big.Int).SetBytes(result), nil
}

// Metadata returns the token metadata, reading it from the contract on first
// use and caching it afterwards.
func (b *Binding) Metadata(ctx context.Context) (Metadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.meta != nil {
		return *b.meta, nil
	}

	name, err := b.callString(ctx, "name")
	if err != nil {
		return Metadata{}, err
	}

	version, err := b.callString(ctx, "version")
	if err != nil {
		return Metadata{}, err
	}

	symbol, err := b.callString(ctx, "symbol")
	if err != nil {
		return Metadata{}, err
	}

	decimals, err := b.callDecimals(ctx)
	if err != nil {
		return Metadata{}, err
	}

	b.meta = &Metadata{Name: name, Version: version, Symbol: symbol, Decimals: decimals}
	return *b.meta, nil
}

// ReceiveWithAuthorizationData packs the settlement call data for the full
// authorization tuple plus signature components.
func (b *Binding) ReceiveWithAuthorizationData(
	from common.Address,
	to common.Address,
	value *big.Int,
	validAfter *big.Int,
	validBefore *big.Int,
	nonce [32]byte,
	v uint8,
	r [32]byte,
	s [32]byte,
) ([]byte, error) {
	data, err := b.abi.Pack("receiveWithAuthorization", from, to, value, validAfter, validBefore, nonce, v, r, s)
	if err != nil {
		return nil, fmt.Errorf("failed to pack receiveWithAuthorization call data: %v", err)
	}
	return data, nil
}

// call performs a read-only contract call against the token contract.
func (b *Binding) call(ctx context.Context, data []byte) ([]byte, error) {
	result, err := b.client.CallContract(ctx, ethereum.CallMsg{
		To:   &b.address,
		Data: data,
	}, nil)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("contract call returned nil")
	}
	return result, nil
}

// callString performs a read-only call returning a single string.
func (b *Binding) callString(ctx context.Context, method string) (string, error) {
	data, err := b.abi.Pack(method)
	if err != nil {
		return "", fmt.Errorf("failed to pack %s call data: %v", method, err)
	}
	result, err := b.call(ctx, data)
	if err != nil {
		return "", fmt.Errorf("failed to read token %s: %w", method, err)
	}
	values, err := b.abi.Unpack(method, result)
	if err != nil {
		return "", fmt.Errorf("failed to unpack token %s: %v", method, err)
	}
	value, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected token %s result type %T", method, values[0])
	}
	return value, nil
}

// callDecimals performs a read-only call returning the token decimals.
func (b *Binding) callDecimals(ctx context.Context) (uint8, error) {
	data, err := b.abi.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("failed to pack decimals call data: %v", err)
	}
	result, err := b.call(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("failed to read token decimals: %w", err)
	}
	values, err := b.abi.Unpack("decimals", result)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack token decimals: %v", err)
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected token decimals result type %T", values[0])
	}
	return decimals, nil
}
