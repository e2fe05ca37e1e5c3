// Package config holds the environment-style configuration surface of the
// payment protocol.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Defaults matching the deployed USDC token and a five minute challenge
// validity window.
const (
	DefaultValiditySeconds = 300
	DefaultTokenName       = "USDC"
	DefaultTokenVersion    = "1"
	DefaultTokenSymbol     = "USDC"
	DefaultTokenDecimals   = 6
)

// Config is the protocol configuration.
type Config struct {
	// Network is the human-readable network label carried in requirements.
	Network string

	// ChainID is the target chain; it must match the token contract's chain.
	ChainID int64

	// RPCURL is the Ethereum RPC endpoint.
	RPCURL string

	// Payee is the address that receives x402 payments.
	Payee string

	// Token is the settlement token contract address.
	Token string

	// TokenName, TokenVersion, TokenSymbol and TokenDecimals override the
	// on-chain token metadata when set.
	TokenName     string
	TokenVersion  string
	TokenSymbol   string
	TokenDecimals uint8

	// SettlementKey is the service-held settlement private key. When empty,
	// VerifyOnly must be set explicitly; the protocol never degrades to
	// verification-without-capture silently.
	SettlementKey string

	// VerifyOnly runs verification without on-chain settlement.
	VerifyOnly bool

	// Validity is how long issued payment requirements stay valid.
	Validity time.Duration

	// Pricing maps resource identifiers to integer minor-unit amounts.
	Pricing map[string]*big.Int
}

// FromEnv builds the configuration from the environment. Recognized
// variables:
//
//	X402_NETWORK          network label (e.g. "mantle-sepolia")
//	X402_CHAIN_ID         chain id (e.g. 5003)
//	X402_RPC_URL          Ethereum RPC endpoint
//	X402_PAYEE            payee address
//	X402_TOKEN_ADDRESS    settlement token contract address
//	X402_TOKEN_NAME       EIP-712 domain name override
//	X402_TOKEN_VERSION    EIP-712 domain version override
//	X402_TOKEN_SYMBOL     display symbol override
//	X402_TOKEN_DECIMALS   display decimals override
//	X402_SETTLEMENT_KEY   service settlement private key
//	X402_VERIFY_ONLY      "true" to run without settlement
//	X402_VALIDITY_SECONDS requirement validity window
//	X402_PRICING          comma-separated resource=amount pairs
func FromEnv() (*Config, error) {

	c := &Config{
		Network:       os.Getenv("X402_NETWORK"),
		RPCURL:        os.Getenv("X402_RPC_URL"),
		Payee:         os.Getenv("X402_PAYEE"),
		Token:         os.Getenv("X402_TOKEN_ADDRESS"),
		TokenName:     getenvDefault("X402_TOKEN_NAME", DefaultTokenName),
		TokenVersion:  getenvDefault("X402_TOKEN_VERSION", DefaultTokenVersion),
		TokenSymbol:   getenvDefault("X402_TOKEN_SYMBOL", DefaultTokenSymbol),
		TokenDecimals: DefaultTokenDecimals,
		SettlementKey: os.Getenv("X402_SETTLEMENT_KEY"),
		VerifyOnly:    os.Getenv("X402_VERIFY_ONLY") == "true",
		Validity:      DefaultValiditySeconds * time.Second,
		Pricing:       map[string]*big.Int{},
	}

	// Parse the chain ID
	if raw := os.Getenv("X402_CHAIN_ID"); raw != "" {
		chainID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid X402_CHAIN_ID %q: %v", raw, err)
		}
		c.ChainID = chainID
	}

	// Parse the token decimals override
	if raw := os.Getenv("X402_TOKEN_DECIMALS"); raw != "" {
		decimals, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid X402_TOKEN_DECIMALS %q: %v", raw, err)
		}
		c.TokenDecimals = uint8(decimals)
	}

	// Parse the validity window
	if raw := os.Getenv("X402_VALIDITY_SECONDS"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("invalid X402_VALIDITY_SECONDS %q", raw)
		}
		c.Validity = time.Duration(seconds) * time.Second
	}

	// Parse the per-resource pricing map
	if raw := os.Getenv("X402_PRICING"); raw != "" {
		pricing, err := ParsePricing(raw)
		if err != nil {
			return nil, err
		}
		c.Pricing = pricing
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ParsePricing parses a comma-separated list of resource=amount pairs, with
// amounts in integer minor units.
func ParsePricing(raw string) (map[string]*big.Int, error) {
	pricing := map[string]*big.Int{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		resource, amountRaw, found := strings.Cut(pair, "=")
		if !found || resource == "" {
			return nil, fmt.Errorf("invalid pricing entry %q", pair)
		}
		amount, ok := new(big.Int).SetString(amountRaw, 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("invalid pricing amount %q for resource %q", amountRaw, resource)
		}
		pricing[resource] = amount
	}
	return pricing, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Network == "" {
		return fmt.Errorf("network label is required")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("chain id is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL is required")
	}
	if !common.IsHexAddress(c.Payee) {
		return fmt.Errorf("invalid payee address %q", c.Payee)
	}
	if !common.IsHexAddress(c.Token) {
		return fmt.Errorf("invalid token contract address %q", c.Token)
	}
	if c.SettlementKey == "" && !c.VerifyOnly {
		return fmt.Errorf("settlement key is required: set X402_VERIFY_ONLY=true to run without payment capture")
	}
	return nil
}

// PriceFor returns the configured price for a resource.
func (c *Config) PriceFor(resource string) (*big.Int, bool) {
	amount, ok := c.Pricing[resource]
	return amount, ok
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
