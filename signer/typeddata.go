package signer

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/aureo-labs/x402-go/types"
)

// AuthorizationTypedData constructs the EIP-712 typed data for an EIP-3009
// receive-with-authorization transfer. The domain is bound to the token's
// name, version, chain id and contract address so a signature for one token
// or chain can never be replayed against another.
func AuthorizationTypedData(
	domainName string,
	domainVersion string,
	chainID int64,
	tokenAddress string,
	auth types.Authorization,
) (apitypes.TypedData, error) {

	// Verify the domain name is not empty
	if domainName == "" {
		return apitypes.TypedData{}, fmt.Errorf("empty EIP-712 domain name")
	}

	// Verify the domain version is not empty
	if domainVersion == "" {
		return apitypes.TypedData{}, fmt.Errorf("empty EIP-712 domain version")
	}

	// Convert the authorization value from string to big.Int
	value := new(big.Int)
	if _, ok := value.SetString(auth.Value, 10); !ok {
		return apitypes.TypedData{}, fmt.Errorf("invalid authorization value %q", auth.Value)
	}

	// Decode the nonce from hex to a 32 byte array
	nonceBytes, err := hex.DecodeString(strings.TrimPrefix(auth.Nonce, "0x"))
	if err != nil {
		return apitypes.TypedData{}, fmt.Errorf("invalid authorization nonce: %w", err)
	}
	if len(nonceBytes) != 32 {
		return apitypes.TypedData{}, fmt.Errorf("authorization nonce must be exactly 32 bytes, got %d bytes", len(nonceBytes))
	}
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	// Convert the chain ID to hex or decimal
	bigChainID := big.NewInt(chainID)
	hexChainID := math.HexOrDecimal256(*bigChainID)

	// Construct the typed data
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"ReceiveWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "ReceiveWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			ChainId:           &hexChainID,
			VerifyingContract: tokenAddress,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       value,
			"validAfter":  big.NewInt(auth.ValidAfter),
			"validBefore": big.NewInt(auth.ValidBefore),
			"nonce":       nonce,
		},
	}, nil
}

// SigHash computes the EIP-712 signing hash of the typed data.
func SigHash(typedData apitypes.TypedData) ([]byte, error) {

	// Compute the domain hash
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %v", err)
	}

	// Compute the message hash
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %v", err)
	}

	// Construct the signature hash
	rawData := append(append([]byte("\x19\x01"), domainSeparator...), typedDataHash...)
	return crypto.Keccak256(rawData), nil
}
