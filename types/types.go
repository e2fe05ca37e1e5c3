package types

// PaymentRequirement is the payment challenge issued with a 402 response.
// It is created fresh per response, never persisted server-side, and is
// reconstructible from its transport encoding alone.
type PaymentRequirement struct {
	Version     ProtocolVersion `json:"version"`
	Network     string          `json:"network"`
	ChainID     int64           `json:"chainId"`
	Payee       string          `json:"payee"`
	Token       string          `json:"token"`
	Amount      string          `json:"amount"`
	ValidUntil  int64           `json:"validUntil"`
	Description string          `json:"description"`
	Resource    string          `json:"resource"`
}

// Payment is the client-signed envelope carried in the X-Payment request header.
type Payment struct {
	Version       ProtocolVersion `json:"version"`
	Authorization Authorization   `json:"authorization"`
}

// Authorization is a signed EIP-3009 receive-with-authorization transfer.
// Value is an integer amount in the token's minor unit, ValidAfter and
// ValidBefore are unix seconds, Nonce is a 0x-prefixed 32 byte hex string,
// and V, R, S are the signature components.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
	V           uint8  `json:"v"`
	R           string `json:"r"`
	S           string `json:"s"`
}

// VerifyResult is the result of the verify operation.
type VerifyResult struct {
	Valid  bool      `json:"valid"`
	Payer  string    `json:"payer,omitempty"`
	Reason ErrorKind `json:"reason,omitempty"`
}

// SettleResult is the result of the settle operation.
type SettleResult struct {
	Success     bool      `json:"success"`
	Transaction string    `json:"transaction,omitempty"`
	Reason      ErrorKind `json:"reason,omitempty"`
}

// ErrorBody is the JSON body written with payment failure responses. Kind is
// machine-readable; Error is the human-readable fallback for clients that do
// not implement the protocol.
type ErrorBody struct {
	Error string    `json:"error"`
	Kind  ErrorKind `json:"kind,omitempty"`
}

// ChallengeBody is the JSON body written with a 402 response. The encoded
// requirement travels in the X-Payment-Required header; the body carries a
// human-readable rendering only.
type ChallengeBody struct {
	Error       string `json:"error"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}
