// Package middleware provides the x402 route guard: an HTTP wrapper that
// challenges unpaid requests with a 402 and admits paid ones with a verified,
// settled authorization.
package middleware

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/aureo-labs/x402-go/codec"
	"github.com/aureo-labs/x402-go/config"
	"github.com/aureo-labs/x402-go/core"
	"github.com/aureo-labs/x402-go/token"
	"github.com/aureo-labs/x402-go/types"
)

// PaidHandler is a protected resource handler. It receives the authenticated
// payer address as an opaque identity; it is never given the raw
// authorization or signature.
type PaidHandler func(w http.ResponseWriter, r *http.Request, payer string)

// GuardConfig is the configuration for the route guard.
type GuardConfig struct {
	Verifier *core.Verifier

	// Requirement issuance parameters. Challenges are generated fresh per
	// response and never stored; any number of outstanding challenges for
	// the same resource are equally valid until expiry.
	Network  string
	ChainID  int64
	Token    string
	Validity time.Duration

	// Display parameters for the human-readable 402 body.
	TokenSymbol   string
	TokenDecimals uint8

	Logger *slog.Logger
}

// Guard wraps protected handlers with the x402 challenge/verify flow.
type Guard struct {
	verifier *core.Verifier
	network  string
	chainID  int64
	token    string
	validity time.Duration
	symbol   string
	decimals uint8
	logger   *slog.Logger
	now      func() time.Time
}

// NewGuard creates a route guard.
func NewGuard(c GuardConfig) (*Guard, error) {
	if c.Verifier == nil {
		return nil, errMissingVerifier
	}
	if c.Validity <= 0 {
		c.Validity = config.DefaultValiditySeconds * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Guard{
		verifier: c.Verifier,
		network:  c.Network,
		chainID:  c.ChainID,
		token:    c.Token,
		validity: c.Validity,
		symbol:   c.TokenSymbol,
		decimals: c.TokenDecimals,
		logger:   c.Logger,
		now:      time.Now,
	}, nil
}

// NewGuardFromConfig creates a route guard from the protocol configuration.
func NewGuardFromConfig(cfg *config.Config, verifier *core.Verifier) (*Guard, error) {
	return NewGuard(GuardConfig{
		Verifier:      verifier,
		Network:       cfg.Network,
		ChainID:       cfg.ChainID,
		Token:         cfg.Token,
		Validity:      cfg.Validity,
		TokenSymbol:   cfg.TokenSymbol,
		TokenDecimals: cfg.TokenDecimals,
	})
}

// Protect wraps a handler with payment gating at the given price. The
// protected resource identity is the request path.
func (g *Guard) Protect(amount *big.Int, description string, next PaidHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payer, ok := g.Check(w, r, amount, description)
		if !ok {
			return
		}
		next(w, r, payer)
	})
}

// Check runs the challenge/verify flow for a request. When it returns false
// the response has already been written; on true the payment has been
// verified and settled and the payer address is returned.
func (g *Guard) Check(w http.ResponseWriter, r *http.Request, amount *big.Int, description string) (string, bool) {

	resource := r.URL.Path

	// Check for a payment header
	paymentHeader := r.Header.Get(types.HeaderPayment)
	if paymentHeader == "" {
		g.writeChallenge(w, resource, amount, description)
		return "", false
	}

	// Verify and settle the payment
	verify, settle, err := g.verifier.Process(r.Context(), paymentHeader, amount)
	if err != nil {
		kind := types.KindOf(err)
		status := http.StatusInternalServerError
		if kind == types.ErrorKindChainUnavailable {
			status = http.StatusServiceUnavailable
		}
		g.logger.Error("payment processing failed", "resource", resource, "error", err)
		g.writeError(w, status, kind, "payment processing failed")
		return "", false
	}

	if !verify.Valid {
		// A NoPayment result gets the same challenge as an absent header;
		// this should not occur given the presence check above but keeps
		// the guard idempotent.
		if verify.Reason == types.ErrorKindNoPayment {
			g.writeChallenge(w, resource, amount, description)
			return "", false
		}

		g.logger.Warn("payment rejected", "resource", resource, "reason", verify.Reason)
		g.writeError(w, http.StatusBadRequest, verify.Reason, "Payment failed")
		return "", false
	}

	if settle.Transaction != "" {
		g.logger.Info("paid request admitted",
			"resource", resource,
			"payer", verify.Payer,
			"tx", settle.Transaction)
	}

	return verify.Payer, true
}

// Requirement generates a fresh payment requirement for a resource.
func (g *Guard) Requirement(resource string, amount *big.Int, description string) types.PaymentRequirement {
	return types.PaymentRequirement{
		Version:     types.ProtocolVersion1,
		Network:     g.network,
		ChainID:     g.chainID,
		Payee:       g.verifier.Payee().Hex(),
		Token:       g.token,
		Amount:      amount.String(),
		ValidUntil:  g.now().Add(g.validity).Unix(),
		Description: description,
		Resource:    resource,
	}
}

// writeChallenge writes the 402 response: the encoded requirement in the
// X-Payment-Required header, a human-readable JSON rendering in the body.
func (g *Guard) writeChallenge(w http.ResponseWriter, resource string, amount *big.Int, description string) {

	requirement := g.Requirement(resource, amount, description)

	// Encode the requirement for the response header
	encoded, err := codec.EncodeRequirement(requirement)
	if err != nil {
		g.logger.Error("failed to encode requirement", "resource", resource, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set(types.HeaderPaymentRequired, encoded)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)

	writeJSON(w, g.logger, types.ChallengeBody{
		Error:       "Payment Required",
		Amount:      token.FormatAmount(amount, g.decimals, g.symbol),
		Description: description,
	})
}

// writeError writes a payment failure response carrying the error kind.
func (g *Guard) writeError(w http.ResponseWriter, status int, kind types.ErrorKind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, g.logger, types.ErrorBody{Error: message, Kind: kind})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, body any) {
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Header already written so we log the error
		logger.Error("failed to write response", "error", err)
	}
}
