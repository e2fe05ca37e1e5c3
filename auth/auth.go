// Package auth guards operator endpoints (agent settings, status) with an
// API key. It is separate from x402 payment gating: payments authenticate
// payers, the API key authenticates the service operator.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/aureo-labs/x402-go/utils"
)

// HeaderAPIKey is the request header carrying the operator API key.
const HeaderAPIKey = "X-API-Key"

// Authenticate checks the request's API key against the configured key.
// An empty configured key disables the check.
func Authenticate(r *http.Request, apiKey string) error {

	// Check if an API key is required
	if apiKey == "" {
		return nil
	}

	// Get the API key from the request header
	providedKey := r.Header.Get(HeaderAPIKey)

	// Check if the provided key does not match the configured key
	if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
		return utils.NewStatusError(
			errors.New("unauthorized"),
			http.StatusUnauthorized,
		)
	}

	return nil
}
