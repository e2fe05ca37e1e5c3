package middleware

import "errors"

var errMissingVerifier = errors.New("verifier is required")
