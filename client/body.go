package client

import (
	"encoding/json"

	"github.com/aureo-labs/x402-go/types"
)

// decodeErrorKind extracts the machine-readable error kind from a failure
// response body, if present.
func decodeErrorKind(body []byte) types.ErrorKind {
	var parsed types.ErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return parsed.Kind
}
