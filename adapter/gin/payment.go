// Package ginadapter adapts the x402 route guard to Gin handlers.
package ginadapter

import (
	"math/big"

	"github.com/gin-gonic/gin"

	"github.com/aureo-labs/x402-go/middleware"
)

// PayerKey is the Gin context key holding the authenticated payer address.
const PayerKey = "x402-payer"

// Payment creates a Gin middleware that gates the route at the given price.
// On success the payer address is stored under PayerKey; otherwise the guard
// has already written the 402 or error response and the chain is aborted.
func Payment(guard *middleware.Guard, amount *big.Int, description string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payer, ok := guard.Check(c.Writer, c.Request, amount, description)
		if !ok {
			c.Abort()
			return
		}
		c.Set(PayerKey, payer)
		c.Next()
	}
}

// Payer returns the authenticated payer address set by Payment.
func Payer(c *gin.Context) string {
	return c.GetString(PayerKey)
}
