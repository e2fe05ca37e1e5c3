package token

import (
	"fmt"
	"math/big"
)

// FormatAmount renders a minor-unit amount as a human-readable string, for
// example 10000 with 6 decimals and symbol USDC becomes "$0.01 USDC".
// Amounts below one cent are shown with four decimal places.
func FormatAmount(amount *big.Int, decimals uint8, symbol string) string {
	if amount == nil {
		amount = big.NewInt(0)
	}

	// Scale the minor-unit amount to a decimal value
	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value := new(big.Rat).SetInt(amount)
	value.Quo(value, scale)

	// Use four decimal places below one cent, two otherwise
	places := 2
	cent := big.NewRat(1, 100)
	if value.Cmp(cent) < 0 {
		places = 4
	}

	return fmt.Sprintf("$%s %s", value.FloatString(places), symbol)
}
