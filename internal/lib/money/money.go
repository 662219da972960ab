// Package money centralizes the price arithmetic used by the cart, the
// checkout orchestrator and the webhook reconciler, so discount and
// rounding behavior stays identical on both sides of a checkout.
package money

import "github.com/shopspring/decimal"

var (
	proRate = decimal.RequireFromString("0.8")
	hundred = decimal.NewFromInt(100)
)

// ApplyProDiscount returns the price with the fixed 20% pro discount,
// rounded to two decimals (half away from zero).
func ApplyProDiscount(price decimal.Decimal) decimal.Decimal {
	return price.Mul(proRate).Round(2)
}

// MinorUnits converts a two-decimal amount to integer minor currency
// units (cents) for the payment provider's line items.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// LineTotal multiplies a unit price by a quantity and rounds to two
// decimals.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}
