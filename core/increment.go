package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const centsPrecision int32 = 2 // all currency amounts settle to whole cents

var oneHundred = decimal.NewFromInt(100)

// RoundCents rounds a currency amount to the nearest cent, half away from
// zero. All bidding math rounds at the point of computation so drift cannot
// compound across repeated auto-bid cascades.
func RoundCents(amount float64) float64 {
	rounded, _ := decimal.NewFromFloat(amount).Round(centsPrecision).Float64()
	return rounded
}

// MinimumNextBid returns the smallest amount a new bid must reach to beat
// the current high bid under the session's increment percent.
//
// A zero (or absent) high bid returns 0: with no bids yet, any bid at or
// above the absolute minimum is acceptable. Otherwise the result is
// currentHighBid × (1 + incrementPercent/100), rounded to cents.
func MinimumNextBid(currentHighBid, incrementPercent float64) float64 {
	if currentHighBid <= 0 {
		return 0
	}

	high := decimal.NewFromFloat(currentHighBid)
	multiplier := oneHundred.Add(decimal.NewFromFloat(incrementPercent))

	next, _ := high.Mul(multiplier).Div(oneHundred).Round(centsPrecision).Float64()
	return next
}

// SuggestedBid computes a UI hint for the next bid: 15% over the current
// high, but never below the minimum-increment threshold. With no prior bids
// the suggestion is the absolute minimum.
func SuggestedBid(currentHighBid, minimumNextBid float64) float64 {
	if currentHighBid <= 0 {
		return AbsoluteMinimumBid
	}

	suggested, _ := decimal.NewFromFloat(currentHighBid).
		Mul(decimal.NewFromFloat(1.15)).
		Round(centsPrecision).
		Float64()

	if suggested < minimumNextBid {
		return minimumNextBid
	}
	return suggested
}

// FormatUSD renders a currency amount for user-facing messages.
func FormatUSD(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}
