// Package bracket derives stop-loss and take-profit prices for an entry.
package bracket

import (
	"fmt"

	"bracket-engine/internal/domain/entity/trading"

	"github.com/shopspring/decimal"
)

// PricePrecision is the number of decimal places prices are rounded to.
// Rounding is half-to-even so the same inputs always land on the same tick.
const PricePrecision int32 = 2

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// ComputeLevels returns the bracket around entry for the given side.
//
//	Long:  SL = entry * (1 - sl%/100), TP = entry * (1 + tp%/100)
//	Short: SL = entry * (1 + sl%/100), TP = entry * (1 - tp%/100)
func ComputeLevels(entry, stopLossPct, takeProfitPct decimal.Decimal, side trading.Side) (trading.BracketLevels, error) {
	if !side.IsValid() {
		return trading.BracketLevels{}, fmt.Errorf("%w: %q", trading.ErrInvalidSide, side)
	}
	if !entry.IsPositive() {
		return trading.BracketLevels{}, fmt.Errorf("%w: entry price must be positive, got %s", trading.ErrInvalidInput, entry)
	}
	if stopLossPct.IsNegative() {
		return trading.BracketLevels{}, fmt.Errorf("%w: stop-loss pct must be >= 0, got %s", trading.ErrInvalidInput, stopLossPct)
	}
	if takeProfitPct.IsNegative() {
		return trading.BracketLevels{}, fmt.Errorf("%w: take-profit pct must be >= 0, got %s", trading.ErrInvalidInput, takeProfitPct)
	}

	slOffset := stopLossPct.Div(hundred)
	tpOffset := takeProfitPct.Div(hundred)

	var stopLoss, takeProfit decimal.Decimal
	switch side {
	case trading.SideLong:
		stopLoss = entry.Mul(one.Sub(slOffset))
		takeProfit = entry.Mul(one.Add(tpOffset))
	case trading.SideShort:
		stopLoss = entry.Mul(one.Add(slOffset))
		takeProfit = entry.Mul(one.Sub(tpOffset))
	}

	levels := trading.BracketLevels{
		Entry:      Round(entry),
		StopLoss:   Round(stopLoss),
		TakeProfit: Round(takeProfit),
	}
	if !levels.StopLoss.IsPositive() || !levels.TakeProfit.IsPositive() {
		return trading.BracketLevels{}, fmt.Errorf("%w: bracket %s/%s around %s is not positive",
			trading.ErrInvalidInput, levels.StopLoss, levels.TakeProfit, levels.Entry)
	}
	if collapsed(levels, stopLossPct, takeProfitPct, side) {
		return trading.BracketLevels{}, fmt.Errorf("%w: bracket %s/%s collapses onto entry %s at %d decimals",
			trading.ErrInvalidInput, levels.StopLoss, levels.TakeProfit, levels.Entry, PricePrecision)
	}
	return levels, nil
}

// collapsed reports whether a non-zero offset rounded back onto the entry.
func collapsed(l trading.BracketLevels, stopLossPct, takeProfitPct decimal.Decimal, side trading.Side) bool {
	if side == trading.SideShort {
		return (stopLossPct.IsPositive() && !l.StopLoss.GreaterThan(l.Entry)) ||
			(takeProfitPct.IsPositive() && !l.TakeProfit.LessThan(l.Entry))
	}
	return (stopLossPct.IsPositive() && !l.StopLoss.LessThan(l.Entry)) ||
		(takeProfitPct.IsPositive() && !l.TakeProfit.GreaterThan(l.Entry))
}

// Round rounds a price to PricePrecision places, half to even.
func Round(price decimal.Decimal) decimal.Decimal {
	return price.RoundBank(PricePrecision)
}
