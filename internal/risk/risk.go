// Package risk evaluates stop-win, stop-loss and stake ceilings.
package risk

import "github.com/shopspring/decimal"

// Limits holds cumulative thresholds. A zero value disables that check.
type Limits struct {
	StopWin  decimal.Decimal
	StopLoss decimal.Decimal
	MaxStake decimal.Decimal
}

// WinReached reports whether accumulated profit met or exceeded StopWin.
func (l Limits) WinReached(total decimal.Decimal) bool {
	return l.StopWin.IsPositive() && total.GreaterThanOrEqual(l.StopWin)
}

// LossReached reports whether accumulated loss met or exceeded StopLoss.
func (l Limits) LossReached(total decimal.Decimal) bool {
	return l.StopLoss.IsPositive() && total.GreaterThanOrEqual(l.StopLoss)
}

// Allow reports whether a stake fits under MaxStake.
func (l Limits) Allow(stake decimal.Decimal) bool {
	if !stake.IsPositive() {
		return false
	}
	return !l.MaxStake.IsPositive() || stake.LessThanOrEqual(l.MaxStake)
}
