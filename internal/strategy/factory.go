// Package strategy turns the martingale stake into the amount sent with a buy.
package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sizer converts the current stake into an order amount.
type Sizer interface {
	Amount(ctx context.Context, stake decimal.Decimal) (decimal.Decimal, error)
	Name() string
}

// BalanceSource reports the account balance used by percentage staking.
type BalanceSource interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// StaticBalance is a BalanceSource returning a fixed amount.
type StaticBalance decimal.Decimal

// Balance implements BalanceSource.
func (b StaticBalance) Balance(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(b), nil
}

const (
	ModeFlat    = "flat"
	ModePercent = "percent"
)

// Build returns a sizer for the configured mode. Percent mode requires a balance source.
func Build(mode string, balance BalanceSource) (Sizer, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeFlat, "fixed":
		return Flat{}, nil
	case ModePercent, "pct", "%":
		if balance == nil {
			return nil, fmt.Errorf("percent staking needs a balance source")
		}
		return Percent{Source: balance}, nil
	default:
		return nil, fmt.Errorf("unknown stake mode %q", mode)
	}
}

// Flat sends the stake as-is.
type Flat struct{}

func (Flat) Name() string { return ModeFlat }

func (Flat) Amount(_ context.Context, stake decimal.Decimal) (decimal.Decimal, error) {
	return stake.Round(2), nil
}

var hundred = decimal.NewFromInt(100)

// Percent treats the stake as a percentage of the current balance.
type Percent struct {
	Source BalanceSource
}

func (Percent) Name() string { return ModePercent }

func (p Percent) Amount(ctx context.Context, stake decimal.Decimal) (decimal.Decimal, error) {
	balance, err := p.Source.Balance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance: %w", err)
	}
	if !balance.IsPositive() {
		return decimal.Zero, fmt.Errorf("balance %s is not positive", balance)
	}
	return balance.Mul(stake).Div(hundred).Round(2), nil
}
