package risk

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAllow(t *testing.T) {
	limits := Limits{MaxStake: decimal.NewFromInt(50)}
	if !limits.Allow(decimal.NewFromFloat(49.9)) {
		t.Fatalf("expected stake under limit to pass")
	}
	if !limits.Allow(decimal.NewFromInt(50)) {
		t.Fatalf("expected stake at limit to pass")
	}
	if limits.Allow(decimal.NewFromFloat(50.1)) {
		t.Fatalf("expected stake above limit to fail")
	}
	if limits.Allow(decimal.Zero) {
		t.Fatalf("expected zero stake to fail")
	}
	if !(Limits{}).Allow(decimal.NewFromInt(1_000_000)) {
		t.Fatalf("expected unlimited stake when MaxStake unset")
	}
}

func TestThresholds(t *testing.T) {
	limits := Limits{StopWin: decimal.NewFromInt(10), StopLoss: decimal.NewFromInt(5)}
	if limits.WinReached(decimal.NewFromFloat(9.99)) {
		t.Fatalf("stop win reached too early")
	}
	if !limits.WinReached(decimal.NewFromInt(10)) {
		t.Fatalf("expected stop win at threshold")
	}
	if !limits.LossReached(decimal.NewFromInt(6)) {
		t.Fatalf("expected stop loss above threshold")
	}
	var unset Limits
	if unset.WinReached(decimal.NewFromInt(1000)) || unset.LossReached(decimal.NewFromInt(1000)) {
		t.Fatalf("unset thresholds must never trigger")
	}
}
