package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"derivbot-go/internal/risk"
)

func TestStateAccumulatesConcurrently(t *testing.T) {
	state := NewState(decimal.NewFromInt(1), risk.Limits{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			state.AddWin(decimal.NewFromFloat(0.5))
		}()
		go func() {
			defer wg.Done()
			state.AddLoss(decimal.NewFromFloat(0.25))
		}()
	}
	wg.Wait()

	snap := state.Snapshot()
	if !snap.WinAmount.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected win 25, got %s", snap.WinAmount)
	}
	if !snap.LossAmount.Equal(decimal.NewFromFloat(12.5)) {
		t.Fatalf("expected loss 12.5, got %s", snap.LossAmount)
	}
	if !snap.Net().Equal(decimal.NewFromFloat(12.5)) {
		t.Fatalf("unexpected net %s", snap.Net())
	}
	if !snap.Running {
		t.Fatalf("expected state still running")
	}
}

func TestStateThresholds(t *testing.T) {
	state := NewState(decimal.NewFromInt(1), risk.Limits{StopWin: decimal.NewFromInt(2), StopLoss: decimal.NewFromInt(3)})
	if state.AddWin(decimal.NewFromInt(1)) {
		t.Fatalf("stop win reported too early")
	}
	if !state.AddWin(decimal.NewFromInt(1)) {
		t.Fatalf("expected stop win at threshold")
	}
	if state.AddLoss(decimal.NewFromInt(2)) {
		t.Fatalf("stop loss reported too early")
	}
	if !state.AddLoss(decimal.NewFromInt(5)) {
		t.Fatalf("expected stop loss past threshold")
	}
}

func TestHaltIsVisibleAndIdempotent(t *testing.T) {
	state := NewState(decimal.NewFromInt(1), risk.Limits{})

	observed := make(chan struct{})
	go func() {
		<-state.Done()
		close(observed)
	}()

	state.Halt("global stop win")
	state.Halt("second reason")

	select {
	case <-observed:
	case <-time.After(time.Second):
		t.Fatalf("halt not observed")
	}
	if state.Running() {
		t.Fatalf("expected running cleared")
	}
	if got := state.Snapshot().HaltReason; got != "global stop win" {
		t.Fatalf("expected first reason kept, got %q", got)
	}
}
