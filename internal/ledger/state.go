// Package ledger holds the in-memory accounting shared by every running signal.
package ledger

import (
	"sync"

	"github.com/shopspring/decimal"

	"derivbot-go/internal/metrics"
	"derivbot-go/internal/risk"
)

// State is the global execution state: base stake, global thresholds,
// accumulated win/loss and the shared running flag.
type State struct {
	mu         sync.Mutex
	baseStake  decimal.Decimal
	limits     risk.Limits
	winAmount  decimal.Decimal
	lossAmount decimal.Decimal
	haltReason string
	done       chan struct{}
	haltOnce   sync.Once
}

// Snapshot is a copy of State at one instant.
type Snapshot struct {
	BaseStake  decimal.Decimal
	StopWin    decimal.Decimal
	StopLoss   decimal.Decimal
	WinAmount  decimal.Decimal
	LossAmount decimal.Decimal
	Running    bool
	HaltReason string
}

// NewState returns a running State with the supplied base stake and global limits.
func NewState(baseStake decimal.Decimal, limits risk.Limits) *State {
	return &State{
		baseStake: baseStake,
		limits:    limits,
		done:      make(chan struct{}),
	}
}

// BaseStake returns the configured starting stake.
func (s *State) BaseStake() decimal.Decimal { return s.baseStake }

// Limits returns the global thresholds.
func (s *State) Limits() risk.Limits { return s.limits }

// Running reports whether no halt has been requested.
func (s *State) Running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Done is closed once the state is halted.
func (s *State) Done() <-chan struct{} { return s.done }

// Halt clears the running flag. Only the first reason is kept.
func (s *State) Halt(reason string) {
	s.haltOnce.Do(func() {
		s.mu.Lock()
		s.haltReason = reason
		s.mu.Unlock()
		close(s.done)
	})
}

// AddWin accumulates profit and reports whether the global stop-win is reached.
func (s *State) AddWin(amount decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.winAmount = s.winAmount.Add(amount)
	metrics.GlobalWinAmount.Set(s.winAmount.InexactFloat64())
	return s.limits.WinReached(s.winAmount)
}

// AddLoss accumulates a positive loss amount and reports whether the global stop-loss is reached.
func (s *State) AddLoss(amount decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lossAmount = s.lossAmount.Add(amount)
	metrics.GlobalLossAmount.Set(s.lossAmount.InexactFloat64())
	return s.limits.LossReached(s.lossAmount)
}

// Snapshot returns a consistent copy of the counters.
func (s *State) Snapshot() Snapshot {
	running := s.Running()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		BaseStake:  s.baseStake,
		StopWin:    s.limits.StopWin,
		StopLoss:   s.limits.StopLoss,
		WinAmount:  s.winAmount,
		LossAmount: s.lossAmount,
		Running:    running,
		HaltReason: s.haltReason,
	}
}

// Net returns accumulated wins minus losses.
func (s Snapshot) Net() decimal.Decimal { return s.WinAmount.Sub(s.LossAmount) }
