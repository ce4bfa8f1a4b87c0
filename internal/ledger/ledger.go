package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is one settled (or timed out) contract.
type Trade struct {
	ID         string
	Symbol     string
	Direction  string
	Stake      decimal.Decimal
	ContractID int64
	TxID       int64
	Profit     decimal.Decimal
	TimedOut   bool
	SettledAt  time.Time
}

// Ledger stores settled trades in memory for the end-of-run summary.
type Ledger struct {
	mu     sync.Mutex
	trades []Trade
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{trades: make([]Trade, 0, capacity)}
}

// Record appends a trade, assigning an ID and settlement time when missing.
func (l *Ledger) Record(trade Trade) Trade {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.SettledAt.IsZero() {
		trade.SettledAt = time.Now()
	}
	l.mu.Lock()
	l.trades = append(l.trades, trade)
	l.mu.Unlock()
	return trade
}

// Snapshot returns a copy of the recorded trades.
func (l *Ledger) Snapshot() []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Net sums profit over every recorded trade.
func (l *Ledger) Net() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for _, t := range l.trades {
		total = total.Add(t.Profit)
	}
	return total
}

// Reset clears all stored trades.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.trades = l.trades[:0]
	l.mu.Unlock()
}
