// Package execution runs the per-signal martingale loop against the venue.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"derivbot-go/internal/ledger"
	"derivbot-go/internal/metrics"
	"derivbot-go/internal/risk"
	"derivbot-go/internal/signal"
	"derivbot-go/internal/strategy"
	"derivbot-go/internal/venue"
)

// Venue is the subset of *venue.Client an executor drives.
type Venue interface {
	Acquire(ctx context.Context) error
	Release()
	Buy(ctx context.Context, req venue.BuyRequest) (venue.Receipt, error)
	SubscribeContract(ctx context.Context, id int64) error
	ForgetAll(ctx context.Context, kind string) error
	ReceiveOnce(ctx context.Context) (venue.Message, error)
	Generation() uint64
}

// Outcome is the terminal state of one signal's loop.
type Outcome string

const (
	Won                  Outcome = "won"
	BreakEven            Outcome = "break_even"
	StoppedBySignalLimit Outcome = "stopped_signal_limit"
	StoppedGlobally      Outcome = "stopped_globally"
	StoppedNoMartingale  Outcome = "stopped_no_martingale"
	StoppedMaxStake      Outcome = "stopped_max_stake"
	Aborted              Outcome = "aborted"
	Cancelled            Outcome = "cancelled"
)

// Result summarizes a finished signal.
type Result struct {
	Signal     signal.Signal
	Outcome    Outcome
	Trades     int
	WinAmount  decimal.Decimal
	LossAmount decimal.Decimal
	LastProfit decimal.Decimal
	FinalStake decimal.Decimal
	Err        error
}

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultPollAttempts = 300
	forgetTimeout       = 5 * time.Second
)

var (
	errHalted = errors.New("global stop in effect")
	two       = decimal.NewFromInt(2)
)

// Executor places and settles trades for signals. One Executor serves every
// signal of a run; per-signal state lives inside Run.
type Executor struct {
	venue        Venue
	state        *ledger.State
	sizer        strategy.Sizer
	trades       *ledger.Ledger
	log          zerolog.Logger
	delay        time.Duration
	currency     string
	pollInterval time.Duration
	pollAttempts int
	now          func() time.Time
}

// Option configures Executor construction parameters.
type Option func(*Executor)

// WithDelay starts each signal this long before its trigger time.
func WithDelay(d time.Duration) Option {
	return func(e *Executor) { e.delay = d }
}

// WithCurrency sets the account currency sent with buys.
func WithCurrency(currency string) Option {
	return func(e *Executor) {
		if currency != "" {
			e.currency = currency
		}
	}
}

// WithSettlementPolling overrides the settlement poll interval and attempt bound.
func WithSettlementPolling(interval time.Duration, attempts int) Option {
	return func(e *Executor) {
		if interval >= 0 {
			e.pollInterval = interval
		}
		if attempts > 0 {
			e.pollAttempts = attempts
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor wires an executor to the shared venue, state and ledger.
func NewExecutor(v Venue, state *ledger.State, sizer strategy.Sizer, trades *ledger.Ledger, log zerolog.Logger, opts ...Option) *Executor {
	if sizer == nil {
		sizer = strategy.Flat{}
	}
	if trades == nil {
		trades = ledger.NewLedger(0)
	}
	e := &Executor{
		venue:        v,
		state:        state,
		sizer:        sizer,
		trades:       trades,
		log:          log,
		currency:     "USD",
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type signalRun struct {
	sig    signal.Signal
	log    zerolog.Logger
	limits risk.Limits
	stake  decimal.Decimal
	res    Result
}

// Run waits for the signal's trigger time, then trades until a terminal outcome.
func (e *Executor) Run(ctx context.Context, sig signal.Signal) Result {
	r := &signalRun{
		sig:    sig,
		log:    e.log.With().Str("sym", sig.Symbol).Str("dir", string(sig.Direction)).Str("tf", sig.Timeframe.String()).Logger(),
		limits: risk.Limits{StopWin: sig.StopWin, StopLoss: sig.StopLoss, MaxStake: e.state.Limits().MaxStake},
		stake:  e.state.BaseStake(),
	}
	r.res.Signal = sig

	if wait := sig.Time.Add(-e.delay).Sub(e.now()); wait > 0 {
		r.log.Info().Dur("wait", wait).Msg("waiting for trigger")
		e.sleep(ctx, wait)
	}

	if sig.Martingale {
		r.log.Info().Msg("martingale run started")
	} else {
		r.log.Info().Msg("single trade started")
	}

	for r.res.Outcome == "" {
		switch {
		case !e.state.Running():
			r.res.Outcome = StoppedGlobally
		case ctx.Err() != nil:
			r.res.Outcome = Cancelled
		default:
			e.step(ctx, r)
		}
	}

	r.res.FinalStake = r.stake
	r.log.Info().
		Str("outcome", string(r.res.Outcome)).
		Int("trades", r.res.Trades).
		Str("last_profit", r.res.LastProfit.String()).
		Str("stake", r.stake.String()).
		Msg("signal finished")
	return r.res
}

// step runs one buy/settle/account iteration while holding the venue exclusively,
// so a global halt recorded here is seen before any other executor buys.
func (e *Executor) step(ctx context.Context, r *signalRun) {
	if err := e.venue.Acquire(ctx); err != nil {
		r.res.Outcome = e.interrupted()
		return
	}
	defer e.venue.Release()

	if !e.state.Running() {
		r.res.Outcome = StoppedGlobally
		return
	}

	amount, err := e.sizer.Amount(ctx, r.stake)
	if err != nil {
		e.abort(r, fmt.Errorf("stake amount: %w", err))
		return
	}

	profit, err := e.trade(ctx, r, amount)
	switch {
	case errors.Is(err, errHalted):
		r.res.Outcome = StoppedGlobally
		return
	case err != nil && ctx.Err() != nil:
		r.res.Outcome = e.interrupted()
		return
	case err != nil:
		e.abort(r, err)
		return
	}

	r.res.Trades++
	r.res.LastProfit = profit
	e.settle(r, profit)
}

// interrupted names the outcome of a cancelled wait: a global halt takes precedence.
func (e *Executor) interrupted() Outcome {
	if !e.state.Running() {
		return StoppedGlobally
	}
	return Cancelled
}

func (e *Executor) abort(r *signalRun, err error) {
	r.log.Error().Err(err).Msg("trade failed, aborting signal")
	r.res.Outcome = Aborted
	r.res.Err = err
}

// settle applies a settled profit to the signal and global accounting.
func (e *Executor) settle(r *signalRun, profit decimal.Decimal) {
	switch {
	case profit.IsPositive():
		r.log.Info().Str("profit", profit.String()).Msg("trade won")
		r.res.WinAmount = r.res.WinAmount.Add(profit)
		globalHit := e.state.AddWin(profit)
		r.stake = e.state.BaseStake()
		switch {
		case r.limits.WinReached(r.res.WinAmount):
			r.log.Info().Str("won", r.res.WinAmount.String()).Msg("signal stop win reached")
			r.res.Outcome = StoppedBySignalLimit
		case globalHit:
			r.log.Warn().Msg("global stop win reached, halting all signals")
			e.state.Halt("global stop win")
			r.res.Outcome = StoppedGlobally
		default:
			r.res.Outcome = Won
		}

	case profit.IsZero():
		r.log.Warn().Msg("trade broke even, not escalating stake")
		r.res.Outcome = BreakEven

	default:
		loss := profit.Neg()
		r.log.Info().Str("loss", loss.String()).Msg("trade lost")
		r.res.LossAmount = r.res.LossAmount.Add(loss)
		globalHit := e.state.AddLoss(loss)
		switch {
		case r.limits.LossReached(r.res.LossAmount):
			r.log.Info().Str("lost", r.res.LossAmount.String()).Msg("signal stop loss reached")
			r.res.Outcome = StoppedBySignalLimit
		case globalHit:
			r.log.Warn().Msg("global stop loss reached, halting all signals")
			e.state.Halt("global stop loss")
			r.res.Outcome = StoppedGlobally
		case !r.sig.Martingale:
			r.log.Info().Msg("martingale disabled for signal")
			r.res.Outcome = StoppedNoMartingale
		default:
			next := r.stake.Mul(two)
			if !r.limits.Allow(next) {
				r.log.Warn().Str("next_stake", next.String()).Msg("martingale stake above max stake")
				r.res.Outcome = StoppedMaxStake
				return
			}
			r.stake = next
			r.log.Info().Str("stake", next.String()).Msg("martingale retry")
		}
	}
}

// trade buys one contract and waits for its settlement profit.
func (e *Executor) trade(ctx context.Context, r *signalRun, amount decimal.Decimal) (decimal.Decimal, error) {
	r.log.Info().Str("amount", amount.String()).Msg("placing trade")
	receipt, err := e.venue.Buy(ctx, venue.BuyRequest{
		Symbol:       r.sig.Symbol,
		ContractType: string(r.sig.Direction),
		Duration:     r.sig.Timeframe.Magnitude,
		DurationUnit: r.sig.Timeframe.DurationUnit(),
		Amount:       amount,
		Currency:     e.currency,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("buy: %w", err)
	}
	if receipt.ContractID == 0 {
		return decimal.Zero, fmt.Errorf("%w: buy reply without contract_id: %s", venue.ErrProtocol, receipt.Raw)
	}
	metrics.TradesTotal.WithLabelValues(r.sig.Symbol, string(r.sig.Direction)).Inc()

	log := r.log.With().Int64("contract", receipt.ContractID).Int64("tx", receipt.TransactionID).Logger()
	profit, settled, err := e.awaitSettlement(ctx, log, receipt.ContractID)
	if err != nil {
		return decimal.Zero, err
	}

	e.trades.Record(ledger.Trade{
		Symbol:     r.sig.Symbol,
		Direction:  string(r.sig.Direction),
		Stake:      amount,
		ContractID: receipt.ContractID,
		TxID:       receipt.TransactionID,
		Profit:     profit,
		TimedOut:   !settled,
	})
	metrics.SettlementsTotal.WithLabelValues(r.sig.Symbol, settlementLabel(profit, settled)).Inc()
	return profit, nil
}

// awaitSettlement polls contract updates until the contract is sold or the
// attempt bound runs out, in which case profit is zero and settled is false.
func (e *Executor) awaitSettlement(ctx context.Context, log zerolog.Logger, id int64) (decimal.Decimal, bool, error) {
	if err := e.venue.SubscribeContract(ctx, id); err != nil {
		return decimal.Zero, false, fmt.Errorf("subscribe contract %d: %w", id, err)
	}
	gen := e.venue.Generation()

	for attempt := 0; attempt < e.pollAttempts; attempt++ {
		if ctx.Err() != nil {
			e.forget(log)
			return decimal.Zero, false, ctx.Err()
		}
		if !e.state.Running() {
			log.Warn().Msg("stopped while awaiting settlement")
			e.forget(log)
			return decimal.Zero, false, errHalted
		}

		msg, err := e.venue.ReceiveOnce(ctx)
		switch {
		case errors.Is(err, venue.ErrProtocol):
			log.Warn().Err(err).Msg("skipping undecodable frame")
		case errors.Is(err, venue.ErrReconnected):
			log.Warn().Err(err).Msg("connection dropped while awaiting settlement")
		case err != nil && ctx.Err() != nil:
			e.forget(log)
			return decimal.Zero, false, ctx.Err()
		case err != nil:
			return decimal.Zero, false, fmt.Errorf("await contract %d: %w", id, err)
		}

		if g := e.venue.Generation(); g != gen {
			gen = g
			log.Warn().Msg("connection replaced, resubscribing contract")
			if err := e.venue.SubscribeContract(ctx, id); err != nil {
				return decimal.Zero, false, fmt.Errorf("resubscribe contract %d: %w", id, err)
			}
		}

		if c, ok := msg.OpenContract(); ok && c.ID == id && c.Sold {
			e.forget(log)
			return c.Profit, true, nil
		}
		e.sleep(ctx, e.pollInterval)
	}

	log.Warn().Int("attempts", e.pollAttempts).Msg("timeout waiting for settlement, treating profit as 0")
	e.forget(log)
	return decimal.Zero, false, nil
}

// forget drops contract streams best-effort, on its own context so a
// cancelled run still unsubscribes.
func (e *Executor) forget(log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), forgetTimeout)
	defer cancel()
	if err := e.venue.ForgetAll(ctx, venue.StreamOpenContract); err != nil {
		log.Warn().Err(err).Msg("forget_all failed")
	}
}

// sleep waits for d, returning early on cancellation or a global halt.
func (e *Executor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-e.state.Done():
	}
}

func settlementLabel(profit decimal.Decimal, settled bool) string {
	switch {
	case !settled:
		return "timeout"
	case profit.IsPositive():
		return "won"
	case profit.IsZero():
		return "even"
	default:
		return "lost"
	}
}
