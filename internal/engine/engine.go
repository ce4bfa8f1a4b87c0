// Package engine supervises a run: one executor per signal plus the venue heartbeat.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"derivbot-go/internal/execution"
	"derivbot-go/internal/ledger"
	"derivbot-go/internal/metrics"
	"derivbot-go/internal/risk"
	"derivbot-go/internal/signal"
	"derivbot-go/internal/strategy"
)

// Client is the venue surface the engine needs on top of what executors use.
type Client interface {
	execution.Venue
	Connect(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

const defaultHeartbeat = 60 * time.Second

// Config holds run-wide parameters.
type Config struct {
	BaseStake         decimal.Decimal
	Limits            risk.Limits
	Martingale        bool
	Delay             time.Duration
	Currency          string
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	PollAttempts      int
}

// Summary is a point-in-time view of a run.
type Summary struct {
	State   ledger.Snapshot
	Trades  []ledger.Trade
	Net     decimal.Decimal // summed over Trades
	Results []execution.Result
}

// Engine owns the signal list and the lifecycle of a run.
type Engine struct {
	client Client
	sizer  strategy.Sizer
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	signals []signal.Signal
	running bool
	state   *ledger.State
	trades  *ledger.Ledger
	results []execution.Result
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds an idle engine.
func New(client Client, sizer strategy.Sizer, cfg Config, log zerolog.Logger) *Engine {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	return &Engine{
		client: client,
		sizer:  sizer,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		trades: ledger.NewLedger(0),
	}
}

// AddSignal inserts sig keeping the list ordered by trigger time. Signals with
// equal times keep insertion order.
func (e *Engine) AddSignal(sig signal.Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signals = append(e.signals, sig)
	sort.SliceStable(e.signals, func(i, j int) bool {
		return e.signals[i].Time.Before(e.signals[j].Time)
	})
}

// Signals returns a copy of the scheduled signals.
func (e *Engine) Signals() []signal.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]signal.Signal, len(e.signals))
	copy(out, e.signals)
	return out
}

// Running reports whether a run is in progress.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start connects to the venue and launches every signal. It returns once the
// run is underway; a second call while running is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.log.Warn().Msg("engine already running")
		return nil
	}

	signals := make([]signal.Signal, len(e.signals))
	for i, sig := range e.signals {
		if sig.UseGlobal {
			sig.StopWin = e.cfg.Limits.StopWin
			sig.StopLoss = e.cfg.Limits.StopLoss
			sig.Martingale = e.cfg.Martingale
		}
		signals[i] = sig
	}

	state := ledger.NewState(e.cfg.BaseStake, e.cfg.Limits)
	if err := e.client.Connect(ctx); err != nil {
		return fmt.Errorf("connect venue: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.state = state
	e.trades.Reset()
	e.results = nil
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true

	exec := execution.NewExecutor(e.client, state, e.sizer, e.trades, e.log,
		execution.WithDelay(e.cfg.Delay),
		execution.WithCurrency(e.cfg.Currency),
		execution.WithSettlementPolling(e.cfg.PollInterval, e.cfg.PollAttempts),
		execution.WithClock(e.now),
	)

	go func() {
		select {
		case <-state.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	hbCtx, stopHeartbeat := context.WithCancel(runCtx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		e.heartbeat(hbCtx)
	}()

	e.log.Info().Int("signals", len(signals)).Str("stake", e.cfg.BaseStake.String()).Msg("engine started")

	var g errgroup.Group
	results := make([]execution.Result, len(signals))
	for i, sig := range signals {
		g.Go(func() error {
			results[i] = exec.Run(runCtx, sig)
			return nil
		})
	}

	done := e.done
	go func() {
		_ = g.Wait()
		stopHeartbeat()
		<-hbDone
		cancel()
		if err := e.client.Close(); err != nil {
			e.log.Warn().Err(err).Msg("close venue")
		}

		e.mu.Lock()
		e.results = results
		e.running = false
		e.mu.Unlock()

		snap := state.Snapshot()
		e.log.Info().
			Str("won", snap.WinAmount.String()).
			Str("lost", snap.LossAmount.String()).
			Str("net", snap.Net().String()).
			Str("halt", snap.HaltReason).
			Msg("engine finished")
		close(done)
	}()
	return nil
}

// heartbeat pings the venue until ctx ends. Failures are logged and counted.
func (e *Engine) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		if err := e.client.Ping(ctx); err != nil && ctx.Err() == nil {
			metrics.HeartbeatFailuresTotal.Inc()
			e.log.Warn().Err(err).Msg("heartbeat failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop halts every signal and waits for the run to wind down. Safe when idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	state, cancel, done := e.state, e.cancel, e.done
	e.mu.Unlock()

	e.log.Info().Msg("stopping engine")
	state.Halt("stopped by operator")
	cancel()
	<-done
}

// Wait blocks until the current run ends or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Summary reports the latest run. Results are filled in once the run ends.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	var sum Summary
	if e.state != nil {
		sum.State = e.state.Snapshot()
		sum.State.Running = sum.State.Running && e.running
	} else {
		sum.State = ledger.Snapshot{BaseStake: e.cfg.BaseStake, StopWin: e.cfg.Limits.StopWin, StopLoss: e.cfg.Limits.StopLoss}
	}
	sum.Trades = e.trades.Snapshot()
	sum.Net = e.trades.Net()
	sum.Results = append(sum.Results, e.results...)
	return sum
}
