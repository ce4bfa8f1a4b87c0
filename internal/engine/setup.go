package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"derivbot-go/internal/config"
	"derivbot-go/internal/risk"
	"derivbot-go/internal/signal"
	"derivbot-go/internal/strategy"
	"derivbot-go/internal/venue"
)

// ConfigFor maps file settings onto engine parameters.
func ConfigFor(cfg *config.Config) Config {
	return Config{
		BaseStake: cfg.Trading.Stake,
		Limits: risk.Limits{
			StopWin:  cfg.Trading.StopWin,
			StopLoss: cfg.Trading.StopLoss,
			MaxStake: cfg.Risk.MaxStake,
		},
		Martingale: cfg.Trading.Martingale,
		Delay:      cfg.Delay(),
		Currency:   cfg.Venue.Currency,
	}
}

// SizerFor picks flat or percent sizing from the trading section.
func SizerFor(cfg *config.Config) (strategy.Sizer, error) {
	mode := strategy.ModeFlat
	if cfg.Trading.Percent {
		mode = strategy.ModePercent
	}
	return strategy.Build(mode, strategy.StaticBalance(cfg.Trading.Balance))
}

// Prepare builds an engine against the live venue with every schedule signal
// added. Schedule signals follow the global stops and martingale setting.
// Lines that failed to parse are returned in err alongside the engine, which
// is nil only when nothing usable was loaded.
func Prepare(cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	token, err := cfg.TokenLookup("")
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	sigs, parseErr := signal.LoadFile(cfg.Schedule.Path, loc)
	if len(sigs) == 0 {
		if parseErr != nil {
			return nil, parseErr
		}
		return nil, fmt.Errorf("schedule %s has no signals", cfg.Schedule.Path)
	}
	sizer, err := SizerFor(cfg)
	if err != nil {
		return nil, err
	}

	client := venue.NewClient(token, log, venue.WithEndpoint(cfg.Venue.Endpoint, cfg.Venue.AppID))
	eng := New(client, sizer, ConfigFor(cfg), log)
	for _, sig := range sigs {
		sig.UseGlobal = true
		eng.AddSignal(sig)
	}
	return eng, parseErr
}
