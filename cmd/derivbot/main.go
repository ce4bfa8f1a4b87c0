package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"derivbot-go/internal/config"
	"derivbot-go/internal/engine"
	"derivbot-go/internal/metrics"
	"derivbot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	schedulePath := flag.String("schedule", "", "signal file, overrides schedule.path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *schedulePath != "" {
		cfg.Schedule.Path = *schedulePath
	}

	log := util.NewLogger(cfg.App.LogLevel).With().Str("app", cfg.App.Name).Str("env", cfg.App.Env).Logger()

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	eng, err := engine.Prepare(cfg, log)
	if eng == nil {
		log.Fatal().Err(err).Msg("prepare engine")
	}
	if err != nil {
		log.Warn().Err(err).Msg("skipped invalid schedule lines")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start engine")
	}

	if err := eng.Wait(ctx); errors.Is(err, context.Canceled) {
		log.Info().Msg("shutting down")
		eng.Stop()
	}

	printSummary(eng.Summary())
}

func printSummary(sum engine.Summary) {
	fmt.Println("\n--- Run Summary ---")
	for _, res := range sum.Results {
		line := fmt.Sprintf("%s  %-12s trades=%d won=%s lost=%s", res.Signal, res.Outcome, res.Trades, res.WinAmount, res.LossAmount)
		if res.Err != nil {
			line += "  err=" + res.Err.Error()
		}
		fmt.Println(line)
	}
	fmt.Printf("Trades: %d | ledger net: %s\n", len(sum.Trades), sum.Net)
	fmt.Printf("Global won: %s | lost: %s | net: %s\n", sum.State.WinAmount, sum.State.LossAmount, sum.State.Net())
	if sum.State.HaltReason != "" {
		fmt.Printf("Halted: %s\n", sum.State.HaltReason)
	}
}
