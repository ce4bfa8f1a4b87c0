package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"derivbot-go/internal/config"
	"derivbot-go/internal/engine"
	"derivbot-go/internal/signal"
	"derivbot-go/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== DerivBot Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit stake and stops")
		fmt.Println("3) Validate schedule")
		fmt.Println("4) Save config")
		fmt.Println("5) Launch bot")
		fmt.Println("6) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editTrading(reader, cfg)
		case "3":
			validateSchedule(cfg)
		case "4":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "5":
			launchBot(reader, cfg)
		case "6":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Account: %s (%s) via %s\n", orDash(cfg.Venue.Account), cfg.Venue.Currency, cfg.Venue.Endpoint)
	mode := "flat"
	if cfg.Trading.Percent {
		mode = fmt.Sprintf("percent of %s", cfg.Trading.Balance)
	}
	fmt.Printf("Stake: %s (%s)\n", cfg.Trading.Stake, mode)
	fmt.Printf("Delay: %ds | Martingale: %t | Max stake: %s\n", cfg.Trading.DelaySecs, cfg.Trading.Martingale, unlimited(cfg.Risk.MaxStake))
	fmt.Printf("Stop win: %s | Stop loss: %s\n", unlimited(cfg.Trading.StopWin), unlimited(cfg.Trading.StopLoss))
	fmt.Printf("Schedule: %s (zone %s)\n", cfg.Schedule.Path, orDash(cfg.Schedule.Timezone))
}

func editTrading(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Stake / Stops ---")
	cfg.Trading.Stake = promptDecimal(reader, "Stake", cfg.Trading.Stake)
	cfg.Trading.DelaySecs = promptInt(reader, "Delay (seconds)", cfg.Trading.DelaySecs)
	cfg.Trading.Percent = promptBool(reader, "Stake as percent of balance", cfg.Trading.Percent)
	if cfg.Trading.Percent {
		cfg.Trading.Balance = promptDecimal(reader, "Balance", cfg.Trading.Balance)
	}
	cfg.Trading.Martingale = promptBool(reader, "Martingale", cfg.Trading.Martingale)
	cfg.Trading.StopWin = promptDecimal(reader, "Stop win (0 = off)", cfg.Trading.StopWin)
	cfg.Trading.StopLoss = promptDecimal(reader, "Stop loss (0 = off)", cfg.Trading.StopLoss)
	cfg.Risk.MaxStake = promptDecimal(reader, "Max stake (0 = off)", cfg.Risk.MaxStake)
	if err := cfg.Validate(); err != nil {
		fmt.Printf("warning: %v\n", err)
	}
}

func validateSchedule(cfg *config.Config) {
	loc, err := cfg.Location()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return
	}
	sigs, err := signal.LoadFile(cfg.Schedule.Path, loc)
	for _, sig := range sigs {
		fmt.Println("  ", sig)
	}
	fmt.Printf("%d valid signals\n", len(sigs))
	if err != nil {
		fmt.Printf("problems:\n%v\n", err)
	}
}

func launchBot(reader *bufio.Reader, cfg *config.Config) {
	log := util.NewLineLogger(func(line string) { fmt.Println("[bot]", line) }, cfg.App.LogLevel)

	eng, err := engine.Prepare(cfg, log)
	if eng == nil {
		fmt.Fprintf(os.Stderr, "cannot launch: %v\n", err)
		return
	}
	if err != nil {
		fmt.Printf("skipping invalid lines:\n%v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start bot: %v\n", err)
		return
	}

	fmt.Print("\nBot running. Press ENTER to stop and return to menu...\n")
	_, _ = reader.ReadString('\n')
	eng.Stop()

	sum := eng.Summary()
	fmt.Printf("Trades: %d (net %s) | won %s | lost %s | net %s\n", len(sum.Trades), sum.Net, sum.State.WinAmount, sum.State.LossAmount, sum.State.Net())
	for _, res := range sum.Results {
		fmt.Printf("  %s -> %s\n", res.Signal, res.Outcome)
	}
}

func promptDecimal(reader *bufio.Reader, label string, current decimal.Decimal) decimal.Decimal {
	fmt.Printf("%s [%s]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := decimal.NewFromString(line)
	if err != nil {
		fmt.Printf("invalid number, keeping %s\n", current)
		return current
	}
	return val
}

func promptInt(reader *bufio.Reader, label string, current int) int {
	fmt.Printf("%s [%d]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.Atoi(line)
	if err != nil {
		fmt.Printf("invalid number, keeping %d\n", current)
		return current
	}
	return val
}

func promptBool(reader *bufio.Reader, label string, current bool) bool {
	fmt.Printf("%s (y/n) [%t]: ", label, current)
	line, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "true":
		return true
	case "n", "no", "false":
		return false
	default:
		return current
	}
}

func unlimited(d decimal.Decimal) string {
	if !d.IsPositive() {
		return "off"
	}
	return d.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}
