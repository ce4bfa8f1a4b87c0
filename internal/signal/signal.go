// Package signal standardizes the scheduled trade intents consumed by the execution engine.
package signal

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction enumerates the contract types a signal may request.
type Direction string

const (
	// Call bets the price finishes higher.
	Call Direction = "CALL"
	// Put bets the price finishes lower.
	Put Direction = "PUT"
)

// ParseDirection maps user input onto the closed direction set.
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CALL", "HIGH", "UP", "BUY":
		return Call, nil
	case "PUT", "LOW", "DOWN", "SELL":
		return Put, nil
	default:
		return "", fmt.Errorf("unknown direction %q", raw)
	}
}

// Timeframe is a contract duration such as M5 (five minutes).
type Timeframe struct {
	Unit      byte
	Magnitude int
}

var durationUnits = map[byte]string{
	'T': "t",
	'S': "s",
	'M': "m",
	'H': "h",
	'D': "d",
}

// ParseTimeframe reads a one-letter unit followed by a positive integer.
func ParseTimeframe(raw string) (Timeframe, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if len(raw) < 2 {
		return Timeframe{}, fmt.Errorf("timeframe %q too short", raw)
	}
	unit := raw[0]
	if _, ok := durationUnits[unit]; !ok {
		return Timeframe{}, fmt.Errorf("timeframe %q has unknown unit %q", raw, string(unit))
	}
	n := 0
	for _, r := range raw[1:] {
		if r < '0' || r > '9' {
			return Timeframe{}, fmt.Errorf("timeframe %q has non numeric magnitude", raw)
		}
		n = n*10 + int(r-'0')
		if n > 1_000_000 {
			return Timeframe{}, fmt.Errorf("timeframe %q magnitude out of range", raw)
		}
	}
	if n <= 0 {
		return Timeframe{}, fmt.Errorf("timeframe %q magnitude must be positive", raw)
	}
	return Timeframe{Unit: unit, Magnitude: n}, nil
}

// DurationUnit returns the venue's duration_unit code.
func (t Timeframe) DurationUnit() string { return durationUnits[t.Unit] }

func (t Timeframe) String() string {
	if t.Unit == 0 {
		return ""
	}
	return fmt.Sprintf("%c%d", t.Unit, t.Magnitude)
}

// Signal is one scheduled trade intent.
type Signal struct {
	Time       time.Time
	Symbol     string
	Direction  Direction
	Timeframe  Timeframe
	StopWin    decimal.Decimal // zero means unset
	StopLoss   decimal.Decimal // zero means unset
	Martingale bool
	UseGlobal  bool
}

// String renders the signal back in schedule-line form.
func (s Signal) String() string {
	return fmt.Sprintf("%s;%s;%s;%s", s.Time.Format("02/01/2006;15:04"), s.Symbol, s.Direction, s.Timeframe)
}
