package signal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const lineLayout = "02/01/2006 15:04"

// pairAliases maps short currency-pair codes to venue instrument codes.
var pairAliases = map[string]string{
	"EURUSD": "frxEURUSD",
	"GBPUSD": "frxGBPUSD",
	"GBPJPY": "frxGBPJPY",
	"AUDJPY": "frxAUDJPY",
	"EURGBP": "frxEURGBP",
	"EURJPY": "frxEURJPY",
}

// ResolveSymbol returns the venue code for a pair, or the upper-cased input when unlisted.
func ResolveSymbol(raw string) string {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if alias, ok := pairAliases[sym]; ok {
		return alias
	}
	return sym
}

// ParseError reports a schedule line that could not become a Signal.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("schedule line %d %q: %s", e.Line, e.Text, e.Reason)
	}
	return fmt.Sprintf("schedule line %q: %s", e.Text, e.Reason)
}

// ParseLine parses DD/MM/YYYY;HH:MM;SYMBOL;DIRECTION;TIMEFRAME in the given location.
func ParseLine(line string, loc *time.Location) (Signal, error) {
	return parseLine(0, line, loc)
}

func parseLine(n int, line string, loc *time.Location) (Signal, error) {
	if loc == nil {
		loc = time.Local
	}
	parts := strings.Split(line, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) != 5 {
		return Signal{}, &ParseError{Line: n, Text: line, Reason: fmt.Sprintf("expected 5 fields, got %d", len(parts))}
	}
	ts, err := time.ParseInLocation(lineLayout, parts[0]+" "+parts[1], loc)
	if err != nil {
		return Signal{}, &ParseError{Line: n, Text: line, Reason: fmt.Sprintf("invalid date/time: %v", err)}
	}
	if parts[2] == "" {
		return Signal{}, &ParseError{Line: n, Text: line, Reason: "empty symbol"}
	}
	dir, err := ParseDirection(parts[3])
	if err != nil {
		return Signal{}, &ParseError{Line: n, Text: line, Reason: err.Error()}
	}
	tf, err := ParseTimeframe(parts[4])
	if err != nil {
		return Signal{}, &ParseError{Line: n, Text: line, Reason: err.Error()}
	}
	return Signal{
		Time:      ts,
		Symbol:    ResolveSymbol(parts[2]),
		Direction: dir,
		Timeframe: tf,
	}, nil
}

// ParseSchedule reads one signal per line, skipping blanks and # comments.
// Lines that fail are reported in the joined error and left out of the result.
func ParseSchedule(r io.Reader, loc *time.Location) ([]Signal, error) {
	var (
		out  []Signal
		errs []error
	)
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sig, err := parseLine(n, line, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, sig)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Errorf("read schedule: %w", err))
	}
	return out, errors.Join(errs...)
}

// LoadFile parses the schedule stored at path.
func LoadFile(path string, loc *time.Location) ([]Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schedule: %w", err)
	}
	defer f.Close()
	return ParseSchedule(f, loc)
}
