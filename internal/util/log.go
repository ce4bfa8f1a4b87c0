package util

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return lvl
}

func NewLogger(level string) zerolog.Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo writes JSON events to w.
func NewLoggerTo(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
}

// NewLineLogger renders each event as one human readable line handed to sink.
func NewLineLogger(sink func(string), level string) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: &lineWriter{sink: sink}, NoColor: true, TimeFormat: "15:04:05"}
	return zerolog.New(out).With().Timestamp().Logger().Level(parseLevel(level))
}

// lineWriter splits written bytes on newlines and forwards complete lines.
type lineWriter struct {
	mu   sync.Mutex
	sink func(string)
	buf  bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// partial line, keep it for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		if w.sink != nil {
			w.sink(strings.TrimRight(line, "\r\n"))
		}
	}
}
