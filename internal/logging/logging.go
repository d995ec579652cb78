// Package logging wraps zerolog behind a single constructor so every
// command logs the same way: structured JSON on stderr, leveled, RFC 3339
// timestamps. Stderr keeps log output out of the report stream when a
// stdout report sink is in use.
package logging

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger embeds zerolog.Logger so call sites use its fluent API directly.
type Logger struct{ zerolog.Logger }

// New creates a Logger at the given level. Unknown level strings fall back
// to info.
func New(level string) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	z := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl)
	return &Logger{z}
}

// HTTPLogger logs one line per served request.
func (l *Logger) HTTPLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		l.Info().Str("method", r.Method).Str("path", r.URL.Path).Dur("dur", time.Since(start)).Msg("http")
	})
}
