// Package logging builds the structured logger used across every component of
// the CAS engine. The teacher carries no third-party logging library in its
// require block (no zap/zerolog/logrus appear anywhere in the pack's go.mod
// entry for it), so this sticks to stdlib log/slog — the closest idiomatic
// equivalent to the leveled, field-carrying logging that pkg/caserr's typed
// Kind taxonomy and pkg/content/errors.go's ErrorStats already imply.
package logging

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/brinevault/brine/pkg/caserr"
)

// Format selects the slog handler's wire encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Options configures New.
type Options struct {
	Level  slog.Level
	Format Format
	Output *os.File // defaults to os.Stderr
}

// New builds a *slog.Logger per opts, defaulting to JSON-on-stderr at Info
// level — matching the posture of a long-running daemon (cmd/casd) rather
// than an interactive CLI.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var handler slog.Handler
	if opts.Format == FormatText {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	return slog.New(handler)
}

// WithRealm returns a child logger annotating every record with the realm
// being operated on — every handler in pkg/httpapi derives its per-request
// logger this way.
func WithRealm(logger *slog.Logger, realm string) *slog.Logger {
	return logger.With(slog.String("realm", realm))
}

// LogError records err at a level derived from its caserr.Kind: internal
// failures are logged at Error, anything else (unauthorized, not_found,
// conflict, ...) is an expected client-facing outcome and logged at Warn so
// alerting can distinguish "a caller made a bad request" from "the engine
// broke."
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	level := slog.LevelWarn
	kind := caserr.Kind("unknown")

	var casErr *caserr.Error
	if errors.As(err, &casErr) {
		kind = casErr.Kind
		if casErr.Kind == caserr.KindInternal {
			level = slog.LevelError
		}
	} else {
		level = slog.LevelError
	}

	logger.Log(ctx, level, msg, slog.String("error_kind", string(kind)), slog.String("error", err.Error()))
}
