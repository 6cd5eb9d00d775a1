package pg

import (
	"context"
	"time"

	"logrep/internal/platform/logger"
	"logrep/internal/platform/strings"

	"github.com/rs/zerolog"
)

// QueryEvent describes one executed statement
type QueryEvent struct {
	SQL     string
	Args    []any
	Elapsed time.Duration
	Rows    int
	Err     error
	Slow    bool
}

// QueryTracer receives every statement run through PG.Query
type QueryTracer interface {
	OnQuery(ctx context.Context, ev QueryEvent)
}

// Tracer logs every statement on a child of root pinned at debug, so SQL
// shows up even when the root level is higher. Failures log at error and
// slow statements at warn
func Tracer(root logger.Logger) QueryTracer {
	return &zlTracer{log: root.Level(zerolog.DebugLevel).With().Str("component", "pg").Logger()}
}

type zlTracer struct{ log logger.Logger }

func (z *zlTracer) OnQuery(_ context.Context, ev QueryEvent) {
	var evt *zerolog.Event
	switch {
	case ev.Err != nil:
		evt = z.log.Error().Err(ev.Err)
	case ev.Slow:
		evt = z.log.Warn()
	default:
		evt = z.log.Debug()
	}
	evt.Dur("elapsed", ev.Elapsed).
		Int("rows", ev.Rows).
		Bool("slow", ev.Slow).
		Str("sql", strings.CompactSpace(ev.SQL)).
		Interface("args", ev.Args).
		Msg("consdb query")
}
