package logging

import (
	"time"

	"github.com/rs/zerolog"
)

// WithUser tags log lines with the signed-in user.
func WithUser(logger zerolog.Logger, uid string) zerolog.Logger {
	return logger.With().Str("user_id", uid).Logger()
}

// WithTradeID tags log lines with a trade.
func WithTradeID(logger zerolog.Logger, tradeID string) zerolog.Logger {
	return logger.With().Str("trade_id", tradeID).Logger()
}

// WithComponent tags log lines with the subsystem that wrote them.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// LogSnapshot records a snapshot replacing a user's trade list.
func LogSnapshot(logger zerolog.Logger, collection string, docs int, version uint64) {
	logger.Debug().
		Str("event", "snapshot").
		Str("collection", collection).
		Int("documents", docs).
		Uint64("version", version).
		Msg("Snapshot applied")
}

// LogMutation records how a write request ended.
func LogMutation(logger zerolog.Logger, op string, count int, err error) {
	var ev *zerolog.Event
	if err != nil {
		ev = logger.Error().Err(err)
	} else {
		ev = logger.Info()
	}
	ev = ev.Str("event", "mutation").Str("op", op).Int("count", count)
	if err != nil {
		ev.Msg("Mutation rejected")
		return
	}
	ev.Msg("Mutation fulfilled")
}

// LogAPICall records an outbound request at debug level.
func LogAPICall(logger zerolog.Logger, method, endpoint string, duration time.Duration, err error) {
	ev := logger.Debug().
		Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("duration", duration)
	if err != nil {
		ev.Err(err).Msg("API call failed")
		return
	}
	ev.Msg("API call completed")
}
