package redisstream

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// ZerologAdapter routes Watermill logs into zerolog. Watermill's info level is
// chatty, so it is logged at debug.
type ZerologAdapter struct {
	logger zerolog.Logger
}

var _ watermill.LoggerAdapter = ZerologAdapter{}

func NewZerologAdapter(l zerolog.Logger) ZerologAdapter {
	return ZerologAdapter{logger: l.With().Str("component", "watermill").Logger()}
}

func (a ZerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a ZerologAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a ZerologAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a ZerologAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a ZerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return ZerologAdapter{logger: a.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}
