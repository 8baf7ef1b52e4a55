package connection

import "github.com/rs/zerolog"

// ZerologLogger adapts a [zerolog.Logger] to the [RequestLogger]
// interface.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps logger for use with [WithRequestLogger].
func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger}
}

func (l *ZerologLogger) Errorf(format string, v ...any) {
	l.logger.Error().Msgf(format, v...)
}

func (l *ZerologLogger) Warnf(format string, v ...any) {
	l.logger.Warn().Msgf(format, v...)
}

func (l *ZerologLogger) Debugf(format string, v ...any) {
	l.logger.Debug().Msgf(format, v...)
}
