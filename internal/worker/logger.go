package worker

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = cronLogger{}

func newCronLogger(l *slog.Logger) cronLogger {
	if l == nil {
		l = slog.Default()
	}
	return cronLogger{logger: l}
}

// Info is used by cron for scheduling chatter; it goes to debug.
func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Error(msg, append(keysAndValues, "error", err)...)
}
