package logger

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
)

// WatermillAdapter forwards watermill's logs to zap
type WatermillAdapter struct {
	l *zap.Logger
}

// NewWatermillAdapter creates a watermill.LoggerAdapter backed by l
func NewWatermillAdapter(l *Logger) watermill.LoggerAdapter {
	return &WatermillAdapter{l: l.Logger.WithOptions(zap.AddCallerSkip(1))}
}

func fieldsOf(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func (a *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.l.Error(msg, append(fieldsOf(fields), zap.Error(err))...)
}

func (a *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.l.Info(msg, fieldsOf(fields)...)
}

func (a *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.l.Debug(msg, fieldsOf(fields)...)
}

func (a *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.l.Debug(msg, fieldsOf(fields)...)
}

func (a *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillAdapter{l: a.l.With(fieldsOf(fields)...)}
}
