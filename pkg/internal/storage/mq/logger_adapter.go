package mq

import (
	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// zerologAdapter 把 watermill 的日志接口写到 zerolog.
type zerologAdapter struct {
	l zerolog.Logger
}

// NewLoggerAdapter 返回带 component=mq 字段的 watermill 日志适配器.
func NewLoggerAdapter(l *zerolog.Logger) watermill.LoggerAdapter {
	return zerologAdapter{l: l.With().Str("component", "mq").Logger()}
}

// emit 写出一条事件，watermill 的 Trace 级别对应 zerolog Trace.
func emit(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	if ev == nil {
		return
	}

	ev.Fields(map[string]any(fields)).Msg(msg)
}

func (z zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	emit(z.l.Error().Err(err), msg, fields)
}

func (z zerologAdapter) Info(msg string, fields watermill.LogFields) {
	emit(z.l.Info(), msg, fields)
}

func (z zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	emit(z.l.Debug(), msg, fields)
}

func (z zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	emit(z.l.Trace(), msg, fields)
}

func (z zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return zerologAdapter{l: z.l.With().Fields(map[string]any(fields)).Logger()}
}
