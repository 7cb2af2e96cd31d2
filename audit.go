package goIdentity

import (
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
)

// AuditEvent is one identity mutation record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

type (
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
	SlogSink       = internalaudit.SlogSink
)

// NewChannelSink returns a sink buffering up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink returns a sink logging events at level.
func NewSlogSink(logger *slog.Logger, level slog.Level) *SlogSink {
	return internalaudit.NewSlogSink(logger, level)
}
