package dnsgate

import (
	"io"

	internalaudit "github.com/MrEthical07/dnsgate/internal/audit"
	"github.com/redis/go-redis/v9"
)

// AuditEvent is one security-relevant event. It never carries secrets,
// digests or tokens.
type AuditEvent = internalaudit.Event

// AuditSink receives events from the Engine's asynchronous dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers events on a buffered channel; used in tests.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// StreamSink appends events to a capped Redis stream.
type StreamSink = internalaudit.StreamSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewStreamSink appends to stream (AUDIT_LOG when empty), trimming it to
// roughly maxLen entries.
func NewStreamSink(rdb redis.UniversalClient, stream string, maxLen int64) *StreamSink {
	return internalaudit.NewStreamSink(rdb, stream, maxLen)
}
