package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is one security-relevant record.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Username  string            `json:"username,omitempty"`
	Role      string            `json:"role,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(append(data, '\n'))
}

// DefaultStream is the Redis stream used by [StreamSink] when none is given.
const DefaultStream = "AUDIT_LOG"

// StreamSink appends events to a capped Redis stream. Write errors go to
// OnError when set and are otherwise dropped.
type StreamSink struct {
	redis   redis.UniversalClient
	stream  string
	maxLen  int64
	OnError func(error)
}

// NewStreamSink creates a sink capped at maxLen entries (0 = uncapped).
func NewStreamSink(redisClient redis.UniversalClient, stream string, maxLen int64) *StreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamSink{redis: redisClient, stream: stream, maxLen: maxLen}
}

func (s *StreamSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.redis == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	err = s.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Values: map[string]any{"type": event.EventType, "event": string(data)},
	}).Err()
	if err != nil && s.OnError != nil {
		s.OnError(err)
	}
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
