package sessions

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/OrderTrack/internal/broker/messages"
)

// EventSink receives every event a session produces. Publish must not block
// the poll loop.
type EventSink interface {
	Publish(ev messages.OrderTrackingEvent)
}

type NopSink struct{}

func (NopSink) Publish(messages.OrderTrackingEvent) {}

type Producer interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

const (
	defaultSinkBuffer  = 1024
	publishAttempts    = 10
	publishBackoffStep = 150 * time.Millisecond
)

// KafkaSink buffers events and publishes them from its own goroutine, keyed by
// order id. A full buffer drops the event with a warning.
type KafkaSink struct {
	producer Producer
	topic    string
	ch       chan messages.OrderTrackingEvent
	backoff  time.Duration
}

func NewKafkaSink(producer Producer, topic string, buffer int) *KafkaSink {
	if topic == "" {
		topic = messages.TopicOrderTracking
	}
	if buffer <= 0 {
		buffer = defaultSinkBuffer
	}
	return &KafkaSink{
		producer: producer,
		topic:    topic,
		ch:       make(chan messages.OrderTrackingEvent, buffer),
		backoff:  publishBackoffStep,
	}
}

func (s *KafkaSink) Publish(ev messages.OrderTrackingEvent) {
	select {
	case s.ch <- ev:
	default:
		slog.Warn("tracking event dropped: sink buffer full", "order_id", ev.OrderID, "type", string(ev.Type))
	}
}

// Run drains the buffer until ctx is done. Events still buffered at that
// point are flushed with a short deadline.
func (s *KafkaSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return ctx.Err()
		case ev := <-s.ch:
			s.publish(ctx, ev)
		}
	}
}

func (s *KafkaSink) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-s.ch:
			if err := s.producer.PublishJSON(ctx, s.topic, ev.OrderID, ev); err != nil {
				slog.Warn("tracking event lost on shutdown", "order_id", ev.OrderID, "error", err.Error())
			}
		default:
			return
		}
	}
}

func (s *KafkaSink) publish(ctx context.Context, ev messages.OrderTrackingEvent) {
	var err error
	for i := 0; i < publishAttempts; i++ {
		err = s.producer.PublishJSON(ctx, s.topic, ev.OrderID, ev)
		if err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(i+1) * s.backoff):
		}
	}
	slog.Error("publish tracking event", "order_id", ev.OrderID, "event_id", ev.EventID, "error", err.Error())
}
