package kafka

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// ErrPoison marks a message that can never be handled. It is logged and
// committed instead of stopping the consumer.
var ErrPoison = errors.New("poison message")

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic in a consumer group with explicit commits.
type Consumer struct {
	r messageReader

	handled  atomic.Int64
	poisoned atomic.Int64
	lastAt   atomic.Int64 // unix nanos of the last commit
}

type ConsumerStats struct {
	Handled    int64      `json:"handled"`
	Poisoned   int64      `json:"poisoned"`
	LastCommit *time.Time `json:"lastCommit,omitempty"`
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		StartOffset:       kafka.FirstOffset,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return newConsumerWithReader(kafka.NewReader(cfg))
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume hands every message to handler and commits it afterwards. Poison
// messages are committed too; any other handler error returns without a
// commit so the message is redelivered.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}

		herr := handler(msg.Key, msg.Value)
		switch {
		case herr == nil:
			c.handled.Add(1)
		case errors.Is(herr, ErrPoison):
			c.poisoned.Add(1)
			slog.Warn("skip poison message",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", herr.Error())
		default:
			return herr
		}

		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
		c.lastAt.Store(time.Now().UnixNano())
	}
}

func (c *Consumer) Stats() ConsumerStats {
	st := ConsumerStats{Handled: c.handled.Load(), Poisoned: c.poisoned.Load()}
	if n := c.lastAt.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCommit = &t
	}
	return st
}
