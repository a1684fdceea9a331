package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	last []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.last = append([]kafka.Message{}, msgs...)
	return w.err
}

func TestProducer_PublishJSON(t *testing.T) {
	fw := &fakeWriter{}
	p := newProducerWithWriter(fw)

	require.NoError(t, p.PublishJSON(context.Background(), "order.tracking", "o1", map[string]string{"type": "transition"}))
	require.Len(t, fw.last, 1)
	require.Equal(t, "order.tracking", fw.last[0].Topic)
	require.Equal(t, []byte("o1"), fw.last[0].Key)
	require.JSONEq(t, `{"type":"transition"}`, string(fw.last[0].Value))

	require.Error(t, p.PublishJSON(context.Background(), "t", "k", make(chan int)))
	require.NoError(t, p.Close())
}

func TestNewProducer_Close(t *testing.T) {
	p := NewProducer([]string{"localhost:0"})
	require.NotNil(t, p)
	require.NoError(t, p.Close())
}
