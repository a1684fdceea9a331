package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/BearBump/OrderTrack/internal/broker/messages"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type writerMock struct {
	mock.Mock
}

func (m *writerMock) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return m.Called(ctx, msgs).Error(0)
}

type closingWriterMock struct {
	writerMock
	closed bool
}

func (m *closingWriterMock) Close() error {
	m.closed = true
	return nil
}

type ProducerSuite struct {
	suite.Suite
	wm *writerMock
	p  *Producer
}

func (s *ProducerSuite) SetupTest() {
	s.wm = &writerMock{}
	s.p = newProducerWithWriter(s.wm)
}

func (s *ProducerSuite) TestPublishJSON_TrackingEventKeyedByOrder() {
	ev := messages.NewOrderTrackingEvent(messages.EventTransition, "s1", "o42", "u1")
	ev.Status = "enroute"
	ev.FromStatus = "arrived"
	ev.Kind = "lateral"
	ev.WarningCount = 2

	s.wm.
		On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 || msgs[0].Topic != messages.TopicOrderTracking || string(msgs[0].Key) != "o42" {
				return false
			}
			var got messages.OrderTrackingEvent
			if json.Unmarshal(msgs[0].Value, &got) != nil {
				return false
			}
			return got.EventID == ev.EventID && got.Kind == "lateral" && got.WarningCount == 2
		})).
		Return(nil).
		Once()

	s.Require().NoError(s.p.PublishJSON(context.Background(), messages.TopicOrderTracking, ev.OrderID, ev))
	s.wm.AssertExpectations(s.T())
}

func (s *ProducerSuite) TestPublishJSON_WriteErrorWrapped() {
	want := errors.New("broker unavailable")
	s.wm.On("WriteMessages", mock.Anything, mock.Anything).Return(want).Once()

	err := s.p.PublishJSON(context.Background(), messages.TopicOrderTracking, "o1", map[string]int{"n": 1})
	s.Require().ErrorIs(err, want)
	s.Require().Contains(err.Error(), "kafka publish")
}

func (s *ProducerSuite) TestPublishJSON_MarshalErrorNeverWrites() {
	err := s.p.PublishJSON(context.Background(), messages.TopicOrderTracking, "o1", func() {})
	s.Require().Error(err)
	s.wm.AssertNotCalled(s.T(), "WriteMessages", mock.Anything, mock.Anything)
}

func (s *ProducerSuite) TestClose_ClosesWriterWhenItCan() {
	s.Require().NoError(s.p.Close())

	cw := &closingWriterMock{}
	s.Require().NoError(newProducerWithWriter(cw).Close())
	s.Require().True(cw.closed)
}

func TestProducerSuite(t *testing.T) {
	suite.Run(t, new(ProducerSuite))
}
