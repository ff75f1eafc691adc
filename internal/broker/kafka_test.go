package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleWithRetry(t *testing.T) {
	calls := 0
	flaky := func(ctx context.Context, msg kafka.Message) error {
		calls++
		if calls < 2 {
			return errors.New("storage unavailable")
		}
		return nil
	}
	assert.NoError(t, handleWithRetry(context.Background(), flaky, kafka.Message{}))
	assert.Equal(t, 2, calls)

	calls = 0
	broken := func(ctx context.Context, msg kafka.Message) error {
		calls++
		return errors.New("always")
	}
	assert.Error(t, handleWithRetry(context.Background(), broken, kafka.Message{}))
	assert.Equal(t, handlerAttempts, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls = 0
	assert.ErrorIs(t, handleWithRetry(ctx, broken, kafka.Message{}), context.Canceled)
	assert.Equal(t, 1, calls)
}

type recordingSink struct {
	err    error
	msgs   []kafka.Message
	causes []error
}

func (s *recordingSink) Forward(ctx context.Context, msg kafka.Message, cause error) error {
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	s.causes = append(s.causes, cause)
	return nil
}

func TestConsumerSettle_DeadLettersExhaustedMessage(t *testing.T) {
	sink := &recordingSink{}
	c := (&Consumer{retryDelay: time.Millisecond}).WithDeadLetter(sink)

	failing := errors.New("storage unavailable")
	calls := 0
	handler := func(ctx context.Context, msg kafka.Message) error {
		calls++
		return failing
	}

	msg := kafka.Message{Topic: "payment-events", Partition: 2, Offset: 41, Value: []byte(`{"event_id":"e1"}`)}
	require.NoError(t, c.settle(context.Background(), zap.NewNop(), handler, msg))
	assert.Equal(t, handlerAttempts, calls)
	require.Len(t, sink.msgs, 1)
	assert.Equal(t, int64(41), sink.msgs[0].Offset)
	assert.ErrorIs(t, sink.causes[0], failing)
}

func TestConsumerSettle_RetriesUntilDeadLetterAccepts(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	c := (&Consumer{retryDelay: time.Millisecond}).WithDeadLetter(sink)

	calls := 0
	handler := func(ctx context.Context, msg kafka.Message) error {
		calls++
		if calls == handlerAttempts*2 {
			sink.err = nil
		}
		return errors.New("storage unavailable")
	}

	require.NoError(t, c.settle(context.Background(), zap.NewNop(), handler, kafka.Message{Offset: 7}))
	assert.Equal(t, handlerAttempts*2, calls)
	assert.Len(t, sink.msgs, 1)
}

func TestConsumerSettle_NeverSkipsWithoutDeadLetter(t *testing.T) {
	c := &Consumer{retryDelay: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	handler := func(ctx context.Context, msg kafka.Message) error {
		calls++
		if calls == handlerAttempts*2+1 {
			return nil
		}
		return errors.New("storage unavailable")
	}
	require.NoError(t, c.settle(ctx, zap.NewNop(), handler, kafka.Message{Offset: 7}))
	assert.Equal(t, handlerAttempts*2+1, calls)

	always := func(ctx context.Context, msg kafka.Message) error {
		cancel()
		return errors.New("storage unavailable")
	}
	assert.ErrorIs(t, c.settle(ctx, zap.NewNop(), always, kafka.Message{Offset: 8}), context.Canceled)
}

func TestDeadLetterMessage(t *testing.T) {
	msg := kafka.Message{
		Topic:     "payment-events",
		Partition: 3,
		Offset:    1200,
		Key:       []byte("order-1"),
		Value:     []byte(`{"type":"PAYMENT_CAPTURED"}`),
		Headers:   []kafka.Header{{Key: "trace", Value: []byte("abc")}},
	}

	out := deadLetterMessage(msg, errors.New("storage unavailable"))
	assert.Empty(t, out.Topic)
	assert.Equal(t, msg.Key, out.Key)
	assert.Equal(t, msg.Value, out.Value)

	headers := make(map[string]string)
	for _, h := range out.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, map[string]string{
		"trace":              "abc",
		"x-error":            "storage unavailable",
		"x-source-topic":     "payment-events",
		"x-source-partition": "3",
		"x-source-offset":    "1200",
	}, headers)
	assert.Len(t, msg.Headers, 1)
}
