package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"memorabilia-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProducer struct {
	keys   []string
	events []interface{}
}

func (p *recordingProducer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return nil
}

func TestEventPublisher_Keys(t *testing.T) {
	rec := &recordingProducer{}
	ep := &EventPublisher{producer: rec}
	ctx := context.Background()

	require.NoError(t, ep.PublishBidPlaced(ctx, &models.BidPlacedEvent{AuctionID: "a1"}))
	require.NoError(t, ep.PublishAuctionCreated(ctx, &models.AuctionEvent{AuctionID: "a1"}))
	require.NoError(t, ep.PublishVideoRequest(ctx, &models.VideoRequestEvent{RequestID: "r1"}))
	require.NoError(t, ep.PublishVideoOrder(ctx, &models.VideoOrderEvent{OrderID: "o1"}))

	assert.Equal(t, []string{"auction-a1", "auction-a1", "video-request-r1", "video-order-o1"}, rec.keys)
}

func TestEventHandler_RoutesPaymentEvents(t *testing.T) {
	h := NewEventHandler()

	var captured *models.PaymentCapturedEvent
	var failed *models.PaymentFailedEvent
	h.OnPaymentCaptured(func(ctx context.Context, e *models.PaymentCapturedEvent) error {
		captured = e
		return nil
	})
	h.OnPaymentFailed(func(ctx context.Context, e *models.PaymentFailedEvent) error {
		failed = e
		return errors.New("boom")
	})

	capturedMsg, err := json.Marshal(models.PaymentCapturedEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypePaymentCaptured, Timestamp: time.Now()},
		Target:    models.PaymentTargetOrder,
		TargetID:  "o1",
		Amount:    decimal.NewFromInt(99),
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: capturedMsg}))
	require.NotNil(t, captured)
	assert.Equal(t, "o1", captured.TargetID)
	assert.True(t, decimal.NewFromInt(99).Equal(captured.Amount))

	failedMsg, err := json.Marshal(models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{EventID: "e2", EventType: models.EventTypePaymentFailed},
		Target:    models.PaymentTargetRequest,
		TargetID:  "r1",
		Reason:    "card declined",
	})
	require.NoError(t, err)

	err = h.HandleMessage(context.Background(), kafka.Message{Value: failedMsg})
	assert.EqualError(t, err, "boom")
	require.NotNil(t, failed)
	assert.Equal(t, "card declined", failed.Reason)
}

func TestEventHandler_IgnoresUnknownAndRejectsGarbage(t *testing.T) {
	h := NewEventHandler()

	unknown, err := json.Marshal(models.BaseEvent{EventID: "e3", EventType: models.EventTypeBidPlaced})
	require.NoError(t, err)
	assert.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: unknown}))

	assert.Error(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
}
