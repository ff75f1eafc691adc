package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"memorabilia-service/internal/models"
	"memorabilia-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// publisher is the part of Producer the EventPublisher needs
type publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishAuctionCreated publishes AUCTION_CREATED
func (ep *EventPublisher) PublishAuctionCreated(ctx context.Context, event *models.AuctionEvent) error {
	return ep.producer.PublishEvent(ctx, "auction-"+event.AuctionID, event)
}

// PublishAuctionDeleted publishes AUCTION_DELETED
func (ep *EventPublisher) PublishAuctionDeleted(ctx context.Context, event *models.AuctionEvent) error {
	return ep.producer.PublishEvent(ctx, "auction-"+event.AuctionID, event)
}

// PublishBidPlaced publishes BID_PLACED
func (ep *EventPublisher) PublishBidPlaced(ctx context.Context, event *models.BidPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, "auction-"+event.AuctionID, event)
}

// PublishVideoRequest publishes a video request lifecycle event
func (ep *EventPublisher) PublishVideoRequest(ctx context.Context, event *models.VideoRequestEvent) error {
	return ep.producer.PublishEvent(ctx, "video-request-"+event.RequestID, event)
}

// PublishVideoOrder publishes a video order lifecycle event
func (ep *EventPublisher) PublishVideoOrder(ctx context.Context, event *models.VideoOrderEvent) error {
	return ep.producer.PublishEvent(ctx, "video-order-"+event.OrderID, event)
}

// EventHandler handles incoming payment events
type EventHandler struct {
	onPaymentCaptured func(context.Context, *models.PaymentCapturedEvent) error
	onPaymentFailed   func(context.Context, *models.PaymentFailedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPaymentCaptured registers a handler for PAYMENT_CAPTURED events
func (eh *EventHandler) OnPaymentCaptured(handler func(context.Context, *models.PaymentCapturedEvent) error) {
	eh.onPaymentCaptured = handler
}

// OnPaymentFailed registers a handler for PAYMENT_FAILED events
func (eh *EventHandler) OnPaymentFailed(handler func(context.Context, *models.PaymentFailedEvent) error) {
	eh.onPaymentFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	logger := util.GetLogger()
	logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypePaymentCaptured:
		if eh.onPaymentCaptured != nil {
			var event models.PaymentCapturedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PAYMENT_CAPTURED event: %w", err)
			}
			return eh.onPaymentCaptured(ctx, &event)
		}

	case models.EventTypePaymentFailed:
		if eh.onPaymentFailed != nil {
			var event models.PaymentFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PAYMENT_FAILED event: %w", err)
			}
			return eh.onPaymentFailed(ctx, &event)
		}

	default:
		logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
