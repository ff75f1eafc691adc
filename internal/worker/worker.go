package worker

import (
	"context"

	"memorabilia-service/internal/broker"
	"memorabilia-service/internal/service"
	"memorabilia-service/internal/util"

	"github.com/segmentio/kafka-go"
)

// consumer is the part of broker.Consumer the worker drives
type consumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// PaymentWorker applies payment provider events from the broker
type PaymentWorker struct {
	consumer     consumer
	eventHandler *broker.EventHandler
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer *broker.Consumer, paymentService *service.PaymentService) *PaymentWorker {
	return newPaymentWorker(consumer, paymentService)
}

func newPaymentWorker(c consumer, paymentService *service.PaymentService) *PaymentWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentCaptured(paymentService.HandlePaymentCaptured)
	eventHandler.OnPaymentFailed(paymentService.HandlePaymentFailed)

	return &PaymentWorker{
		consumer:     c,
		eventHandler: eventHandler,
	}
}

// Start blocks consuming until ctx is cancelled
func (w *PaymentWorker) Start(ctx context.Context) error {
	util.Named("worker").Info("Starting payment worker")
	return w.consumer.StartConsuming(ctx, w.Handle)
}

// Handle processes a single broker message
func (w *PaymentWorker) Handle(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Stop stops the worker
func (w *PaymentWorker) Stop() error {
	util.Named("worker").Info("Stopping payment worker")
	return w.consumer.Close()
}
