package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"memorabilia-service/internal/models"
	"memorabilia-service/internal/util"

	"go.uber.org/zap"
)

// PaymentEventTTL is how long processed payment event ids are remembered
const PaymentEventTTL = 24 * time.Hour

// PaymentService applies payment provider events to requests and orders
type PaymentService struct {
	videos *VideoService
	idem   IdempotencyStore
	logger *zap.Logger
}

// NewPaymentService creates a new payment service. A nil idempotency store
// falls back to process-local deduplication.
func NewPaymentService(videos *VideoService, idem IdempotencyStore) *PaymentService {
	if idem == nil {
		idem = newLocalIdempotency()
	}
	return &PaymentService{
		videos: videos,
		idem:   idem,
		logger: util.Named("payments"),
	}
}

// HandlePaymentCaptured confirms payment on the event's target
func (ps *PaymentService) HandlePaymentCaptured(ctx context.Context, event *models.PaymentCapturedEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandlePaymentCaptured")
	defer span.End()

	err := ps.process(ctx, event.BaseEvent, func(ctx context.Context) error {
		ps.logger.Info("Handling payment captured",
			zap.String("target", event.Target),
			zap.String("target_id", event.TargetID),
			zap.String("provider_tx", event.ProviderTx))

		switch event.Target {
		case models.PaymentTargetRequest:
			r, err := ps.videos.ConfirmRequestPayment(ctx, event.TargetID)
			if err == nil && !event.Amount.IsZero() && !event.Amount.Equal(r.Price) {
				ps.logger.Warn("Captured amount differs from request price",
					zap.String("request_id", r.ID),
					zap.String("captured", event.Amount.String()),
					zap.String("price", r.Price.String()))
			}
			return err
		case models.PaymentTargetOrder:
			o, err := ps.videos.ConfirmOrderPayment(ctx, event.TargetID)
			if err == nil && !event.Amount.IsZero() && !event.Amount.Equal(o.Price) {
				ps.logger.Warn("Captured amount differs from order price",
					zap.String("order_id", o.ID),
					zap.String("captured", event.Amount.String()),
					zap.String("price", o.Price.String()))
			}
			return err
		default:
			return fmt.Errorf("unknown payment target %q", event.Target)
		}
	})
	util.RecordError(span, err)
	return err
}

// HandlePaymentFailed records a declined payment on an order
func (ps *PaymentService) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandlePaymentFailed")
	defer span.End()

	err := ps.process(ctx, event.BaseEvent, func(ctx context.Context) error {
		ps.logger.Warn("Handling payment failed",
			zap.String("target", event.Target),
			zap.String("target_id", event.TargetID),
			zap.String("reason", event.Reason))

		switch event.Target {
		case models.PaymentTargetOrder:
			_, err := ps.videos.FailOrderPayment(ctx, event.TargetID)
			return err
		case models.PaymentTargetRequest:
			// a request stays awaiting payment until a capture arrives
			return nil
		default:
			return fmt.Errorf("unknown payment target %q", event.Target)
		}
	})
	util.RecordError(span, err)
	return err
}

// process deduplicates by event id. Storage failures release the key and are
// returned so the broker redelivers; business rejections are logged and dropped.
func (ps *PaymentService) process(ctx context.Context, base models.BaseEvent, apply func(context.Context) error) error {
	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	key := "payment-event:" + base.EventID
	claimed, err := ps.idem.ClaimIdempotencyKey(ctx, key, PaymentEventTTL)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if !claimed {
		util.PaymentEventsTotal.WithLabelValues(base.EventType, "duplicate").Inc()
		ps.logger.Info("Event already processed", zap.String("event_id", base.EventID))
		return nil
	}

	err = apply(ctx)
	switch {
	case err == nil:
		util.PaymentEventsTotal.WithLabelValues(base.EventType, "applied").Inc()
		return nil
	case errors.Is(err, ErrStorage), errors.Is(err, ErrConflict), errors.Is(err, context.Canceled):
		util.PaymentEventsTotal.WithLabelValues(base.EventType, "retry").Inc()
		if relErr := ps.idem.ReleaseIdempotencyKey(context.WithoutCancel(ctx), key); relErr != nil {
			ps.logger.Error("Failed to release idempotency key", zap.String("key", key), zap.Error(relErr))
		}
		return err
	default:
		util.PaymentEventsTotal.WithLabelValues(base.EventType, "rejected").Inc()
		ps.logger.Warn("Payment event rejected",
			zap.String("event_id", base.EventID),
			zap.Error(err))
		return nil
	}
}

type localIdempotency struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func newLocalIdempotency() *localIdempotency {
	return &localIdempotency{keys: make(map[string]time.Time)}
}

func (l *localIdempotency) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if exp, ok := l.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.keys[key] = now.Add(ttl)
	return true, nil
}

func (l *localIdempotency) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key)
	return nil
}
