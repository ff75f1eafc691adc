package video

import (
	"fmt"
	"strings"
	"time"

	"memorabilia-service/internal/models"

	"github.com/shopspring/decimal"
)

// NewOrder creates an unpaid order
func NewOrder(buyer, performer string, price decimal.Decimal, requestID string, now time.Time) (models.VideoOrder, error) {
	if strings.TrimSpace(buyer) == "" || strings.TrimSpace(performer) == "" {
		return models.VideoOrder{}, fmt.Errorf("%w: buyer and performer are required", ErrInvalidRequest)
	}
	if !price.IsPositive() {
		return models.VideoOrder{}, fmt.Errorf("%w: price must be positive", ErrInvalidRequest)
	}
	return models.VideoOrder{
		RequestID:     requestID,
		Buyer:         strings.TrimSpace(buyer),
		Performer:     strings.TrimSpace(performer),
		Price:         price,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}, nil
}

// OrderFromRequest creates the paid order for a settled request
func OrderFromRequest(r models.VideoRequest, now time.Time) (models.VideoOrder, error) {
	o, err := NewOrder(r.Requester, r.Performer, r.Price, r.ID, now)
	if err != nil {
		return o, err
	}
	o.PaymentStatus = models.PaymentStatusPaid
	return o, nil
}

// ConfirmOrderPayment marks the order as paid. The bool result is false when
// the order was already paid and nothing changed.
func ConfirmOrderPayment(o models.VideoOrder, now time.Time) (models.VideoOrder, bool, error) {
	if o.PaymentStatus == models.PaymentStatusPaid {
		return o, false, nil
	}
	if o.Status == models.OrderStatusRejected {
		return o, false, fmt.Errorf("%w: order was rejected", ErrPayment)
	}
	if o.Status != models.OrderStatusPending {
		return o, false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, o.Status)
	}
	o.PaymentStatus = models.PaymentStatusPaid
	o.UpdatedAt = now.UTC()
	return o, true, nil
}

// FailOrderPayment records a declined payment
func FailOrderPayment(o models.VideoOrder, now time.Time) (models.VideoOrder, bool, error) {
	switch o.PaymentStatus {
	case models.PaymentStatusFailed:
		return o, false, nil
	case models.PaymentStatusPaid:
		return o, false, fmt.Errorf("%w: order is already paid", ErrPayment)
	}
	if o.Status.Terminal() {
		return o, false, ErrTerminal
	}
	o.PaymentStatus = models.PaymentStatusFailed
	o.UpdatedAt = now.UTC()
	return o, true, nil
}

// Fulfill completes a paid order with the delivered video asset
func Fulfill(o models.VideoOrder, assetRef string, now time.Time) (models.VideoOrder, error) {
	if o.Status.Terminal() {
		return o, ErrTerminal
	}
	if o.PaymentStatus != models.PaymentStatusPaid {
		return o, ErrNotPaid
	}
	if strings.TrimSpace(assetRef) == "" {
		return o, ErrMissingAsset
	}
	o.Status = models.OrderStatusCompleted
	o.VideoURL = strings.TrimSpace(assetRef)
	o.UpdatedAt = now.UTC()
	return o, nil
}

// RejectOrder closes the order without a video
func RejectOrder(o models.VideoOrder, reason string, now time.Time) (models.VideoOrder, error) {
	if o.Status.Terminal() {
		return o, ErrTerminal
	}
	o.Status = models.OrderStatusRejected
	o.RejectionReason = reason
	o.VideoURL = ""
	o.UpdatedAt = now.UTC()
	return o, nil
}
