// Package video implements the personalized-video request and order state
// machines. Every transition returns a new value or an error; inputs are never
// modified, so a rejected transition cannot leave partial state behind.
package video

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"memorabilia-service/internal/models"
	"memorabilia-service/internal/timeutil"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRequest    = errors.New("invalid video request")
	ErrDeliveryTooSoon   = errors.New("delivery date is too soon")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminal          = errors.New("already in a terminal state")
	ErrPayment           = errors.New("payment cannot be confirmed")
	ErrNotPaid           = errors.New("order is not paid")
	ErrMissingAsset      = errors.New("video asset reference is required")
)

// DefaultMinLead is the shortest notice a performer accepts
const DefaultMinLead = 14 * 24 * time.Hour

// Flow selects the entry point of a new request
type Flow string

const (
	// FlowReview sends the request to an administrator before any payment
	FlowReview Flow = "review"
	// FlowCheckout starts with a known price and waits for payment
	FlowCheckout Flow = "checkout"
)

// RequestDetails is the customer's input for a new request
type RequestDetails struct {
	Requester     string
	Performer     string
	RecipientName string
	Occasion      string
	Message       string
	DeliveryDate  time.Time
	Price         decimal.Decimal
}

// SubmitRequest validates details and creates a request in pending or pending_payment
func SubmitRequest(d RequestDetails, flow Flow, now time.Time, minLead time.Duration) (models.VideoRequest, error) {
	required := []struct {
		name  string
		value string
	}{
		{"requester", d.Requester},
		{"performer", d.Performer},
		{"recipient name", d.RecipientName},
		{"occasion", d.Occasion},
		{"message", d.Message},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return models.VideoRequest{}, fmt.Errorf("%w: %s is required", ErrInvalidRequest, f.name)
		}
	}
	if d.DeliveryDate.IsZero() {
		return models.VideoRequest{}, fmt.Errorf("%w: delivery date is required", ErrInvalidRequest)
	}

	earliest := timeutil.StartOfDay(now).Add(minLead)
	delivery := timeutil.StartOfDay(d.DeliveryDate)
	if delivery.Before(earliest) {
		return models.VideoRequest{}, fmt.Errorf("%w: earliest is %s", ErrDeliveryTooSoon, earliest.Format("2006-01-02"))
	}

	status := models.RequestStatusPending
	switch flow {
	case FlowReview, "":
	case FlowCheckout:
		if !d.Price.IsPositive() {
			return models.VideoRequest{}, fmt.Errorf("%w: checkout requires a price", ErrInvalidRequest)
		}
		status = models.RequestStatusPendingPayment
	default:
		return models.VideoRequest{}, fmt.Errorf("%w: unknown flow %q", ErrInvalidRequest, flow)
	}

	return models.VideoRequest{
		Requester:     strings.TrimSpace(d.Requester),
		Performer:     strings.TrimSpace(d.Performer),
		RecipientName: strings.TrimSpace(d.RecipientName),
		Occasion:      strings.TrimSpace(d.Occasion),
		Message:       d.Message,
		DeliveryDate:  delivery,
		Price:         d.Price,
		Status:        status,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}, nil
}

// Quote confirms the performer's price and moves the request to pending_payment
func Quote(r models.VideoRequest, price decimal.Decimal, now time.Time) (models.VideoRequest, error) {
	if r.Status.Terminal() {
		return r, ErrTerminal
	}
	if r.Status != models.RequestStatusPending {
		return r, fmt.Errorf("%w: cannot quote a %s request", ErrInvalidTransition, r.Status)
	}
	if !price.IsPositive() {
		return r, fmt.Errorf("%w: price must be positive", ErrInvalidRequest)
	}
	r.Price = price
	r.Status = models.RequestStatusPendingPayment
	r.UpdatedAt = now.UTC()
	return r, nil
}

// ConfirmRequestPayment records a captured payment. The bool result is false when
// the request was already paid and nothing changed.
func ConfirmRequestPayment(r models.VideoRequest, now time.Time) (models.VideoRequest, bool, error) {
	switch r.Status {
	case models.RequestStatusRejected:
		return r, false, fmt.Errorf("%w: request was rejected", ErrPayment)
	case models.RequestStatusPaid:
		return r, false, nil
	case models.RequestStatusPending, models.RequestStatusPendingPayment:
		r.Status = models.RequestStatusPaid
	case models.RequestStatusAccepted, models.RequestStatusCompleted:
		if r.PaidAt != nil {
			return r, false, nil
		}
	default:
		return r, false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, r.Status)
	}

	paidAt := now.UTC()
	r.PaidAt = &paidAt
	r.UpdatedAt = paidAt
	return r, true, nil
}

// Accept marks the request as taken on by the performer
func Accept(r models.VideoRequest, now time.Time) (models.VideoRequest, error) {
	if r.Status.Terminal() {
		return r, ErrTerminal
	}
	if r.Status != models.RequestStatusPending && r.Status != models.RequestStatusPaid {
		return r, fmt.Errorf("%w: cannot accept a %s request", ErrInvalidTransition, r.Status)
	}
	r.Status = models.RequestStatusAccepted
	r.UpdatedAt = now.UTC()
	return r, nil
}

// CompleteRequest attaches the delivered video
func CompleteRequest(r models.VideoRequest, videoURL string, now time.Time) (models.VideoRequest, error) {
	if r.Status.Terminal() {
		return r, ErrTerminal
	}
	if r.Status != models.RequestStatusAccepted {
		return r, fmt.Errorf("%w: cannot complete a %s request", ErrInvalidTransition, r.Status)
	}
	if strings.TrimSpace(videoURL) == "" {
		return r, ErrMissingAsset
	}
	r.Status = models.RequestStatusCompleted
	r.VideoURL = strings.TrimSpace(videoURL)
	r.UpdatedAt = now.UTC()
	return r, nil
}

// RejectRequest closes the request without a video
func RejectRequest(r models.VideoRequest, reason string, now time.Time) (models.VideoRequest, error) {
	if r.Status.Terminal() {
		return r, ErrTerminal
	}
	r.Status = models.RequestStatusRejected
	r.RejectionReason = reason
	r.VideoURL = ""
	r.UpdatedAt = now.UTC()
	return r, nil
}
