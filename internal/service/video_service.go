package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memorabilia-service/internal/assets"
	"memorabilia-service/internal/clock"
	"memorabilia-service/internal/docstore"
	"memorabilia-service/internal/models"
	"memorabilia-service/internal/util"
	"memorabilia-service/internal/video"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const orderPaymentAttempts = 3

// orderNamespace scopes the ids of orders derived from a request
var orderNamespace = uuid.MustParse("6f1b6a52-4c1e-4d8e-9a57-0c2b8e1f7d3a")

// orderIDForRequest is the id of the single order a request may have. A
// create-if-absent write under this id lets concurrent confirmations agree on one order.
func orderIDForRequest(requestID string) string {
	return uuid.NewSHA1(orderNamespace, []byte(requestID)).String()
}

// VideoDeps wires the video service. Nil optional fields are replaced by defaults.
type VideoDeps struct {
	Store    docstore.Store
	Clock    clock.Clock
	Events   VideoEvents
	Verifier assets.Verifier
	MinLead  time.Duration
}

// VideoService handles video request and order business logic
type VideoService struct {
	store    docstore.Store
	clock    clock.Clock
	events   VideoEvents
	verifier assets.Verifier
	minLead  time.Duration
	logger   *zap.Logger
}

// NewVideoService creates a new video service
func NewVideoService(deps VideoDeps) *VideoService {
	s := &VideoService{
		store:    deps.Store,
		clock:    deps.Clock,
		events:   deps.Events,
		verifier: deps.Verifier,
		minLead:  deps.MinLead,
		logger:   util.GetLogger(),
	}
	if s.clock == nil {
		s.clock = clock.NewSystem()
	}
	if s.events == nil {
		s.events = nopEvents{}
	}
	if s.verifier == nil {
		s.verifier = assets.NopVerifier{}
	}
	if s.minLead <= 0 {
		s.minLead = video.DefaultMinLead
	}
	return s
}

// SubmitRequestRequest is the customer's request form
type SubmitRequestRequest struct {
	Requester     string          `json:"requester" binding:"required"`
	Performer     string          `json:"performer" binding:"required"`
	RecipientName string          `json:"recipient_name"`
	Occasion      string          `json:"occasion"`
	Message       string          `json:"message"`
	DeliveryDate  time.Time       `json:"delivery_date"`
	Price         decimal.Decimal `json:"price"`
	Flow          video.Flow      `json:"flow"`
}

// CreateOrderRequest starts a direct checkout order
type CreateOrderRequest struct {
	Buyer     string          `json:"buyer" binding:"required"`
	Performer string          `json:"performer" binding:"required"`
	Price     decimal.Decimal `json:"price"`
	RequestID string          `json:"request_id"`
}

// SubmitRequest validates and stores a new video request
func (s *VideoService) SubmitRequest(ctx context.Context, req *SubmitRequestRequest) (*models.VideoRequest, error) {
	ctx, span := util.StartSpan(ctx, "VideoService.SubmitRequest")
	defer span.End()

	r, err := video.SubmitRequest(video.RequestDetails{
		Requester:     req.Requester,
		Performer:     req.Performer,
		RecipientName: req.RecipientName,
		Occasion:      req.Occasion,
		Message:       req.Message,
		DeliveryDate:  req.DeliveryDate,
		Price:         req.Price,
	}, req.Flow, s.clock.Now(), s.minLead)
	if err != nil {
		return nil, err
	}

	id, err := s.store.Create(ctx, models.CollectionVideoRequests, requestToData(r))
	if err != nil {
		return nil, storageError("video request", "", err)
	}
	r.ID = id
	r.Version = 1

	util.VideoRequestTransitions.WithLabelValues(string(r.Status)).Inc()
	s.logger.Info("Video request submitted",
		zap.String("request_id", id),
		zap.String("performer", r.Performer),
		zap.String("status", string(r.Status)))
	s.publishRequest(ctx, models.EventTypeVideoRequestSubmitted, r)
	return &r, nil
}

// GetRequest retrieves a video request by id
func (s *VideoService) GetRequest(ctx context.Context, id string) (*models.VideoRequest, error) {
	r, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRequests returns requests newest first, optionally filtered by status
func (s *VideoService) ListRequests(ctx context.Context, status models.RequestStatus) ([]models.VideoRequest, error) {
	ctx, span := util.StartSpan(ctx, "VideoService.ListRequests")
	defer span.End()

	var filters []docstore.Filter
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", video.ErrInvalidRequest, status)
		}
		filters = append(filters, docstore.Filter{Field: "status", Value: string(status)})
	}

	docs, err := s.store.Query(ctx, models.CollectionVideoRequests, filters,
		&docstore.Order{Field: "created_at", Descending: true})
	if err != nil {
		return nil, storageError("video requests", "", err)
	}

	out := make([]models.VideoRequest, 0, len(docs))
	for _, doc := range docs {
		r, err := requestFromDocument(doc)
		if err != nil {
			s.logger.Warn("Skipping unreadable video request", zap.String("request_id", doc.ID), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// QuoteRequest sets the price and waits for payment
func (s *VideoService) QuoteRequest(ctx context.Context, id string, price decimal.Decimal) (*models.VideoRequest, error) {
	return s.transitionRequest(ctx, "VideoService.QuoteRequest", id, func(r models.VideoRequest, now time.Time) (models.VideoRequest, error) {
		return video.Quote(r, price, now)
	})
}

// AcceptRequest marks the request as taken on by the performer
func (s *VideoService) AcceptRequest(ctx context.Context, id string) (*models.VideoRequest, error) {
	return s.transitionRequest(ctx, "VideoService.AcceptRequest", id, video.Accept)
}

// CompleteRequest attaches the delivered video. A paid linked order is
// fulfilled with the same asset before the request is saved.
func (s *VideoService) CompleteRequest(ctx context.Context, id, videoURL string) (*models.VideoRequest, error) {
	ctx, span := util.StartSpan(ctx, "VideoService.CompleteRequest")
	defer span.End()

	r, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	next, err := video.CompleteRequest(r, videoURL, now)
	if err != nil {
		return nil, err
	}

	o, linked, err := s.linkedOrder(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	// an unpaid order is fulfilled later through FulfillOrder
	delivered := o.Status == models.OrderStatusCompleted && o.VideoURL == next.VideoURL
	if linked && o.PaymentStatus == models.PaymentStatusPaid && !delivered {
		done, err := video.Fulfill(o, next.VideoURL, now)
		if err != nil {
			return nil, fmt.Errorf("linked order %s: %w", o.ID, err)
		}
		if err := s.verifyAsset(ctx, done.VideoURL); err != nil {
			return nil, err
		}
		if _, err := s.saveOrderTransition(ctx, o, done); err != nil {
			return nil, err
		}
	}

	return s.commitRequest(ctx, r, next)
}

// RejectRequest closes the request without a video. An open linked order is
// rejected with it.
func (s *VideoService) RejectRequest(ctx context.Context, id, reason string) (*models.VideoRequest, error) {
	ctx, span := util.StartSpan(ctx, "VideoService.RejectRequest")
	defer span.End()

	r, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	next, err := video.RejectRequest(r, reason, now)
	if err != nil {
		return nil, err
	}

	o, linked, err := s.linkedOrder(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	if linked && o.Status != models.OrderStatusRejected {
		rejected, err := video.RejectOrder(o, reason, now)
		if err != nil {
			return nil, fmt.Errorf("linked order %s: %w", o.ID, err)
		}
		if _, err := s.saveOrderTransition(ctx, o, rejected); err != nil {
			return nil, err
		}
	}

	return s.commitRequest(ctx, r, next)
}

// ConfirmRequestPayment records a captured payment and makes sure the paid
// order for the request exists. Repeating it changes nothing.
func (s *VideoService) ConfirmRequestPayment(ctx context.Context, id string) (*models.VideoRequest, error) {
	ctx, span := util.StartSpan(ctx, "VideoService.ConfirmRequestPayment")
	defer span.End()

	r, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	paid, changed, err := video.ConfirmRequestPayment(r, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.saveRequest(ctx, r, paid); err != nil {
			return nil, err
		}
		paid.Version = r.Version + 1
		util.VideoRequestTransitions.WithLabelValues("payment_confirmed").Inc()
		s.logger.Info("Video request payment confirmed", zap.String("request_id", id))
		s.publishRequest(ctx, models.EventTypeVideoRequestUpdated, paid)
	}

	if err := s.ensureOrderForRequest(ctx, paid); err != nil {
		return nil, err
	}
	return &paid, nil
}

// ensureOrderForRequest creates the paid order for r, or marks the existing
// checkout order paid. Concurrent callers end up with a single order.
func (s *VideoService) ensureOrderForRequest(ctx context.Context, r models.VideoRequest) error {
	if !r.Price.IsPositive() {
		s.logger.Warn("Paid video request has no price, no order created", zap.String("request_id", r.ID))
		return nil
	}

	o, err := video.OrderFromRequest(r, s.clock.Now())
	if err != nil {
		return err
	}
	_, err = s.createOrder(ctx, o)
	if !errors.Is(err, ErrConflict) {
		return err
	}

	id := orderIDForRequest(r.ID)
	for attempt := 0; attempt < orderPaymentAttempts; attempt++ {
		existing, err := s.loadOrder(ctx, id)
		if err != nil {
			return err
		}
		paid, changed, err := video.ConfirmOrderPayment(existing, s.clock.Now())
		if err != nil || !changed {
			return err
		}
		_, err = s.saveOrderTransition(ctx, existing, paid)
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("video order %s: %w", id, ErrConflict)
}

// CreateOrder stores a new unpaid order
func (s *VideoService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.VideoOrder, error) {
	ctx, span := util.StartSpan(ctx, "VideoService.CreateOrder")
	defer span.End()

	o, err := video.NewOrder(req.Buyer, req.Performer, req.Price, req.RequestID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if req.RequestID != "" {
		if _, err := s.loadRequest(ctx, req.RequestID); err != nil {
			return nil, err
		}
	}
	return s.createOrder(ctx, o)
}

// createOrder stores o. An order tied to a request takes the request's
// derived id, so a second order for the same request fails with ErrConflict.
func (s *VideoService) createOrder(ctx context.Context, o models.VideoOrder) (*models.VideoOrder, error) {
	id := ""
	var err error
	if o.RequestID != "" {
		id = orderIDForRequest(o.RequestID)
		err = s.store.CreateWithID(ctx, models.CollectionVideoOrders, id, orderToData(o))
	} else {
		id, err = s.store.Create(ctx, models.CollectionVideoOrders, orderToData(o))
	}
	if err != nil {
		return nil, storageError("video order", id, err)
	}
	o.ID = id
	o.Version = 1

	util.VideoOrderTransitions.WithLabelValues("created").Inc()
	s.logger.Info("Video order created",
		zap.String("order_id", id),
		zap.String("request_id", o.RequestID),
		zap.String("payment_status", string(o.PaymentStatus)))
	s.publishOrder(ctx, models.EventTypeVideoOrderCreated, o)
	return &o, nil
}

// GetOrder retrieves an order by id
func (s *VideoService) GetOrder(ctx context.Context, id string) (*models.VideoOrder, error) {
	o, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrders returns orders newest first, optionally filtered by status
func (s *VideoService) ListOrders(ctx context.Context, status models.OrderStatus) ([]models.VideoOrder, error) {
	ctx, span := util.StartSpan(ctx, "VideoService.ListOrders")
	defer span.End()

	var filters []docstore.Filter
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", video.ErrInvalidRequest, status)
		}
		filters = append(filters, docstore.Filter{Field: "status", Value: string(status)})
	}

	docs, err := s.store.Query(ctx, models.CollectionVideoOrders, filters,
		&docstore.Order{Field: "created_at", Descending: true})
	if err != nil {
		return nil, storageError("video orders", "", err)
	}

	out := make([]models.VideoOrder, 0, len(docs))
	for _, doc := range docs {
		o, err := orderFromDocument(doc)
		if err != nil {
			s.logger.Warn("Skipping unreadable video order", zap.String("order_id", doc.ID), zap.Error(err))
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// ConfirmOrderPayment marks the order as paid. Repeating it changes nothing.
func (s *VideoService) ConfirmOrderPayment(ctx context.Context, id string) (*models.VideoOrder, error) {
	return s.paymentTransition(ctx, "VideoService.ConfirmOrderPayment", id, video.ConfirmOrderPayment)
}

// FailOrderPayment records a declined payment
func (s *VideoService) FailOrderPayment(ctx context.Context, id string) (*models.VideoOrder, error) {
	return s.paymentTransition(ctx, "VideoService.FailOrderPayment", id, video.FailOrderPayment)
}

// FulfillOrder completes a paid order once the asset is confirmed in storage.
// The linked request, if any, is completed with the same asset first.
func (s *VideoService) FulfillOrder(ctx context.Context, id, assetRef string) (*models.VideoOrder, error) {
	ctx, span := util.StartSpan(ctx, "VideoService.FulfillOrder")
	defer span.End()

	o, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	done, err := video.Fulfill(o, assetRef, now)
	if err != nil {
		return nil, err
	}

	var (
		r, completed models.VideoRequest
		syncRequest  bool
	)
	if o.RequestID != "" {
		if r, err = s.loadRequest(ctx, o.RequestID); err != nil {
			return nil, err
		}
		if r.Status == models.RequestStatusCompleted {
			if r.VideoURL != done.VideoURL {
				return nil, fmt.Errorf("%w: request %s was delivered as %s", video.ErrInvalidTransition, r.ID, r.VideoURL)
			}
		} else {
			if completed, err = video.CompleteRequest(r, done.VideoURL, now); err != nil {
				return nil, fmt.Errorf("linked request %s: %w", r.ID, err)
			}
			syncRequest = true
		}
	}

	if err := s.verifyAsset(ctx, done.VideoURL); err != nil {
		return nil, err
	}
	if syncRequest {
		if _, err := s.commitRequest(ctx, r, completed); err != nil {
			return nil, err
		}
	}
	return s.saveOrderTransition(ctx, o, done)
}

// RejectOrder closes the order without a video. An open linked request is
// rejected with it.
func (s *VideoService) RejectOrder(ctx context.Context, id, reason string) (*models.VideoOrder, error) {
	ctx, span := util.StartSpan(ctx, "VideoService.RejectOrder")
	defer span.End()

	o, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	rejected, err := video.RejectOrder(o, reason, now)
	if err != nil {
		return nil, err
	}

	if o.RequestID != "" {
		r, err := s.loadRequest(ctx, o.RequestID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if err == nil && !r.Status.Terminal() {
			next, err := video.RejectRequest(r, reason, now)
			if err != nil {
				return nil, err
			}
			if _, err := s.commitRequest(ctx, r, next); err != nil {
				return nil, err
			}
		}
	}
	return s.saveOrderTransition(ctx, o, rejected)
}

type requestTransition func(models.VideoRequest, time.Time) (models.VideoRequest, error)

func (s *VideoService) transitionRequest(ctx context.Context, spanName, id string, fn requestTransition) (*models.VideoRequest, error) {
	ctx, span := util.StartSpan(ctx, spanName)
	defer span.End()

	r, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := fn(r, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return s.commitRequest(ctx, r, next)
}

func (s *VideoService) commitRequest(ctx context.Context, before, next models.VideoRequest) (*models.VideoRequest, error) {
	if err := s.saveRequest(ctx, before, next); err != nil {
		return nil, err
	}
	next.Version = before.Version + 1

	util.VideoRequestTransitions.WithLabelValues(string(next.Status)).Inc()
	s.logger.Info("Video request updated",
		zap.String("request_id", before.ID),
		zap.String("from", string(before.Status)),
		zap.String("to", string(next.Status)))
	s.publishRequest(ctx, models.EventTypeVideoRequestUpdated, next)
	return &next, nil
}

// linkedOrder loads the order derived from requestID; false means there is none
func (s *VideoService) linkedOrder(ctx context.Context, requestID string) (models.VideoOrder, bool, error) {
	o, err := s.loadOrder(ctx, orderIDForRequest(requestID))
	switch {
	case errors.Is(err, ErrNotFound):
		return models.VideoOrder{}, false, nil
	case err != nil:
		return models.VideoOrder{}, false, err
	}
	return o, true, nil
}

func (s *VideoService) verifyAsset(ctx context.Context, ref string) error {
	ok, err := s.verifier.Exists(ctx, ref)
	switch {
	case errors.Is(err, assets.ErrInvalidRef):
		return fmt.Errorf("%w: %w", video.ErrInvalidRequest, err)
	case err != nil:
		return fmt.Errorf("failed to verify asset: %w", err)
	case !ok:
		return fmt.Errorf("%w: %s does not exist", video.ErrMissingAsset, ref)
	}
	return nil
}

type paymentFunc func(models.VideoOrder, time.Time) (models.VideoOrder, bool, error)

func (s *VideoService) paymentTransition(ctx context.Context, spanName, id string, fn paymentFunc) (*models.VideoOrder, error) {
	ctx, span := util.StartSpan(ctx, spanName)
	defer span.End()

	o, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	next, changed, err := fn(o, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return &o, nil
	}
	return s.saveOrderTransition(ctx, o, next)
}

func (s *VideoService) saveOrderTransition(ctx context.Context, before, after models.VideoOrder) (*models.VideoOrder, error) {
	err := s.store.ConditionalUpdate(ctx, models.CollectionVideoOrders, before.ID, before.Version, orderToData(after))
	if err != nil {
		return nil, storageError("video order", before.ID, err)
	}
	after.Version = before.Version + 1

	label := string(after.Status)
	if after.Status == before.Status {
		label = "payment_" + string(after.PaymentStatus)
	}
	util.VideoOrderTransitions.WithLabelValues(label).Inc()
	s.logger.Info("Video order updated",
		zap.String("order_id", after.ID),
		zap.String("status", string(after.Status)),
		zap.String("payment_status", string(after.PaymentStatus)))
	s.publishOrder(ctx, models.EventTypeVideoOrderUpdated, after)
	return &after, nil
}

func (s *VideoService) saveRequest(ctx context.Context, before, after models.VideoRequest) error {
	err := s.store.ConditionalUpdate(ctx, models.CollectionVideoRequests, before.ID, before.Version, requestToData(after))
	return storageError("video request", before.ID, err)
}

func (s *VideoService) loadRequest(ctx context.Context, id string) (models.VideoRequest, error) {
	doc, err := s.store.Get(ctx, models.CollectionVideoRequests, id)
	if err != nil {
		return models.VideoRequest{}, storageError("video request", id, err)
	}
	r, err := requestFromDocument(doc)
	if err != nil {
		return models.VideoRequest{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return r, nil
}

func (s *VideoService) loadOrder(ctx context.Context, id string) (models.VideoOrder, error) {
	doc, err := s.store.Get(ctx, models.CollectionVideoOrders, id)
	if err != nil {
		return models.VideoOrder{}, storageError("video order", id, err)
	}
	o, err := orderFromDocument(doc)
	if err != nil {
		return models.VideoOrder{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return o, nil
}

func (s *VideoService) publishRequest(ctx context.Context, eventType string, r models.VideoRequest) {
	event := &models.VideoRequestEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: s.clock.Now(),
		},
		RequestID: r.ID,
		Requester: r.Requester,
		Performer: r.Performer,
		Status:    r.Status,
		Reason:    r.RejectionReason,
	}
	if err := s.events.PublishVideoRequest(ctx, event); err != nil {
		s.logger.Error("Failed to publish video request event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

func (s *VideoService) publishOrder(ctx context.Context, eventType string, o models.VideoOrder) {
	event := &models.VideoOrderEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: s.clock.Now(),
		},
		OrderID:       o.ID,
		RequestID:     o.RequestID,
		Buyer:         o.Buyer,
		Price:         o.Price,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		VideoURL:      o.VideoURL,
		Reason:        o.RejectionReason,
	}
	if err := s.events.PublishVideoOrder(ctx, event); err != nil {
		s.logger.Error("Failed to publish video order event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
