package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"memorabilia-service/internal/assets"
	"memorabilia-service/internal/clock"
	"memorabilia-service/internal/docstore"
	"memorabilia-service/internal/models"
	"memorabilia-service/internal/video"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type videoFixture struct {
	svc      *VideoService
	store    *docstore.MemoryStore
	events   *recordingEvents
	verifier *stubVerifier
}

func newVideoFixture(t *testing.T) *videoFixture {
	t.Helper()
	f := &videoFixture{
		store:    docstore.NewMemoryStore(),
		events:   &recordingEvents{},
		verifier: &stubVerifier{exists: true},
	}
	f.svc = NewVideoService(VideoDeps{
		Store:    f.store,
		Clock:    clock.NewManual(testNow),
		Events:   f.events,
		Verifier: f.verifier,
	})
	return f
}

func requestForm() *SubmitRequestRequest {
	return &SubmitRequestRequest{
		Requester:     "user-42",
		Performer:     "performer-7",
		RecipientName: "Sam",
		Occasion:      "Birthday",
		Message:       "Happy birthday from your favorite shortstop!",
		DeliveryDate:  testNow.AddDate(0, 0, 21),
		Flow:          video.FlowReview,
	}
}

func TestSubmitRequest_Validation(t *testing.T) {
	f := newVideoFixture(t)
	ctx := context.Background()

	form := requestForm()
	form.DeliveryDate = testNow.AddDate(0, 0, 5)
	_, err := f.svc.SubmitRequest(ctx, form)
	assert.ErrorIs(t, err, video.ErrDeliveryTooSoon)

	form = requestForm()
	form.Occasion = ""
	_, err = f.svc.SubmitRequest(ctx, form)
	assert.ErrorIs(t, err, video.ErrInvalidRequest)

	all, err := f.svc.ListRequests(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRequestLifecycle_PaymentCreatesOrder(t *testing.T) {
	f := newVideoFixture(t)
	ctx := context.Background()

	r, err := f.svc.SubmitRequest(ctx, requestForm())
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, r.Status)

	r, err = f.svc.QuoteRequest(ctx, r.ID, decimal.NewFromInt(250))
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPendingPayment, r.Status)

	paid, err := f.svc.ConfirmRequestPayment(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	orders, err := f.svc.ListOrders(ctx, "")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, r.ID, orders[0].RequestID)
	assert.Equal(t, models.PaymentStatusPaid, orders[0].PaymentStatus)
	assert.True(t, decimal.NewFromInt(250).Equal(orders[0].Price))

	again, err := f.svc.ConfirmRequestPayment(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, paid.Version, again.Version)

	orders, err = f.svc.ListOrders(ctx, "")
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	accepted, err := f.svc.AcceptRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, accepted.Status)

	done, err := f.svc.CompleteRequest(ctx, r.ID, "videos/sam.mp4")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCompleted, done.Status)
	assert.Equal(t, "videos/sam.mp4", done.VideoURL)

	_, err = f.svc.RejectRequest(ctx, r.ID, "too late")
	assert.ErrorIs(t, err, video.ErrTerminal)

	stored, err := f.svc.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCompleted, stored.Status)
	assert.Equal(t, "videos/sam.mp4", stored.VideoURL)
	assert.Equal(t, testNow.AddDate(0, 0, 21).Truncate(24*time.Hour), stored.DeliveryDate)
}

func TestListRequests_ByStatus(t *testing.T) {
	f := newVideoFixture(t)
	ctx := context.Background()

	first, err := f.svc.SubmitRequest(ctx, requestForm())
	require.NoError(t, err)
	_, err = f.svc.SubmitRequest(ctx, requestForm())
	require.NoError(t, err)
	_, err = f.svc.RejectRequest(ctx, first.ID, "performer unavailable")
	require.NoError(t, err)

	pending, err := f.svc.ListRequests(ctx, models.RequestStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	rejected, err := f.svc.ListRequests(ctx, models.RequestStatusRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "performer unavailable", rejected[0].RejectionReason)

	_, err = f.svc.ListRequests(ctx, "bogus")
	assert.ErrorIs(t, err, video.ErrInvalidRequest)
}

func TestOrderLifecycle(t *testing.T) {
	f := newVideoFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, &CreateOrderRequest{Buyer: "user-42", Performer: "performer-7", Price: decimal.NewFromInt(99)})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, o.PaymentStatus)

	_, err = f.svc.FulfillOrder(ctx, o.ID, "orders/o1.mp4")
	assert.ErrorIs(t, err, video.ErrNotPaid)
	unchanged, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, unchanged.Status)
	assert.Empty(t, unchanged.VideoURL)
	assert.Empty(t, f.verifier.refs)

	paid, err := f.svc.ConfirmOrderPayment(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, paid.PaymentStatus)

	again, err := f.svc.ConfirmOrderPayment(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, paid.Version, again.Version)

	f.verifier.exists = false
	_, err = f.svc.FulfillOrder(ctx, o.ID, "orders/missing.mp4")
	assert.ErrorIs(t, err, video.ErrMissingAsset)

	f.verifier.exists = true
	done, err := f.svc.FulfillOrder(ctx, o.ID, "orders/o1.mp4")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, done.Status)
	assert.Equal(t, "orders/o1.mp4", done.VideoURL)

	_, err = f.svc.RejectOrder(ctx, o.ID, "changed my mind")
	assert.ErrorIs(t, err, video.ErrTerminal)

	completed, err := f.svc.ListOrders(ctx, models.OrderStatusCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 1)
}

func TestFulfillOrder_VerifierError(t *testing.T) {
	f := newVideoFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, &CreateOrderRequest{Buyer: "user-42", Performer: "performer-7", Price: decimal.NewFromInt(99)})
	require.NoError(t, err)
	_, err = f.svc.ConfirmOrderPayment(ctx, o.ID)
	require.NoError(t, err)

	f.verifier.err = errors.New("s3 unavailable")
	_, err = f.svc.FulfillOrder(ctx, o.ID, "orders/o1.mp4")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, video.ErrMissingAsset)

	stored, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
}

func TestCreateOrder_UnknownRequest(t *testing.T) {
	f := newVideoFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Buyer: "user-42", Performer: "performer-7", Price: decimal.NewFromInt(99), RequestID: "missing",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVideoService_ConcurrentWriteConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := docstore.NewMockStore(ctrl)

	o := models.VideoOrder{
		ID:            "o1",
		Buyer:         "user-42",
		Performer:     "performer-7",
		Price:         decimal.NewFromInt(99),
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	store.EXPECT().Get(gomock.Any(), models.CollectionVideoOrders, "o1").
		Return(docstore.Document{ID: "o1", Version: 4, Data: orderToData(o)}, nil)
	store.EXPECT().ConditionalUpdate(gomock.Any(), models.CollectionVideoOrders, "o1", int64(4), gomock.Any()).
		Return(docstore.ErrConflict)

	svc := NewVideoService(VideoDeps{Store: store, Clock: clock.NewManual(testNow)})
	_, err := svc.ConfirmOrderPayment(context.Background(), "o1")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestVideoService_StorageFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := docstore.NewMockStore(ctrl)
	boom := errors.New("i/o timeout")

	store.EXPECT().Create(gomock.Any(), models.CollectionVideoRequests, gomock.Any()).Return("", boom)

	svc := NewVideoService(VideoDeps{Store: store, Clock: clock.NewManual(testNow)})
	_, err := svc.SubmitRequest(context.Background(), requestForm())
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, boom)
}

// paidRequest submits a request, quotes it and confirms its payment
func paidRequest(t *testing.T, f *videoFixture) *models.VideoRequest {
	t.Helper()
	ctx := context.Background()

	r, err := f.svc.SubmitRequest(ctx, requestForm())
	require.NoError(t, err)
	_, err = f.svc.QuoteRequest(ctx, r.ID, decimal.NewFromInt(250))
	require.NoError(t, err)
	paid, err := f.svc.ConfirmRequestPayment(ctx, r.ID)
	require.NoError(t, err)
	return paid
}

func TestConfirmRequestPayment_ConcurrentRetriesCreateOneOrder(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	flaky := &failingCreateStore{Store: mem, fail: 1}
	svc := NewVideoService(VideoDeps{Store: flaky, Clock: clock.NewManual(testNow)})

	r, err := svc.SubmitRequest(ctx, requestForm())
	require.NoError(t, err)
	_, err = svc.QuoteRequest(ctx, r.ID, decimal.NewFromInt(250))
	require.NoError(t, err)

	// the request is saved as paid, the order write fails
	_, err = svc.ConfirmRequestPayment(ctx, r.ID)
	require.ErrorIs(t, err, ErrStorage)

	const callers = 8
	racing := NewVideoService(VideoDeps{Store: newBarrierStore(mem, callers), Clock: clock.NewManual(testNow)})

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := racing.ConfirmRequestPayment(ctx, r.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	orders, err := racing.ListOrders(ctx, "")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, orderIDForRequest(r.ID), orders[0].ID)
	assert.Equal(t, models.PaymentStatusPaid, orders[0].PaymentStatus)
	assert.Equal(t, int64(1), orders[0].Version)
}

func TestCreateOrder_OnePerRequest(t *testing.T) {
	f := newVideoFixture(t)
	ctx := context.Background()

	form := requestForm()
	form.Flow = video.FlowCheckout
	form.Price = decimal.NewFromInt(120)
	r, err := f.svc.SubmitRequest(ctx, form)
	require.NoError(t, err)

	checkout := &CreateOrderRequest{Buyer: "user-42", Performer: "performer-7", Price: decimal.NewFromInt(120), RequestID: r.ID}
	o, err := f.svc.CreateOrder(ctx, checkout)
	require.NoError(t, err)
	assert.Equal(t, orderIDForRequest(r.ID), o.ID)
	assert.Equal(t, models.PaymentStatusPending, o.PaymentStatus)

	_, err = f.svc.CreateOrder(ctx, checkout)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.ConfirmRequestPayment(ctx, r.ID)
	require.NoError(t, err)

	orders, err := f.svc.ListOrders(ctx, "")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.PaymentStatusPaid, orders[0].PaymentStatus)
}

func TestCompleteRequest_FulfillsLinkedOrder(t *testing.T) {
	f := newVideoFixture(t)
	ctx := context.Background()

	r := paidRequest(t, f)
	_, err := f.svc.AcceptRequest(ctx, r.ID)
	require.NoError(t, err)
	_, err = f.svc.CompleteRequest(ctx, r.ID, "videos/sam.mp4")
	require.NoError(t, err)
	assert.Equal(t, []string{"videos/sam.mp4"}, f.verifier.refs)

	orderID := orderIDForRequest(r.ID)
	o, err := f.svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, o.Status)
	assert.Equal(t, "videos/sam.mp4", o.VideoURL)

	_, err = f.svc.FulfillOrder(ctx, orderID, "videos/other.mp4")
	assert.ErrorIs(t, err, video.ErrTerminal)

	o, err = f.svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "videos/sam.mp4", o.VideoURL)
}

func TestCompleteRequest_MissingAssetLeavesBothOpen(t *testing.T) {
	f := newVideoFixture(t)
	ctx := context.Background()

	r := paidRequest(t, f)
	_, err := f.svc.AcceptRequest(ctx, r.ID)
	require.NoError(t, err)

	f.verifier.exists = false
	_, err = f.svc.CompleteRequest(ctx, r.ID, "videos/missing.mp4")
	assert.ErrorIs(t, err, video.ErrMissingAsset)

	stored, err := f.svc.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, stored.Status)
	o, err := f.svc.GetOrder(ctx, orderIDForRequest(r.ID))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, o.Status)
}

func TestRejectRequest_RejectsLinkedOrder(t *testing.T) {
	f := newVideoFixture(t)
	ctx := context.Background()

	r := paidRequest(t, f)
	_, err := f.svc.RejectRequest(ctx, r.ID, "performer injured")
	require.NoError(t, err)

	orderID := orderIDForRequest(r.ID)
	o, err := f.svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRejected, o.Status)
	assert.Equal(t, "performer injured", o.RejectionReason)

	_, err = f.svc.FulfillOrder(ctx, orderID, "videos/sam.mp4")
	assert.ErrorIs(t, err, video.ErrTerminal)
	assert.Empty(t, f.verifier.refs)
}

func TestFulfillOrder_CompletesLinkedRequest(t *testing.T) {
	f := newVideoFixture(t)
	ctx := context.Background()

	r := paidRequest(t, f)
	orderID := orderIDForRequest(r.ID)

	_, err := f.svc.FulfillOrder(ctx, orderID, "videos/sam.mp4")
	assert.ErrorIs(t, err, video.ErrInvalidTransition)
	assert.Empty(t, f.verifier.refs)

	_, err = f.svc.AcceptRequest(ctx, r.ID)
	require.NoError(t, err)
	o, err := f.svc.FulfillOrder(ctx, orderID, "videos/sam.mp4")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, o.Status)

	stored, err := f.svc.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCompleted, stored.Status)
	assert.Equal(t, "videos/sam.mp4", stored.VideoURL)

	_, err = f.svc.CompleteRequest(ctx, r.ID, "videos/other.mp4")
	assert.ErrorIs(t, err, video.ErrTerminal)
}

func TestRejectOrder_RejectsLinkedRequest(t *testing.T) {
	f := newVideoFixture(t)
	ctx := context.Background()

	r := paidRequest(t, f)
	_, err := f.svc.RejectOrder(ctx, orderIDForRequest(r.ID), "refunded")
	require.NoError(t, err)

	stored, err := f.svc.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, stored.Status)
	assert.Equal(t, "refunded", stored.RejectionReason)
}

func TestFulfillOrder_InvalidAssetRef(t *testing.T) {
	f := newVideoFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, &CreateOrderRequest{Buyer: "user-42", Performer: "performer-7", Price: decimal.NewFromInt(99)})
	require.NoError(t, err)
	_, err = f.svc.ConfirmOrderPayment(ctx, o.ID)
	require.NoError(t, err)

	f.verifier.err = fmt.Errorf("%w: unsupported scheme %q", assets.ErrInvalidRef, "ftp")
	_, err = f.svc.FulfillOrder(ctx, o.ID, "ftp://files.example.com/o1.mp4")
	assert.ErrorIs(t, err, video.ErrInvalidRequest)
	assert.ErrorIs(t, err, assets.ErrInvalidRef)

	stored, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
}
