package video

import (
	"testing"
	"time"

	"memorabilia-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 18, 15, 30, 0, 0, time.UTC)

func validDetails() RequestDetails {
	return RequestDetails{
		Requester:     "user-42",
		Performer:     "performer-7",
		RecipientName: "Sam",
		Occasion:      "Birthday",
		Message:       "Happy 10th birthday, Sam!",
		DeliveryDate:  now.AddDate(0, 0, 20),
	}
}

func TestSubmitRequest(t *testing.T) {
	r, err := SubmitRequest(validDetails(), FlowReview, now, DefaultMinLead)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, r.Status)
	assert.Equal(t, "Sam", r.RecipientName)
	assert.Equal(t, time.Date(2026, 11, 7, 0, 0, 0, 0, time.UTC), r.DeliveryDate)
	assert.Empty(t, r.VideoURL)

	d := validDetails()
	d.Price = decimal.NewFromInt(150)
	r, err = SubmitRequest(d, FlowCheckout, now, DefaultMinLead)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPendingPayment, r.Status)
	assert.True(t, decimal.NewFromInt(150).Equal(r.Price))
}

func TestSubmitRequest_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RequestDetails)
		flow   Flow
		want   error
	}{
		{"missing recipient", func(d *RequestDetails) { d.RecipientName = " " }, FlowReview, ErrInvalidRequest},
		{"missing occasion", func(d *RequestDetails) { d.Occasion = "" }, FlowReview, ErrInvalidRequest},
		{"missing message", func(d *RequestDetails) { d.Message = "" }, FlowReview, ErrInvalidRequest},
		{"missing requester", func(d *RequestDetails) { d.Requester = "" }, FlowReview, ErrInvalidRequest},
		{"missing delivery date", func(d *RequestDetails) { d.DeliveryDate = time.Time{} }, FlowReview, ErrInvalidRequest},
		{"delivery in five days", func(d *RequestDetails) { d.DeliveryDate = now.AddDate(0, 0, 5) }, FlowReview, ErrDeliveryTooSoon},
		{"delivery in thirteen days", func(d *RequestDetails) { d.DeliveryDate = now.AddDate(0, 0, 13) }, FlowReview, ErrDeliveryTooSoon},
		{"checkout without price", func(d *RequestDetails) {}, FlowCheckout, ErrInvalidRequest},
		{"unknown flow", func(d *RequestDetails) {}, Flow("express"), ErrInvalidRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := validDetails()
			tc.mutate(&d)
			_, err := SubmitRequest(d, tc.flow, now, DefaultMinLead)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSubmitRequest_LeadTimeBoundary(t *testing.T) {
	d := validDetails()
	// fourteen calendar days out, earlier in the day than now
	d.DeliveryDate = time.Date(2026, 11, 1, 1, 0, 0, 0, time.UTC)
	_, err := SubmitRequest(d, FlowReview, now, DefaultMinLead)
	assert.NoError(t, err)
}

func TestRequestPaymentPath(t *testing.T) {
	r, err := SubmitRequest(validDetails(), FlowReview, now, DefaultMinLead)
	require.NoError(t, err)

	r, err = Quote(r, decimal.NewFromInt(200), now)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPendingPayment, r.Status)

	paid, changed, err := ConfirmRequestPayment(r, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.RequestStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	again, changed, err := ConfirmRequestPayment(paid, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, paid, again)

	accepted, err := Accept(paid, now)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, accepted.Status)

	_, err = CompleteRequest(accepted, "", now)
	assert.ErrorIs(t, err, ErrMissingAsset)

	done, err := CompleteRequest(accepted, "videos/sam.mp4", now)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCompleted, done.Status)
	assert.Equal(t, "videos/sam.mp4", done.VideoURL)

	_, changed, err = ConfirmRequestPayment(done, now)
	assert.NoError(t, err)
	assert.False(t, changed)
}

func TestRequestDirectReviewPath(t *testing.T) {
	r, err := SubmitRequest(validDetails(), FlowReview, now, DefaultMinLead)
	require.NoError(t, err)

	accepted, err := Accept(r, now)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, accepted.Status)
	assert.Nil(t, accepted.PaidAt)

	// payment arriving after acceptance is recorded without moving status back
	paid, changed, err := ConfirmRequestPayment(accepted, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.RequestStatusAccepted, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	rejected, err := RejectRequest(r, "performer unavailable", now)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, rejected.Status)
	assert.Equal(t, "performer unavailable", rejected.RejectionReason)
}

func TestRequestInvalidTransitions(t *testing.T) {
	r, err := SubmitRequest(validDetails(), FlowReview, now, DefaultMinLead)
	require.NoError(t, err)

	_, err = CompleteRequest(r, "videos/a.mp4", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	pp := r
	pp.Status = models.RequestStatusPendingPayment
	_, err = Accept(pp, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = Quote(pp, decimal.NewFromInt(10), now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = Quote(r, decimal.Zero, now)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRequestTerminalStates(t *testing.T) {
	for _, status := range []models.RequestStatus{models.RequestStatusCompleted, models.RequestStatusRejected} {
		t.Run(string(status), func(t *testing.T) {
			r := models.VideoRequest{ID: "req-1", Status: status}
			if status == models.RequestStatusCompleted {
				r.VideoURL = "videos/done.mp4"
			}

			got, err := RejectRequest(r, "late", now)
			assert.ErrorIs(t, err, ErrTerminal)
			assert.Equal(t, r, got)

			_, err = CompleteRequest(r, "videos/other.mp4", now)
			assert.ErrorIs(t, err, ErrTerminal)

			_, err = Accept(r, now)
			assert.ErrorIs(t, err, ErrTerminal)

			_, err = Quote(r, decimal.NewFromInt(1), now)
			assert.ErrorIs(t, err, ErrTerminal)
		})
	}

	_, _, err := ConfirmRequestPayment(models.VideoRequest{Status: models.RequestStatusRejected}, now)
	assert.ErrorIs(t, err, ErrPayment)
}

func TestRequestVideoURLOnlyWhenCompleted(t *testing.T) {
	r, err := SubmitRequest(validDetails(), FlowReview, now, DefaultMinLead)
	require.NoError(t, err)

	steps := []func(models.VideoRequest) (models.VideoRequest, error){
		func(r models.VideoRequest) (models.VideoRequest, error) { return Accept(r, now) },
		func(r models.VideoRequest) (models.VideoRequest, error) { return CompleteRequest(r, "videos/x.mp4", now) },
	}
	for _, step := range steps {
		assert.Equal(t, r.Status == models.RequestStatusCompleted, r.VideoURL != "")
		r, err = step(r)
		require.NoError(t, err)
	}
	assert.Equal(t, r.Status == models.RequestStatusCompleted, r.VideoURL != "")
}
