package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"memorabilia-service/internal/docstore"
	"memorabilia-service/internal/models"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type recordingEvents struct {
	mu    sync.Mutex
	types []string
	bids  []*models.BidPlacedEvent
}

func (r *recordingEvents) record(t string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, t)
}

func (r *recordingEvents) PublishAuctionCreated(ctx context.Context, e *models.AuctionEvent) error {
	r.record(e.EventType)
	return nil
}

func (r *recordingEvents) PublishAuctionDeleted(ctx context.Context, e *models.AuctionEvent) error {
	r.record(e.EventType)
	return nil
}

func (r *recordingEvents) PublishBidPlaced(ctx context.Context, e *models.BidPlacedEvent) error {
	r.record(e.EventType)
	r.mu.Lock()
	r.bids = append(r.bids, e)
	r.mu.Unlock()
	return nil
}

func (r *recordingEvents) PublishVideoRequest(ctx context.Context, e *models.VideoRequestEvent) error {
	r.record(e.EventType + ":" + string(e.Status))
	return nil
}

func (r *recordingEvents) PublishVideoOrder(ctx context.Context, e *models.VideoOrderEvent) error {
	r.record(e.EventType + ":" + string(e.Status) + "/" + string(e.PaymentStatus))
	return nil
}

func (r *recordingEvents) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

type recordingFeed struct {
	mu      sync.Mutex
	bids    []models.Bid
	deleted []string
}

func (f *recordingFeed) BroadcastBid(a models.Auction, bid models.Bid, minimumNext decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bids = append(f.bids, bid)
}

func (f *recordingFeed) BroadcastDeleted(auctionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, auctionID)
}

type recordingCache struct {
	mu     sync.Mutex
	high   map[string]decimal.Decimal
	forgot []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{high: make(map[string]decimal.Decimal)}
}

func (c *recordingCache) RaiseBid(ctx context.Context, auctionID, bidder string, amount decimal.Decimal, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.high[auctionID]; ok && amount.LessThanOrEqual(cur) {
		return false, nil
	}
	c.high[auctionID] = amount
	return true, nil
}

func (c *recordingCache) CurrentBid(ctx context.Context, auctionID string) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	amount, ok := c.high[auctionID]
	return amount, ok, nil
}

func (c *recordingCache) ForgetBid(ctx context.Context, auctionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.high, auctionID)
	c.forgot = append(c.forgot, auctionID)
	return nil
}

// barrierStore holds the first n Get calls until all of them have read,
// so concurrent writers start from the same version.
type barrierStore struct {
	docstore.Store
	mu   sync.Mutex
	n    int
	gets int
	wg   sync.WaitGroup
}

func newBarrierStore(inner docstore.Store, n int) *barrierStore {
	b := &barrierStore{Store: inner, n: n}
	b.wg.Add(n)
	return b
}

func (b *barrierStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	doc, err := b.Store.Get(ctx, collection, id)

	b.mu.Lock()
	b.gets++
	gated := b.gets <= b.n
	b.mu.Unlock()

	if gated {
		b.wg.Done()
		b.wg.Wait()
	}
	return doc, err
}

// failingCreateStore fails the next fail CreateWithID calls
type failingCreateStore struct {
	docstore.Store
	mu   sync.Mutex
	fail int
}

func (s *failingCreateStore) CreateWithID(ctx context.Context, collection, id string, data map[string]any) error {
	s.mu.Lock()
	failing := s.fail > 0
	if failing {
		s.fail--
	}
	s.mu.Unlock()

	if failing {
		return errors.New("connection refused")
	}
	return s.Store.CreateWithID(ctx, collection, id, data)
}

type stubVerifier struct {
	exists bool
	err    error
	refs   []string
}

func (v *stubVerifier) Exists(ctx context.Context, ref string) (bool, error) {
	v.refs = append(v.refs, ref)
	return v.exists, v.err
}
