package service

import (
	"context"
	"errors"
	"time"

	"memorabilia-service/internal/auction"
	"memorabilia-service/internal/clock"
	"memorabilia-service/internal/docstore"
	"memorabilia-service/internal/models"
	"memorabilia-service/internal/redisclient"
	"memorabilia-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BidMirror keeps Redis in step with the authoritative auction documents
type BidMirror struct {
	store  docstore.Store
	redis  *redisclient.Client
	clock  clock.Clock
	logger *zap.Logger
}

// NewBidMirror creates a new bid mirror
func NewBidMirror(store docstore.Store, redis *redisclient.Client, clk clock.Clock) *BidMirror {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &BidMirror{
		store:  store,
		redis:  redis,
		clock:  clk,
		logger: util.Named("bid-cache"),
	}
}

// RaiseBid mirrors an accepted bid (monotonic, via Lua)
func (m *BidMirror) RaiseBid(ctx context.Context, auctionID, bidder string, amount decimal.Decimal, ttl time.Duration) (bool, error) {
	ctx, span := util.StartSpan(ctx, "BidMirror.RaiseBid")
	defer span.End()

	return m.redis.RaiseBid(ctx, auctionID, bidder, amount, ttl)
}

// CurrentBid reads the mirrored high bid
func (m *BidMirror) CurrentBid(ctx context.Context, auctionID string) (decimal.Decimal, bool, error) {
	cached, err := m.redis.GetCurrentBid(ctx, auctionID)
	if errors.Is(err, redisclient.ErrNoCachedBid) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return cached.Amount, true, nil
}

// ForgetBid drops a deleted auction from the cache
func (m *BidMirror) ForgetBid(ctx context.Context, auctionID string) error {
	return m.redis.ForgetBid(ctx, auctionID)
}

// SyncBidsToRedis seeds the cache with the high bid of every active auction
func (m *BidMirror) SyncBidsToRedis(ctx context.Context) error {
	m.logger.Info("Starting bid sync to Redis")

	docs, err := m.store.Query(ctx, models.CollectionAuctions, nil, nil)
	if err != nil {
		return storageError("auctions", "", err)
	}

	now := m.clock.Now()
	synced := 0
	for _, doc := range docs {
		if !auction.IsActiveRaw(doc.Data["end_time"], now) {
			continue
		}
		a, err := auctionFromDocument(doc)
		if err != nil {
			m.logger.Error("Failed to read auction", zap.String("auction_id", doc.ID), zap.Error(err))
			continue
		}
		last, ok := a.LastBid()
		if !ok {
			continue
		}
		if _, err := m.redis.RaiseBid(ctx, a.ID, last.Bidder, last.Amount, a.EndTime.Sub(now)+time.Hour); err != nil {
			m.logger.Error("Failed to sync bid to Redis", zap.String("auction_id", a.ID), zap.Error(err))
			continue
		}
		synced++
	}

	m.logger.Info("Bid sync completed", zap.Int("count", synced))
	return nil
}
