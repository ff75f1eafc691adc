package service

import (
	"context"
	"time"

	"memorabilia-service/internal/models"

	"github.com/shopspring/decimal"
)

// AuctionEvents publishes auction domain events
type AuctionEvents interface {
	PublishAuctionCreated(ctx context.Context, event *models.AuctionEvent) error
	PublishAuctionDeleted(ctx context.Context, event *models.AuctionEvent) error
	PublishBidPlaced(ctx context.Context, event *models.BidPlacedEvent) error
}

// VideoEvents publishes video request and order events
type VideoEvents interface {
	PublishVideoRequest(ctx context.Context, event *models.VideoRequestEvent) error
	PublishVideoOrder(ctx context.Context, event *models.VideoOrderEvent) error
}

// BidCache mirrors the high bid of each auction outside the document store.
// CurrentBid reports false when nothing is cached.
type BidCache interface {
	RaiseBid(ctx context.Context, auctionID, bidder string, amount decimal.Decimal, ttl time.Duration) (bool, error)
	CurrentBid(ctx context.Context, auctionID string) (decimal.Decimal, bool, error)
	ForgetBid(ctx context.Context, auctionID string) error
}

// BidFeed pushes accepted bids to live watchers
type BidFeed interface {
	BroadcastBid(a models.Auction, bid models.Bid, minimumNext decimal.Decimal)
	BroadcastDeleted(auctionID string)
}

// IdempotencyStore remembers processed event ids
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

type nopEvents struct{}

func (nopEvents) PublishAuctionCreated(context.Context, *models.AuctionEvent) error { return nil }
func (nopEvents) PublishAuctionDeleted(context.Context, *models.AuctionEvent) error { return nil }
func (nopEvents) PublishBidPlaced(context.Context, *models.BidPlacedEvent) error { return nil }
func (nopEvents) PublishVideoRequest(context.Context, *models.VideoRequestEvent) error { return nil }
func (nopEvents) PublishVideoOrder(context.Context, *models.VideoOrderEvent) error { return nil }

type nopCache struct{}

func (nopCache) RaiseBid(context.Context, string, string, decimal.Decimal, time.Duration) (bool, error) {
	return false, nil
}
func (nopCache) CurrentBid(context.Context, string) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}
func (nopCache) ForgetBid(context.Context, string) error { return nil }

type nopFeed struct{}

func (nopFeed) BroadcastBid(models.Auction, models.Bid, decimal.Decimal) {}
func (nopFeed) BroadcastDeleted(string) {}
