package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

//go:embed scripts/raise_bid.lua
var raiseBidScript string

// ErrNoCachedBid is returned when no high bid is cached for an auction
var ErrNoCachedBid = errors.New("no cached bid")

type Client struct {
	rdb         *redis.Client
	raiseScript *redis.Script
}

// CachedBid is the high bid mirrored into Redis
type CachedBid struct {
	Amount decimal.Decimal
	Bidder string
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:         rdb,
		raiseScript: redis.NewScript(raiseBidScript),
	}
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func bidKey(auctionID string) string {
	return fmt.Sprintf("bid:%s", auctionID)
}

// RaiseBid atomically mirrors a bid if it exceeds the cached one.
// Returns true if the cached high bid moved.
func (c *Client) RaiseBid(ctx context.Context, auctionID, bidder string, amount decimal.Decimal, ttl time.Duration) (bool, error) {
	cents := amount.Shift(2).Round(0).IntPart()

	result, err := c.raiseScript.Run(ctx, c.rdb, []string{bidKey(auctionID)},
		cents, bidder, amount.String(), int64(ttl/time.Second)).Result()
	if err != nil {
		return false, fmt.Errorf("raise bid script failed: %w", err)
	}

	moved, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return moved == 1, nil
}

// GetCurrentBid returns the cached high bid for an auction
func (c *Client) GetCurrentBid(ctx context.Context, auctionID string) (CachedBid, error) {
	result, err := c.rdb.HGetAll(ctx, bidKey(auctionID)).Result()
	if err != nil {
		return CachedBid{}, err
	}

	if len(result) == 0 {
		return CachedBid{}, fmt.Errorf("auction %s: %w", auctionID, ErrNoCachedBid)
	}

	amount, err := decimal.NewFromString(result["amount"])
	if err != nil {
		return CachedBid{}, fmt.Errorf("cached bid for %s: %w", auctionID, err)
	}

	return CachedBid{Amount: amount, Bidder: result["bidder"]}, nil
}

// ForgetBid drops the cached high bid
func (c *Client) ForgetBid(ctx context.Context, auctionID string) error {
	return c.rdb.Del(ctx, bidKey(auctionID)).Err()
}

// ClaimIdempotencyKey stores an idempotency key with TTL.
// Returns false if the key was already claimed.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), "1", ttl).Result()
}

// ReleaseIdempotencyKey removes a claimed key so the event can be retried
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("idempotency:%s", key)).Err()
}
