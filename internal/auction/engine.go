// Package auction holds the bidding rules for timed memorabilia auctions.
// Everything here is pure: callers load an Auction, ask the engine for the
// next value and persist it themselves.
package auction

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"memorabilia-service/internal/models"
	"memorabilia-service/internal/timeutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidBid     = errors.New("invalid bid")
	ErrInvalidAuction = errors.New("invalid auction")
	ErrAuctionEnded   = errors.New("auction has ended")
	ErrBidTooLow      = errors.New("bid amount too low")
)

// DefaultIncrementPercent is the minimum raise over the current bid
const DefaultIncrementPercent = 5

// State is the derived activity state of an auction
type State string

const (
	StateActive State = "active"
	StateEnded  State = "ended"
)

// Engine evaluates auctions under a fixed minimum increment
type Engine struct {
	factor decimal.Decimal
}

// NewEngine creates an engine requiring bids of at least (100+percent)% of the current bid
func NewEngine(incrementPercent int64) *Engine {
	if incrementPercent < 0 {
		incrementPercent = 0
	}
	return &Engine{
		factor: decimal.NewFromInt(100 + incrementPercent).Div(decimal.NewFromInt(100)),
	}
}

// CreateParams describes a new auction listing
type CreateParams struct {
	PlayerName  string
	Team        string
	Description string
	ImageURL    string
	StartingBid decimal.Decimal
	EndTime     time.Time
}

// NewAuction validates params and returns an auction with no bids
func (e *Engine) NewAuction(p CreateParams, now time.Time) (models.Auction, error) {
	if strings.TrimSpace(p.PlayerName) == "" {
		return models.Auction{}, fmt.Errorf("%w: player name is required", ErrInvalidAuction)
	}
	if p.StartingBid.IsNegative() {
		return models.Auction{}, fmt.Errorf("%w: starting bid must not be negative", ErrInvalidAuction)
	}
	if !p.EndTime.After(now) {
		return models.Auction{}, fmt.Errorf("%w: end time must be in the future", ErrInvalidAuction)
	}

	return models.Auction{
		PlayerName:  strings.TrimSpace(p.PlayerName),
		Team:        p.Team,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		StartingBid: p.StartingBid,
		CurrentBid:  p.StartingBid,
		EndTime:     p.EndTime.UTC(),
		BidHistory:  []models.Bid{},
		CreatedAt:   now.UTC(),
	}, nil
}

// IsActive reports whether the auction still accepts bids at now.
// An auction with an unknown end time is never active.
func IsActive(a models.Auction, now time.Time) bool {
	return !a.EndTime.IsZero() && a.EndTime.After(now)
}

// IsActiveRaw is IsActive for an end time that has not been normalized yet
func IsActiveRaw(endTime any, now time.Time) bool {
	t, err := timeutil.Normalize(endTime)
	if err != nil {
		return false
	}
	return t.After(now)
}

// StateAt returns the derived state of the auction at now
func StateAt(a models.Auction, now time.Time) State {
	if IsActive(a, now) {
		return StateActive
	}
	return StateEnded
}

// Winner returns the leading bid once the auction has ended
func Winner(a models.Auction, now time.Time) (models.Bid, bool) {
	if IsActive(a, now) {
		return models.Bid{}, false
	}
	return a.LastBid()
}

// MinimumNextBid returns ceil(currentBid * factor)
func (e *Engine) MinimumNextBid(a models.Auction) decimal.Decimal {
	return a.CurrentBid.Mul(e.factor).Ceil()
}

// PlaceBid validates a bid and returns the auction with the bid appended.
// The input auction is not modified.
func (e *Engine) PlaceBid(a models.Auction, bidder string, amount decimal.Decimal, now time.Time) (models.Auction, models.Bid, error) {
	if strings.TrimSpace(bidder) == "" {
		return a, models.Bid{}, fmt.Errorf("%w: bidder is required", ErrInvalidBid)
	}
	if !amount.IsPositive() {
		return a, models.Bid{}, fmt.Errorf("%w: amount must be positive", ErrInvalidBid)
	}
	if !IsActive(a, now) {
		return a, models.Bid{}, ErrAuctionEnded
	}

	minimum := e.MinimumNextBid(a)
	if amount.LessThan(minimum) || !amount.GreaterThan(a.CurrentBid) {
		return a, models.Bid{}, fmt.Errorf("%w: minimum is %s", ErrBidTooLow, minimum.StringFixed(2))
	}

	bid := models.Bid{
		ID:       uuid.New().String(),
		Bidder:   bidder,
		Amount:   amount,
		PlacedAt: now.UTC(),
	}

	next := a
	next.BidHistory = make([]models.Bid, len(a.BidHistory), len(a.BidHistory)+1)
	copy(next.BidHistory, a.BidHistory)
	next.BidHistory = append(next.BidHistory, bid)
	next.CurrentBid = amount

	return next, bid, nil
}
