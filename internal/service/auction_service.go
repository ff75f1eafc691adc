package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memorabilia-service/internal/auction"
	"memorabilia-service/internal/clock"
	"memorabilia-service/internal/docstore"
	"memorabilia-service/internal/models"
	"memorabilia-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultBidRetries bounds re-reads after a concurrent bid
const DefaultBidRetries = 5

// AuctionDeps wires the auction service. Nil optional fields are replaced by no-ops.
type AuctionDeps struct {
	Store      docstore.Store
	Engine     *auction.Engine
	Clock      clock.Clock
	Events     AuctionEvents
	Cache      BidCache
	Feed       BidFeed
	MaxRetries int
}

// AuctionService handles auction business logic
type AuctionService struct {
	store      docstore.Store
	engine     *auction.Engine
	clock      clock.Clock
	events     AuctionEvents
	cache      BidCache
	feed       BidFeed
	maxRetries int
	logger     *zap.Logger
}

// NewAuctionService creates a new auction service
func NewAuctionService(deps AuctionDeps) *AuctionService {
	s := &AuctionService{
		store:      deps.Store,
		engine:     deps.Engine,
		clock:      deps.Clock,
		events:     deps.Events,
		cache:      deps.Cache,
		feed:       deps.Feed,
		maxRetries: deps.MaxRetries,
		logger:     util.GetLogger(),
	}
	if s.engine == nil {
		s.engine = auction.NewEngine(auction.DefaultIncrementPercent)
	}
	if s.clock == nil {
		s.clock = clock.NewSystem()
	}
	if s.events == nil {
		s.events = nopEvents{}
	}
	if s.cache == nil {
		s.cache = nopCache{}
	}
	if s.feed == nil {
		s.feed = nopFeed{}
	}
	if s.maxRetries <= 0 {
		s.maxRetries = DefaultBidRetries
	}
	return s
}

// CreateAuctionRequest represents a request to list an item
type CreateAuctionRequest struct {
	PlayerName  string          `json:"player_name" binding:"required"`
	Team        string          `json:"team"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	StartingBid decimal.Decimal `json:"starting_bid"`
	EndTime     time.Time       `json:"end_time" binding:"required"`
}

// AuctionView is an auction with its derived state
type AuctionView struct {
	models.Auction
	State       auction.State   `json:"state"`
	MinimumNext decimal.Decimal `json:"minimum_next_bid"`
	Winner      *models.Bid     `json:"winner,omitempty"`
}

// PlaceBidRequest represents a bid submission
type PlaceBidRequest struct {
	Bidder string          `json:"bidder" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// PlaceBidResponse is returned for an accepted bid
type PlaceBidResponse struct {
	Bid         models.Bid      `json:"bid"`
	CurrentBid  decimal.Decimal `json:"current_bid"`
	MinimumNext decimal.Decimal `json:"minimum_next_bid"`
}

func (s *AuctionService) view(a models.Auction) AuctionView {
	now := s.clock.Now()
	v := AuctionView{
		Auction:     a,
		State:       auction.StateAt(a, now),
		MinimumNext: s.engine.MinimumNextBid(a),
	}
	if w, ok := auction.Winner(a, now); ok {
		v.Winner = &w
	}
	return v
}

// CreateAuction validates and stores a new auction
func (s *AuctionService) CreateAuction(ctx context.Context, req *CreateAuctionRequest) (*AuctionView, error) {
	ctx, span := util.StartSpan(ctx, "AuctionService.CreateAuction")
	defer span.End()

	a, err := s.engine.NewAuction(auction.CreateParams{
		PlayerName:  req.PlayerName,
		Team:        req.Team,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		StartingBid: req.StartingBid,
		EndTime:     req.EndTime,
	}, s.clock.Now())
	if err != nil {
		return nil, err
	}

	id, err := s.store.Create(ctx, models.CollectionAuctions, auctionToData(a))
	if err != nil {
		return nil, storageError("auction", "", err)
	}
	a.ID = id
	a.Version = 1

	util.AuctionsCreatedTotal.Inc()
	s.logger.Info("Auction created",
		zap.String("auction_id", id),
		zap.String("player_name", a.PlayerName),
		zap.Time("end_time", a.EndTime))

	s.publishAuction(ctx, models.EventTypeAuctionCreated, a)

	v := s.view(a)
	return &v, nil
}

// GetAuction retrieves an auction by id
func (s *AuctionService) GetAuction(ctx context.Context, id string) (*AuctionView, error) {
	ctx, span := util.StartSpan(ctx, "AuctionService.GetAuction")
	defer span.End()

	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	v := s.view(a)
	return &v, nil
}

// ListAuctions returns auctions ordered by end time, optionally only active ones
func (s *AuctionService) ListAuctions(ctx context.Context, activeOnly bool) ([]AuctionView, error) {
	ctx, span := util.StartSpan(ctx, "AuctionService.ListAuctions")
	defer span.End()

	docs, err := s.store.Query(ctx, models.CollectionAuctions, nil, &docstore.Order{Field: "end_time"})
	if err != nil {
		return nil, storageError("auctions", "", err)
	}

	now := s.clock.Now()
	views := make([]AuctionView, 0, len(docs))
	for _, doc := range docs {
		if activeOnly && !auction.IsActiveRaw(doc.Data["end_time"], now) {
			continue
		}
		a, err := auctionFromDocument(doc)
		if err != nil {
			s.logger.Warn("Skipping unreadable auction", zap.String("auction_id", doc.ID), zap.Error(err))
			continue
		}
		views = append(views, s.view(a))
	}
	return views, nil
}

// MinimumNextBid returns the smallest acceptable bid for an auction. A cached
// high bid answers without a store read; PlaceBid still validates against the store.
func (s *AuctionService) MinimumNextBid(ctx context.Context, id string) (decimal.Decimal, error) {
	amount, ok, err := s.cache.CurrentBid(ctx, id)
	if err != nil {
		s.logger.Warn("Failed to read cached bid", zap.String("auction_id", id), zap.Error(err))
	}
	if ok {
		util.BidCacheReads.WithLabelValues("hit").Inc()
		return s.engine.MinimumNextBid(models.Auction{CurrentBid: amount}), nil
	}
	util.BidCacheReads.WithLabelValues("miss").Inc()

	a, err := s.load(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return s.engine.MinimumNextBid(a), nil
}

// PlaceBid validates and records a bid with an optimistic version check.
// A concurrent write causes a re-read, so a losing bid is judged against the winner.
func (s *AuctionService) PlaceBid(ctx context.Context, auctionID string, req *PlaceBidRequest) (*PlaceBidResponse, error) {
	ctx, span := util.StartSpan(ctx, "AuctionService.PlaceBid")
	defer span.End()

	start := time.Now()
	defer func() {
		util.BidLatency.Observe(time.Since(start).Seconds())
	}()

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		current, err := s.load(ctx, auctionID)
		if err != nil {
			return nil, err
		}

		updated, bid, err := s.engine.PlaceBid(current, req.Bidder, req.Amount, s.clock.Now())
		if err != nil {
			util.BidsRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
			return nil, err
		}

		err = s.store.ConditionalUpdate(ctx, models.CollectionAuctions, auctionID, current.Version, auctionToData(updated))
		if errors.Is(err, docstore.ErrConflict) {
			util.BidConflictRetries.Inc()
			s.logger.Debug("Bid lost a concurrent write, retrying",
				zap.String("auction_id", auctionID),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			err = storageError("auction", auctionID, err)
			util.RecordError(span, err)
			return nil, err
		}
		updated.Version = current.Version + 1

		minimumNext := s.engine.MinimumNextBid(updated)
		util.BidsPlacedTotal.Inc()
		s.logger.Info("Bid placed",
			zap.String("auction_id", auctionID),
			zap.String("bidder", bid.Bidder),
			zap.String("amount", bid.Amount.String()))

		s.afterBid(ctx, current, updated, bid, minimumNext)

		return &PlaceBidResponse{
			Bid:         bid,
			CurrentBid:  updated.CurrentBid,
			MinimumNext: minimumNext,
		}, nil
	}

	util.BidsRejectedTotal.WithLabelValues("conflict").Inc()
	err := fmt.Errorf("auction %s: %w", auctionID, ErrConflict)
	util.RecordError(span, err)
	return nil, err
}

func (s *AuctionService) afterBid(ctx context.Context, before, after models.Auction, bid models.Bid, minimumNext decimal.Decimal) {
	ttl := after.EndTime.Sub(s.clock.Now()) + time.Hour
	if _, err := s.cache.RaiseBid(ctx, after.ID, bid.Bidder, bid.Amount, ttl); err != nil {
		s.logger.Warn("Failed to cache bid", zap.String("auction_id", after.ID), zap.Error(err))
	}

	s.feed.BroadcastBid(after, bid, minimumNext)

	event := &models.BidPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeBidPlaced,
			Timestamp: s.clock.Now(),
		},
		AuctionID:   after.ID,
		BidID:       bid.ID,
		Bidder:      bid.Bidder,
		Amount:      bid.Amount,
		PreviousBid: before.CurrentBid,
		MinimumNext: minimumNext,
	}
	if err := s.events.PublishBidPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish BID_PLACED event", zap.Error(err))
	}
}

// DeleteAuction removes an auction. Auctions with bids need force.
func (s *AuctionService) DeleteAuction(ctx context.Context, id string, force bool) error {
	ctx, span := util.StartSpan(ctx, "AuctionService.DeleteAuction")
	defer span.End()

	a, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if len(a.BidHistory) > 0 && !force {
		return fmt.Errorf("auction %s has %d bids: %w", id, len(a.BidHistory), ErrAuctionHasBids)
	}

	if err := s.store.Delete(ctx, models.CollectionAuctions, id); err != nil {
		return storageError("auction", id, err)
	}

	util.AuctionsDeletedTotal.Inc()
	s.logger.Info("Auction deleted",
		zap.String("auction_id", id),
		zap.Int("bids", len(a.BidHistory)),
		zap.Bool("forced", force))

	if err := s.cache.ForgetBid(ctx, id); err != nil {
		s.logger.Warn("Failed to drop cached bid", zap.String("auction_id", id), zap.Error(err))
	}
	s.feed.BroadcastDeleted(id)
	s.publishAuction(ctx, models.EventTypeAuctionDeleted, a)
	return nil
}

func (s *AuctionService) load(ctx context.Context, id string) (models.Auction, error) {
	doc, err := s.store.Get(ctx, models.CollectionAuctions, id)
	if err != nil {
		return models.Auction{}, storageError("auction", id, err)
	}
	a, err := auctionFromDocument(doc)
	if err != nil {
		return models.Auction{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return a, nil
}

func (s *AuctionService) publishAuction(ctx context.Context, eventType string, a models.Auction) {
	event := &models.AuctionEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: s.clock.Now(),
		},
		AuctionID:  a.ID,
		PlayerName: a.PlayerName,
		CurrentBid: a.CurrentBid,
		BidCount:   len(a.BidHistory),
		EndTime:    a.EndTime,
	}

	var err error
	if eventType == models.EventTypeAuctionDeleted {
		err = s.events.PublishAuctionDeleted(ctx, event)
	} else {
		err = s.events.PublishAuctionCreated(ctx, event)
	}
	if err != nil {
		s.logger.Error("Failed to publish auction event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, auction.ErrBidTooLow):
		return "too_low"
	case errors.Is(err, auction.ErrAuctionEnded):
		return "ended"
	default:
		return "invalid"
	}
}
