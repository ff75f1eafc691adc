package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeAuctionCreated        = "AUCTION_CREATED"
	EventTypeAuctionDeleted        = "AUCTION_DELETED"
	EventTypeBidPlaced             = "BID_PLACED"
	EventTypeVideoRequestSubmitted = "VIDEO_REQUEST_SUBMITTED"
	EventTypeVideoRequestUpdated   = "VIDEO_REQUEST_UPDATED"
	EventTypeVideoOrderCreated     = "VIDEO_ORDER_CREATED"
	EventTypeVideoOrderUpdated     = "VIDEO_ORDER_UPDATED"
	EventTypePaymentCaptured       = "PAYMENT_CAPTURED"
	EventTypePaymentFailed         = "PAYMENT_FAILED"
)

// Payment targets
const (
	PaymentTargetRequest = "video_request"
	PaymentTargetOrder   = "video_order"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// AuctionEvent published when an auction is created or deleted
type AuctionEvent struct {
	BaseEvent
	AuctionID  string          `json:"auction_id"`
	PlayerName string          `json:"player_name"`
	CurrentBid decimal.Decimal `json:"current_bid"`
	BidCount   int             `json:"bid_count"`
	EndTime    time.Time       `json:"end_time"`
}

// BidPlacedEvent published when a bid is accepted
type BidPlacedEvent struct {
	BaseEvent
	AuctionID   string          `json:"auction_id"`
	BidID       string          `json:"bid_id"`
	Bidder      string          `json:"bidder"`
	Amount      decimal.Decimal `json:"amount"`
	PreviousBid decimal.Decimal `json:"previous_bid"`
	MinimumNext decimal.Decimal `json:"minimum_next"`
}

// VideoRequestEvent published on every video request transition
type VideoRequestEvent struct {
	BaseEvent
	RequestID string        `json:"request_id"`
	Requester string        `json:"requester"`
	Performer string        `json:"performer"`
	Status    RequestStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
}

// VideoOrderEvent published on every video order transition
type VideoOrderEvent struct {
	BaseEvent
	OrderID       string          `json:"order_id"`
	RequestID     string          `json:"request_id,omitempty"`
	Buyer         string          `json:"buyer"`
	Price         decimal.Decimal `json:"price"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	VideoURL      string          `json:"video_url,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// PaymentCapturedEvent published by the payment provider bridge
type PaymentCapturedEvent struct {
	BaseEvent
	Target     string          `json:"target"`
	TargetID   string          `json:"target_id"`
	Amount     decimal.Decimal `json:"amount"`
	ProviderTx string          `json:"provider_tx"`
}

// PaymentFailedEvent published by the payment provider bridge
type PaymentFailedEvent struct {
	BaseEvent
	Target   string `json:"target"`
	TargetID string `json:"target_id"`
	Reason   string `json:"reason"`
}
