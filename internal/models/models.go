package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Collections in the document store
const (
	CollectionAuctions      = "auctions"
	CollectionVideoRequests = "video_requests"
	CollectionVideoOrders   = "video_orders"
)

// Auction represents a timed memorabilia listing
type Auction struct {
	ID          string          `json:"id"`
	PlayerName  string          `json:"player_name"`
	Team        string          `json:"team"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	StartingBid decimal.Decimal `json:"starting_bid"`
	CurrentBid  decimal.Decimal `json:"current_bid"`
	EndTime     time.Time       `json:"end_time"`
	BidHistory  []Bid           `json:"bid_history"`
	CreatedAt   time.Time       `json:"created_at"`
	Version     int64           `json:"version"`
}

// LastBid returns the most recent accepted bid
func (a Auction) LastBid() (Bid, bool) {
	if len(a.BidHistory) == 0 {
		return Bid{}, false
	}
	return a.BidHistory[len(a.BidHistory)-1], true
}

// Bid represents an accepted offer on an auction
type Bid struct {
	ID       string          `json:"id"`
	Bidder   string          `json:"bidder"`
	Amount   decimal.Decimal `json:"amount"`
	PlacedAt time.Time       `json:"placed_at"`
}

// RequestStatus is the lifecycle state of a video request
type RequestStatus string

// Video request statuses
const (
	RequestStatusPending        RequestStatus = "pending"
	RequestStatusPendingPayment RequestStatus = "pending_payment"
	RequestStatusPaid           RequestStatus = "paid"
	RequestStatusAccepted       RequestStatus = "accepted"
	RequestStatusCompleted      RequestStatus = "completed"
	RequestStatusRejected       RequestStatus = "rejected"
)

// Valid reports whether s is a known request status
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusPendingPayment, RequestStatusPaid,
		RequestStatusAccepted, RequestStatusCompleted, RequestStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusRejected
}

// OrderStatus is the fulfillment state of a video order
type OrderStatus string

// Video order statuses
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	return s == OrderStatusPending || s == OrderStatusCompleted || s == OrderStatusRejected
}

// Terminal reports whether no further transitions are allowed
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusRejected
}

// PaymentStatus is the payment state of a video order
type PaymentStatus string

// Payment statuses
const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Valid reports whether s is a known payment status
func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid || s == PaymentStatusFailed
}

// VideoRequest represents a customer's ask for a personalized video
type VideoRequest struct {
	ID              string          `json:"id"`
	Requester       string          `json:"requester"`
	Performer       string          `json:"performer"`
	RecipientName   string          `json:"recipient_name"`
	Occasion        string          `json:"occasion"`
	Message         string          `json:"message"`
	DeliveryDate    time.Time       `json:"delivery_date"`
	Price           decimal.Decimal `json:"price"`
	Status          RequestStatus   `json:"status"`
	VideoURL        string          `json:"video_url,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int64           `json:"version"`
}

// VideoOrder represents the billable instance of a video request
type VideoOrder struct {
	ID              string          `json:"id"`
	RequestID       string          `json:"request_id,omitempty"`
	Buyer           string          `json:"buyer"`
	Performer       string          `json:"performer"`
	Price           decimal.Decimal `json:"price"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	VideoURL        string          `json:"video_url,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int64           `json:"version"`
}
