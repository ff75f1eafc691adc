package service

import (
	"fmt"

	"memorabilia-service/internal/docstore"
	"memorabilia-service/internal/models"
	"memorabilia-service/internal/util"

	"go.uber.org/zap"
)

// Money is stored as decimal strings so every backend round-trips it exactly.

func auctionToData(a models.Auction) map[string]any {
	history := make([]any, 0, len(a.BidHistory))
	for _, b := range a.BidHistory {
		history = append(history, map[string]any{
			"id":        b.ID,
			"bidder":    b.Bidder,
			"amount":    b.Amount.String(),
			"placed_at": b.PlacedAt,
		})
	}

	return map[string]any{
		"player_name":  a.PlayerName,
		"team":         a.Team,
		"description":  a.Description,
		"image_url":    a.ImageURL,
		"starting_bid": a.StartingBid.String(),
		"current_bid":  a.CurrentBid.String(),
		"end_time":     a.EndTime,
		"bid_history":  history,
		"created_at":   a.CreatedAt,
	}
}

func auctionFromDocument(doc docstore.Document) (models.Auction, error) {
	f := docstore.Fields(doc.Data)
	a := models.Auction{
		ID:          doc.ID,
		PlayerName:  f.String("player_name"),
		Team:        f.String("team"),
		Description: f.String("description"),
		ImageURL:    f.String("image_url"),
		Version:     doc.Version,
	}

	var err error
	if a.StartingBid, err = f.Decimal("starting_bid"); err != nil {
		return a, fmt.Errorf("auction %s: %w", doc.ID, err)
	}
	if a.CurrentBid, err = f.Decimal("current_bid"); err != nil {
		return a, fmt.Errorf("auction %s: %w", doc.ID, err)
	}

	// an unreadable end time leaves the auction inactive instead of failing reads
	if a.EndTime, err = f.Time("end_time"); err != nil {
		util.GetLogger().Warn("Auction has malformed end_time",
			zap.String("auction_id", doc.ID),
			zap.Error(err))
	}
	if created, err := f.OptionalTime("created_at"); err == nil && created != nil {
		a.CreatedAt = *created
	}

	history, err := f.List("bid_history")
	if err != nil {
		return a, fmt.Errorf("auction %s: %w", doc.ID, err)
	}
	a.BidHistory = make([]models.Bid, 0, len(history))
	for _, h := range history {
		b := models.Bid{ID: h.String("id"), Bidder: h.String("bidder")}
		if b.Amount, err = h.Decimal("amount"); err != nil {
			return a, fmt.Errorf("auction %s bid %s: %w", doc.ID, b.ID, err)
		}
		if b.PlacedAt, err = h.Time("placed_at"); err != nil {
			return a, fmt.Errorf("auction %s bid %s: %w", doc.ID, b.ID, err)
		}
		a.BidHistory = append(a.BidHistory, b)
	}
	return a, nil
}

func requestToData(r models.VideoRequest) map[string]any {
	data := map[string]any{
		"requester":        r.Requester,
		"performer":        r.Performer,
		"recipient_name":   r.RecipientName,
		"occasion":         r.Occasion,
		"message":          r.Message,
		"delivery_date":    r.DeliveryDate,
		"price":            r.Price.String(),
		"status":           string(r.Status),
		"video_url":        r.VideoURL,
		"rejection_reason": r.RejectionReason,
		"created_at":       r.CreatedAt,
		"updated_at":       r.UpdatedAt,
	}
	if r.PaidAt != nil {
		data["paid_at"] = *r.PaidAt
	}
	return data
}

func requestFromDocument(doc docstore.Document) (models.VideoRequest, error) {
	f := docstore.Fields(doc.Data)
	r := models.VideoRequest{
		ID:              doc.ID,
		Requester:       f.String("requester"),
		Performer:       f.String("performer"),
		RecipientName:   f.String("recipient_name"),
		Occasion:        f.String("occasion"),
		Message:         f.String("message"),
		Status:          models.RequestStatus(f.String("status")),
		VideoURL:        f.String("video_url"),
		RejectionReason: f.String("rejection_reason"),
		Version:         doc.Version,
	}
	if !r.Status.Valid() {
		return r, fmt.Errorf("video request %s: unknown status %q", doc.ID, r.Status)
	}

	var err error
	if r.Price, err = f.Decimal("price"); err != nil {
		return r, fmt.Errorf("video request %s: %w", doc.ID, err)
	}
	if r.DeliveryDate, err = f.Time("delivery_date"); err != nil {
		return r, fmt.Errorf("video request %s: %w", doc.ID, err)
	}
	if r.PaidAt, err = f.OptionalTime("paid_at"); err != nil {
		return r, fmt.Errorf("video request %s: %w", doc.ID, err)
	}
	if r.CreatedAt, err = f.Time("created_at"); err != nil {
		return r, fmt.Errorf("video request %s: %w", doc.ID, err)
	}
	if r.UpdatedAt, err = f.Time("updated_at"); err != nil {
		return r, fmt.Errorf("video request %s: %w", doc.ID, err)
	}
	return r, nil
}

func orderToData(o models.VideoOrder) map[string]any {
	return map[string]any{
		"request_id":       o.RequestID,
		"buyer":            o.Buyer,
		"performer":        o.Performer,
		"price":            o.Price.String(),
		"status":           string(o.Status),
		"payment_status":   string(o.PaymentStatus),
		"video_url":        o.VideoURL,
		"rejection_reason": o.RejectionReason,
		"created_at":       o.CreatedAt,
		"updated_at":       o.UpdatedAt,
	}
}

func orderFromDocument(doc docstore.Document) (models.VideoOrder, error) {
	f := docstore.Fields(doc.Data)
	o := models.VideoOrder{
		ID:              doc.ID,
		RequestID:       f.String("request_id"),
		Buyer:           f.String("buyer"),
		Performer:       f.String("performer"),
		Status:          models.OrderStatus(f.String("status")),
		PaymentStatus:   models.PaymentStatus(f.String("payment_status")),
		VideoURL:        f.String("video_url"),
		RejectionReason: f.String("rejection_reason"),
		Version:         doc.Version,
	}
	if !o.Status.Valid() || !o.PaymentStatus.Valid() {
		return o, fmt.Errorf("video order %s: unknown status %q/%q", doc.ID, o.Status, o.PaymentStatus)
	}

	var err error
	if o.Price, err = f.Decimal("price"); err != nil {
		return o, fmt.Errorf("video order %s: %w", doc.ID, err)
	}
	if o.CreatedAt, err = f.Time("created_at"); err != nil {
		return o, fmt.Errorf("video order %s: %w", doc.ID, err)
	}
	if o.UpdatedAt, err = f.Time("updated_at"); err != nil {
		return o, fmt.Errorf("video order %s: %w", doc.ID, err)
	}
	return o, nil
}
