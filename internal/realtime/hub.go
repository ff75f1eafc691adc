// Package realtime pushes accepted bids to websocket watchers of an auction.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"memorabilia-service/internal/models"
	"memorabilia-service/internal/util"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	subscriberBuffer = 16
	pingInterval     = 30 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 10 * time.Second
)

// Message types
const (
	MessageBidPlaced      = "bid_placed"
	MessageAuctionDeleted = "auction_deleted"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is pushed to every watcher of an auction
type Message struct {
	Type        string          `json:"type"`
	AuctionID   string          `json:"auction_id"`
	Bid         *models.Bid     `json:"bid,omitempty"`
	CurrentBid  decimal.Decimal `json:"current_bid"`
	MinimumNext decimal.Decimal `json:"minimum_next"`
	BidCount    int             `json:"bid_count"`
}

// Hub fans auction updates out to subscribers
type Hub struct {
	mu     sync.RWMutex
	nextID int
	rooms  map[string]map[int]chan Message
	// highest bid count sent per auction; bids finishing out of order are not re-sent
	lastBidCount map[string]int
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		rooms:        make(map[string]map[int]chan Message),
		lastBidCount: make(map[string]int),
	}
}

// Subscribe registers a watcher. The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe(auctionID string) (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan Message, subscriberBuffer)
	if h.rooms[auctionID] == nil {
		h.rooms[auctionID] = make(map[int]chan Message)
	}
	h.rooms[auctionID][id] = ch
	util.ActiveWatchers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if room, ok := h.rooms[auctionID]; ok {
				delete(room, id)
				if len(room) == 0 {
					delete(h.rooms, auctionID)
				}
			}
			close(ch)
			util.ActiveWatchers.Dec()
		})
	}
}

// Watchers returns the number of subscribers of an auction
func (h *Hub) Watchers(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[auctionID])
}

// Broadcast delivers msg without blocking; slow subscribers miss the update.
// A bid message whose BidCount is not above the last one sent is dropped, so
// watchers never see the current bid go down.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch msg.Type {
	case MessageBidPlaced:
		if msg.BidCount <= h.lastBidCount[msg.AuctionID] {
			util.StaleLiveUpdates.Inc()
			return
		}
		h.lastBidCount[msg.AuctionID] = msg.BidCount
	case MessageAuctionDeleted:
		delete(h.lastBidCount, msg.AuctionID)
	}

	for _, ch := range h.rooms[msg.AuctionID] {
		select {
		case ch <- msg:
		default:
			util.DroppedLiveUpdates.Inc()
		}
	}
}

// BroadcastBid announces an accepted bid
func (h *Hub) BroadcastBid(a models.Auction, bid models.Bid, minimumNext decimal.Decimal) {
	h.Broadcast(Message{
		Type:        MessageBidPlaced,
		AuctionID:   a.ID,
		Bid:         &bid,
		CurrentBid:  a.CurrentBid,
		MinimumNext: minimumNext,
		BidCount:    len(a.BidHistory),
	})
}

// BroadcastDeleted tells watchers the auction is gone
func (h *Hub) BroadcastDeleted(auctionID string) {
	h.Broadcast(Message{Type: MessageAuctionDeleted, AuctionID: auctionID})
}

// ServeWS upgrades the request and streams updates for one auction
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, auctionID string) {
	logger := util.Named("realtime").With(zap.String("auction_id", auctionID))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.Subscribe(auctionID)
	defer unsubscribe()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// writer goroutine
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					logger.Debug("Websocket write failed", zap.Error(err))
					_ = conn.Close()
					return
				}
				if msg.Type == MessageAuctionDeleted {
					_ = conn.Close()
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	// watchers only listen; reads keep the pong handler running
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	unsubscribe()
	<-done
}
