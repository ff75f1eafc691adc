package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"memorabilia-service/internal/realtime"
	"memorabilia-service/internal/service"
	"memorabilia-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	auctions *service.AuctionService
	videos   *service.VideoService
	hub      *realtime.Hub
	checks   map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(auctions *service.AuctionService, videos *service.VideoService, hub *realtime.Hub) *Handler {
	return &Handler{
		auctions: auctions,
		videos:   videos,
		hub:      hub,
		checks:   make(map[string]Pinger),
	}
}

// AddReadinessCheck registers a dependency checked by /ready
func (h *Handler) AddReadinessCheck(name string, p Pinger) {
	h.checks[name] = p
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		auctions := v1.Group("/auctions")
		auctions.GET("", h.listAuctions)
		auctions.POST("", h.createAuction)
		auctions.GET("/:id", h.getAuction)
		auctions.DELETE("/:id", h.deleteAuction)
		auctions.GET("/:id/minimum-bid", h.minimumBid)
		auctions.POST("/:id/bids", h.placeBid)
		auctions.GET("/:id/live", h.liveAuction)

		requests := v1.Group("/video-requests")
		requests.POST("", h.submitRequest)
		requests.GET("", h.listRequests)
		requests.GET("/:id", h.getRequest)
		requests.POST("/:id/quote", h.quoteRequest)
		requests.POST("/:id/payment", h.confirmRequestPayment)
		requests.POST("/:id/accept", h.acceptRequest)
		requests.POST("/:id/complete", h.completeRequest)
		requests.POST("/:id/reject", h.rejectRequest)

		orders := v1.Group("/video-orders")
		orders.POST("", h.createOrder)
		orders.GET("", h.listOrders)
		orders.GET("/:id", h.getOrder)
		orders.POST("/:id/payment", h.confirmOrderPayment)
		orders.POST("/:id/fulfill", h.fulfillOrder)
		orders.POST("/:id/reject", h.rejectOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
