package api

import (
	"net/http"

	"memorabilia-service/internal/models"
	"memorabilia-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type quoteBody struct {
	Price decimal.Decimal `json:"price"`
}

type completeBody struct {
	VideoURL string `json:"video_url" binding:"required"`
}

type reasonBody struct {
	Reason string `json:"reason"`
}

type fulfillBody struct {
	AssetRef string `json:"asset_ref" binding:"required"`
}

// submitRequest handles video request submission
func (h *Handler) submitRequest(c *gin.Context) {
	var req service.SubmitRequestRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	r, err := h.videos.SubmitRequest(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to submit video request", err)
		return
	}

	c.JSON(http.StatusCreated, r)
}

func (h *Handler) listRequests(c *gin.Context) {
	requests, err := h.videos.ListRequests(c.Request.Context(), models.RequestStatus(c.Query("status")))
	if err != nil {
		respondError(c, "Failed to list video requests", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func (h *Handler) getRequest(c *gin.Context) {
	r, err := h.videos.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Video request not found", err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (h *Handler) quoteRequest(c *gin.Context) {
	var body quoteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	r, err := h.videos.QuoteRequest(c.Request.Context(), c.Param("id"), body.Price)
	if err != nil {
		respondError(c, "Failed to quote video request", err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// confirmRequestPayment records a payment made outside the broker flow
func (h *Handler) confirmRequestPayment(c *gin.Context) {
	r, err := h.videos.ConfirmRequestPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to confirm payment", err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (h *Handler) acceptRequest(c *gin.Context) {
	r, err := h.videos.AcceptRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to accept video request", err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (h *Handler) completeRequest(c *gin.Context) {
	var body completeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	r, err := h.videos.CompleteRequest(c.Request.Context(), c.Param("id"), body.VideoURL)
	if err != nil {
		respondError(c, "Failed to complete video request", err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (h *Handler) rejectRequest(c *gin.Context) {
	var body reasonBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}

	r, err := h.videos.RejectRequest(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		respondError(c, "Failed to reject video request", err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// createOrder handles direct checkout orders
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	o, err := h.videos.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to create video order", err)
		return
	}

	c.JSON(http.StatusCreated, o)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.videos.ListOrders(c.Request.Context(), models.OrderStatus(c.Query("status")))
	if err != nil {
		respondError(c, "Failed to list video orders", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	o, err := h.videos.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Video order not found", err)
		return
	}

	c.JSON(http.StatusOK, o)
}

func (h *Handler) confirmOrderPayment(c *gin.Context) {
	o, err := h.videos.ConfirmOrderPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to confirm payment", err)
		return
	}

	c.JSON(http.StatusOK, o)
}

// fulfillOrder attaches the delivered video to a paid order
func (h *Handler) fulfillOrder(c *gin.Context) {
	var body fulfillBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	o, err := h.videos.FulfillOrder(c.Request.Context(), c.Param("id"), body.AssetRef)
	if err != nil {
		respondError(c, "Failed to fulfill video order", err)
		return
	}

	c.JSON(http.StatusOK, o)
}

func (h *Handler) rejectOrder(c *gin.Context) {
	var body reasonBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}

	o, err := h.videos.RejectOrder(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		respondError(c, "Failed to reject video order", err)
		return
	}

	c.JSON(http.StatusOK, o)
}
