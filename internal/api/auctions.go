package api

import (
	"net/http"
	"strconv"

	"memorabilia-service/internal/service"

	"github.com/gin-gonic/gin"
)

// listAuctions handles GET /auctions, optionally only active ones
func (h *Handler) listAuctions(c *gin.Context) {
	activeOnly := false
	if raw := c.Query("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "Invalid active filter", err)
			return
		}
		activeOnly = v
	}

	auctions, err := h.auctions.ListAuctions(c.Request.Context(), activeOnly)
	if err != nil {
		respondError(c, "Failed to list auctions", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"auctions": auctions})
}

// createAuction handles auction creation
func (h *Handler) createAuction(c *gin.Context) {
	var req service.CreateAuctionRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	resp, err := h.auctions.CreateAuction(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to create auction", err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) getAuction(c *gin.Context) {
	a, err := h.auctions.GetAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Auction not found", err)
		return
	}

	c.JSON(http.StatusOK, a)
}

// deleteAuction removes an auction; bids require force=true
func (h *Handler) deleteAuction(c *gin.Context) {
	force, _ := strconv.ParseBool(c.Query("force"))

	if err := h.auctions.DeleteAuction(c.Request.Context(), c.Param("id"), force); err != nil {
		respondError(c, "Failed to delete auction", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) minimumBid(c *gin.Context) {
	id := c.Param("id")
	minimum, err := h.auctions.MinimumNextBid(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Failed to compute minimum bid", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"auction_id":       id,
		"minimum_next_bid": minimum,
	})
}

// placeBid handles bid submission
func (h *Handler) placeBid(c *gin.Context) {
	var req service.PlaceBidRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	resp, err := h.auctions.PlaceBid(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, "Bid rejected", err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// liveAuction upgrades to a websocket streaming accepted bids
func (h *Handler) liveAuction(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.auctions.GetAuction(c.Request.Context(), id); err != nil {
		respondError(c, "Auction not found", err)
		return
	}

	h.hub.ServeWS(c.Writer, c.Request, id)
}
