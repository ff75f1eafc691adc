package api

import (
	"context"
	"errors"
	"net/http"

	"memorabilia-service/internal/auction"
	"memorabilia-service/internal/service"
	"memorabilia-service/internal/util"
	"memorabilia-service/internal/video"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps a service error to its HTTP status code
func statusFor(err error) int {
	switch {
	case errors.Is(err, auction.ErrInvalidBid),
		errors.Is(err, auction.ErrInvalidAuction),
		errors.Is(err, video.ErrInvalidRequest),
		errors.Is(err, video.ErrDeliveryTooSoon),
		errors.Is(err, video.ErrMissingAsset):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrAuctionEnded),
		errors.Is(err, auction.ErrBidTooLow),
		errors.Is(err, video.ErrNotPaid),
		errors.Is(err, video.ErrTerminal),
		errors.Is(err, video.ErrInvalidTransition),
		errors.Is(err, video.ErrPayment),
		errors.Is(err, service.ErrAuctionHasBids),
		errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the mapped status. Internal failures are logged and their
// details withheld from the client.
func respondError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		util.GetLogger().Error(message,
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, message string, err error) {
	body := gin.H{"error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}
