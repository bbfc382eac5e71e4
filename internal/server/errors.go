package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/staybridge/channelsync/internal/bookingstore"
	channeldomain "github.com/staybridge/channelsync/internal/channel/domain"
	connectordomain "github.com/staybridge/channelsync/internal/connector/domain"
)

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrNotFound           = errors.New("not_found")
	ErrConflict           = errors.New("conflict")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, channeldomain.ErrChannelNotFound),
		errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case errors.Is(err, channeldomain.ErrDuplicateCode),
		errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	case errors.Is(err, channeldomain.ErrInvalidInput),
		errors.Is(err, channeldomain.ErrUnknownCategory),
		errors.Is(err, channeldomain.ErrChannelInactive),
		errors.Is(err, connectordomain.ErrInvalidConfig),
		errors.Is(err, connectordomain.ErrMissingCredentials),
		errors.Is(err, bookingstore.ErrInvalidBooking),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}
	case errors.Is(err, connectordomain.ErrAuthFailed):
		return http.StatusBadGateway, errorPayload{Type: "channel_auth_failed", Message: err.Error()}
	case errors.Is(err, connectordomain.ErrChannelUnavailable),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusBadGateway, errorPayload{Type: "channel_unavailable", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal error"}
	}
}
