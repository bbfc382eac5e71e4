package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	syncdomain "github.com/staybridge/channelsync/internal/sync/domain"
)

type pushRequest struct {
	RoomTypeID string `json:"room_type_id"`
	From       string `json:"from" binding:"required"`
	To         string `json:"to" binding:"required"`
}

func (s *Server) pushChannel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	push := syncdomain.PushRequest{ChannelID: id}
	if req.RoomTypeID != "" {
		roomTypeID, err := snowflakeFromString(req.RoomTypeID)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		push.RoomTypeID = roomTypeID
	}
	var err error
	if push.From, err = dateField(req.From); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if push.To, err = dateField(req.To); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	report, err := s.syncSvc.PushToChannel(c.Request.Context(), push)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type pushAllRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

func (s *Server) pushAll(c *gin.Context) {
	var req pushAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	from, err := dateField(req.From)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	to, err := dateField(req.To)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	report, err := s.syncSvc.PushToAllChannels(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) syncHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	records, err := s.syncSvc.History(c.Request.Context(), id, limitParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]gin.H, 0, len(records))
	for _, r := range records {
		views = append(views, gin.H{
			"sync_id":       r.SyncID,
			"room_type_id":  r.RoomTypeID.String(),
			"date":          r.Date.Format("2006-01-02"),
			"status":        r.Status,
			"available":     r.Available,
			"sync_attempts": r.SyncAttempts,
			"error_message": r.ErrorMessage,
			"updated_at":    r.UpdatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"records": views})
}
