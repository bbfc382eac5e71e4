package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type parityCheckRequest struct {
	RoomTypeID string `json:"room_type_id" binding:"required"`
	From       string `json:"from" binding:"required"`
	To         string `json:"to" binding:"required"`
}

func (s *Server) checkParity(c *gin.Context) {
	var req parityCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	roomTypeID, err := snowflakeFromString(req.RoomTypeID)
	if err != nil {
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

	report, err := s.paritySvc.CheckParity(c.Request.Context(), roomTypeID, from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) parityHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	now := timeNow()
	from, err := dateParam(c, "from", now.AddDate(0, 0, -7))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	to, err := dateParam(c, "to", now)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	logs, err := s.paritySvc.History(c.Request.Context(), id, from, to, limitParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]gin.H, 0, len(logs))
	for _, row := range logs {
		views = append(views, gin.H{
			"room_type_id":  row.RoomTypeID.String(),
			"date":          row.Date.Format("2006-01-02"),
			"base_rate":     row.BaseRate,
			"currency":      row.Currency,
			"channel_rates": row.ChannelRates,
			"violations":    row.Violations,
			"compliant":     row.Compliant,
			"checked_at":    row.CheckedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": views})
}
