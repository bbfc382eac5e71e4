package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) queryPerformance(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	now := timeNow()
	from, err := dateParam(c, "from", now.AddDate(0, 0, -30))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	to, err := dateParam(c, "to", now)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	summary, err := s.perfSvc.Query(c.Request.Context(), id, from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type engagementRequest struct {
	Date        string `json:"date" binding:"required"`
	Impressions int64  `json:"impressions"`
	Clicks      int64  `json:"clicks"`
}

func (s *Server) recordEngagement(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req engagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	date, err := dateField(req.Date)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.perfSvc.RecordEngagement(c.Request.Context(), id, date, req.Impressions, req.Clicks); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}
