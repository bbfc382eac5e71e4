package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type overbookingCheckRequest struct {
	RoomTypeID string `json:"room_type_id" binding:"required"`
	Date       string `json:"date" binding:"required"`
}

func (s *Server) checkOverbooking(c *gin.Context) {
	var req overbookingCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	roomTypeID, err := snowflakeFromString(req.RoomTypeID)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	date, err := dateField(req.Date)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	report, err := s.guard.CheckAndResolve(c.Request.Context(), roomTypeID, date)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) sweepOverbooking(c *gin.Context) {
	var req struct {
		HorizonDays int `json:"horizon_days"`
	}
	// Body is optional; the configured horizon applies when absent.
	_ = c.ShouldBindJSON(&req)

	horizon := s.syncCfg.Get().OverbookingHorizon
	if req.HorizonDays > 0 {
		horizon = time.Duration(req.HorizonDays) * 24 * time.Hour
	}

	report, err := s.guard.SweepUpcoming(c.Request.Context(), horizon)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
