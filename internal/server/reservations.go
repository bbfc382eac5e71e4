package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) pullChannel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	report, err := s.reservationSvc.PullFromChannel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) pullAll(c *gin.Context) {
	report, err := s.reservationSvc.PullFromAllChannels(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) reservationHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	mappings, err := s.reservationSvc.History(c.Request.Context(), id, limitParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]gin.H, 0, len(mappings))
	for _, m := range mappings {
		view := gin.H{
			"external_reservation_id": m.ExternalReservationID,
			"status":                  m.Status,
			"guest_name":              m.GuestName,
			"check_in":                m.CheckIn.Format("2006-01-02"),
			"check_out":               m.CheckOut.Format("2006-01-02"),
			"created_at":              m.CreatedAt.Format(time.RFC3339),
		}
		if m.InternalBookingID != 0 {
			view["internal_booking_id"] = m.InternalBookingID.String()
		}
		if m.ErrorMessage != "" {
			view["error_message"] = m.ErrorMessage
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"reservations": views})
}
