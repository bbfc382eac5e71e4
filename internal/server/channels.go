package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	channeldomain "github.com/staybridge/channelsync/internal/channel/domain"
)

type registerChannelRequest struct {
	Name            string         `json:"name" binding:"required"`
	Category        string         `json:"category" binding:"required"`
	Credentials     map[string]any `json:"credentials"`
	AutoSync        *bool          `json:"auto_sync"`
	AllowedVariance float64        `json:"allowed_variance"`
	CommissionPct   float64        `json:"commission_pct"`
}

func (s *Server) registerChannel(c *gin.Context) {
	var req registerChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	autoSync := true
	if req.AutoSync != nil {
		autoSync = *req.AutoSync
	}
	channel, err := s.channelSvc.Register(c.Request.Context(), channeldomain.RegisterInput{
		Name:            req.Name,
		Category:        req.Category,
		Credentials:     req.Credentials,
		AutoSync:        autoSync,
		AllowedVariance: req.AllowedVariance,
		CommissionPct:   req.CommissionPct,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, channelView(channel))
}

func (s *Server) listChannels(c *gin.Context) {
	channels, err := s.channelSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]gin.H, 0, len(channels))
	for i := range channels {
		views = append(views, channelView(&channels[i]))
	}
	c.JSON(http.StatusOK, gin.H{"channels": views})
}

func (s *Server) getChannel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	channel, err := s.channelSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, channelView(channel))
}

// channelView deliberately omits credentials.
func channelView(ch *channeldomain.Channel) gin.H {
	return gin.H{
		"id":                    ch.ID.String(),
		"name":                  ch.Name,
		"code":                  ch.Code,
		"category":              ch.Category,
		"is_active":             ch.IsActive,
		"connection_status":     ch.ConnectionStatus,
		"auto_sync":             ch.AutoSync,
		"allowed_variance":      ch.AllowedVariance,
		"commission_pct":        ch.CommissionPct,
		"last_rate_sync":        ch.LastRateSync,
		"last_inventory_sync":   ch.LastInventorySync,
		"last_restriction_sync": ch.LastRestrictionSync,
		"last_reservation_sync": ch.LastReservationSync,
		"created_at":            ch.CreatedAt,
	}
}

func (s *Server) activateChannel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.channelSvc.Activate(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

func (s *Server) deactivateChannel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.channelSvc.Deactivate(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "inactive"})
}

func (s *Server) updateCredentials(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Credentials map[string]any `json:"credentials" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.channelSvc.UpdateCredentials(c.Request.Context(), id, req.Credentials); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

type mappingRequest struct {
	RoomTypeID        string `json:"room_type_id" binding:"required"`
	ChannelRoomTypeID string `json:"channel_room_type_id" binding:"required"`
}

func (s *Server) setMappings(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Mappings []mappingRequest `json:"mappings" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	inputs := make([]channeldomain.MappingInput, 0, len(req.Mappings))
	for _, m := range req.Mappings {
		roomTypeID, err := snowflakeFromString(m.RoomTypeID)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		inputs = append(inputs, channeldomain.MappingInput{
			RoomTypeID:        roomTypeID,
			ChannelRoomTypeID: m.ChannelRoomTypeID,
		})
	}
	if err := s.channelSvc.SetRoomMappings(c.Request.Context(), id, inputs); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "count": len(inputs)})
}

func (s *Server) listMappings(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	mappings, err := s.channelSvc.Mappings(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]gin.H, 0, len(mappings))
	for _, m := range mappings {
		views = append(views, gin.H{
			"room_type_id":         m.RoomTypeID.String(),
			"channel_room_type_id": m.ChannelRoomTypeID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"mappings": views})
}

func (s *Server) testConnection(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.channelSvc.TestConnection(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "connected"})
}
