// Package domain contains the channel entity and its persistence contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ConnectionStatus is the last observed health of a channel connection.
type ConnectionStatus string

const (
	ConnectionStatusUnknown      ConnectionStatus = "UNKNOWN"
	ConnectionStatusConnected    ConnectionStatus = "CONNECTED"
	ConnectionStatusDisconnected ConnectionStatus = "DISCONNECTED"
	ConnectionStatusError        ConnectionStatus = "ERROR"
)

// SyncKind distinguishes the per-kind lastSync watermarks on a channel.
type SyncKind string

const (
	SyncKindRates        SyncKind = "rates"
	SyncKindInventory    SyncKind = "inventory"
	SyncKindRestrictions SyncKind = "restrictions"
	SyncKindReservations SyncKind = "reservations"
)

// Channel is one configured external sales platform. Channels are
// deactivated rather than deleted so their sync history survives.
type Channel struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	Name             string            `gorm:"type:text;not null"`
	Code             string            `gorm:"type:text;not null;uniqueIndex"`
	Category         string            `gorm:"type:text;not null;index"`
	IsActive         bool              `gorm:"not null;default:true"`
	ConnectionStatus ConnectionStatus  `gorm:"type:text;not null"`
	Credentials      datatypes.JSONMap `gorm:"type:jsonb"`
	AutoSync         bool              `gorm:"not null;default:true"`
	// AllowedVariance is the rate-parity tolerance in percent. Zero means
	// exact parity is required.
	AllowedVariance float64 `gorm:"not null;default:0"`
	// CommissionPct is the contractual commission used when estimating net
	// revenue in performance reports.
	CommissionPct float64 `gorm:"not null;default:0"`

	LastRateSync        *time.Time `gorm:""`
	LastInventorySync   *time.Time `gorm:""`
	LastRestrictionSync *time.Time `gorm:""`
	LastReservationSync *time.Time `gorm:""`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Channel) TableName() string { return "channels" }

// RoomMapping links an internal room type to the channel's own identifier
// for it. A room type maps to at most one external id per channel.
type RoomMapping struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	ChannelID         snowflake.ID `gorm:"not null;index;uniqueIndex:idx_room_mappings_channel_room"`
	RoomTypeID        snowflake.ID `gorm:"not null;index;uniqueIndex:idx_room_mappings_channel_room"`
	ChannelRoomTypeID string       `gorm:"type:text;not null"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (RoomMapping) TableName() string { return "room_mappings" }
