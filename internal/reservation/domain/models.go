// Package domain maps reservations made on external channels to internal
// bookings, keeping pulls idempotent.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type MappingStatus string

const (
	MappingStatusConfirmed MappingStatus = "CONFIRMED"
	MappingStatusError     MappingStatus = "ERROR"
)

// ReservationMapping ties one external reservation to the internal booking
// created for it. The (channel, external id) pair is unique, which is what
// makes repeated pulls idempotent.
type ReservationMapping struct {
	ID                    snowflake.ID  `gorm:"primaryKey"`
	ChannelID             snowflake.ID  `gorm:"not null;index;uniqueIndex:idx_reservation_mappings_external"`
	ExternalReservationID string        `gorm:"type:text;not null;uniqueIndex:idx_reservation_mappings_external"`
	InternalBookingID     snowflake.ID  `gorm:"index"`
	Status                MappingStatus `gorm:"type:text;not null"`
	ErrorMessage          string        `gorm:"type:text"`
	GuestName             string        `gorm:"type:text"`
	CheckIn               time.Time     `gorm:"not null"`
	CheckOut              time.Time     `gorm:"not null"`
	CreatedAt             time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ReservationMapping) TableName() string { return "reservation_mappings" }

// ReservationError identifies one reservation that could not be imported.
type ReservationError struct {
	ExternalReservationID string `json:"external_reservation_id"`
	Message               string `json:"message"`
}

// PullReport is the outcome of one channel pull.
type PullReport struct {
	ChannelID snowflake.ID       `json:"channel_id"`
	Fetched   int                `json:"fetched"`
	Imported  int                `json:"imported"`
	Skipped   int                `json:"skipped"`
	Failed    int                `json:"failed"`
	Errors    []ReservationError `json:"errors"`
}

// FleetPullReport merges pull reports across channels.
type FleetPullReport struct {
	Channels []PullReport `json:"channels"`
	Fetched  int          `json:"fetched"`
	Imported int          `json:"imported"`
	Skipped  int          `json:"skipped"`
	Failed   int          `json:"failed"`
}

func (r *FleetPullReport) Add(report PullReport) {
	r.Channels = append(r.Channels, report)
	r.Fetched += report.Fetched
	r.Imported += report.Imported
	r.Skipped += report.Skipped
	r.Failed += report.Failed
}
