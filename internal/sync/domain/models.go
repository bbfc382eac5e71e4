// Package domain holds the durable record of every push attempt and the
// report shapes returned to operators.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type SyncStatus string

const (
	SyncStatusPending SyncStatus = "PENDING"
	SyncStatusSuccess SyncStatus = "SUCCESS"
	SyncStatusFailed  SyncStatus = "FAILED"
)

// SyncRecord is the audit trail of one push attempt for one
// (channel, room type, date) cell. Records are never deleted; a partial
// unique index holds a cell to at most one pending record at a time, and
// Version guards the guard's read-modify-write against concurrent runs.
type SyncRecord struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	SyncID     string       `gorm:"type:text;not null;uniqueIndex"`
	ChannelID  snowflake.ID `gorm:"not null;index:idx_sync_records_cell;index:idx_sync_records_pending_cell,unique,where:status = 'PENDING'"`
	RoomTypeID snowflake.ID `gorm:"not null;index:idx_sync_records_cell;index:idx_sync_records_pending_cell,unique,where:status = 'PENDING'"`
	Date       time.Time    `gorm:"not null;index:idx_sync_records_cell;index:idx_sync_records_pending_cell,unique,where:status = 'PENDING'"`
	Status     SyncStatus   `gorm:"type:text;not null;index"`

	// Available duplicates inventory->available so the overbooking guard can
	// sum and adjust it without unpacking JSON.
	Available    int            `gorm:"not null;default:0"`
	Inventory    datatypes.JSON `gorm:"type:jsonb"`
	Rates        datatypes.JSON `gorm:"type:jsonb"`
	Restrictions datatypes.JSON `gorm:"type:jsonb"`

	ErrorMessage    string     `gorm:"type:text"`
	SyncAttempts    int        `gorm:"not null;default:0"`
	LastSyncAttempt *time.Time `gorm:""`
	Version         int        `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SyncRecord) TableName() string { return "sync_records" }

// PendingCell is a (room type, date) pair with open pending records.
type PendingCell struct {
	RoomTypeID snowflake.ID
	Date       time.Time
}

// CellError identifies one failed cell in a report.
type CellError struct {
	ChannelID  snowflake.ID `json:"channel_id"`
	RoomTypeID snowflake.ID `json:"room_type_id,omitempty"`
	Date       string       `json:"date,omitempty"`
	Message    string       `json:"message"`
}

// SyncReport is the outcome of one channel push. It always carries the full
// picture: counts plus every individual error, never a bare boolean.
type SyncReport struct {
	ChannelID  snowflake.ID `json:"channel_id"`
	TotalCells int          `json:"total_cells"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Errors     []CellError  `json:"errors"`
}

// FleetReport merges per-channel reports from a push across all channels.
type FleetReport struct {
	Channels   []SyncReport `json:"channels"`
	TotalCells int          `json:"total_cells"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
}

func (r *FleetReport) Add(report SyncReport) {
	r.Channels = append(r.Channels, report)
	r.TotalCells += report.TotalCells
	r.Successful += report.Successful
	r.Failed += report.Failed
}
