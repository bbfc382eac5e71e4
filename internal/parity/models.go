// Package parity compares the rates channels actually advertise against the
// hotel's base rate and records every comparison, compliant or not.
package parity

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	ViolationRateTooHigh = "rate_too_high"
	ViolationRateTooLow  = "rate_too_low"
)

// RateParityLog is one check of one (channel, room type, date) cell. A row
// is written for every checked cell so compliance history is complete.
type RateParityLog struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	ChannelID  snowflake.ID `gorm:"not null;index:idx_rate_parity_logs_cell"`
	RoomTypeID snowflake.ID `gorm:"not null;index:idx_rate_parity_logs_cell"`
	Date       time.Time    `gorm:"not null;index:idx_rate_parity_logs_cell"`

	BaseRate     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency     string          `gorm:"type:text"`
	ChannelRates datatypes.JSON  `gorm:"type:jsonb"`
	Violations   datatypes.JSON  `gorm:"type:jsonb"`
	Compliant    bool            `gorm:"not null"`
	// ErrorMessage marks a check that could not run; the row is still
	// written so the audit trail has no silent gaps.
	ErrorMessage string `gorm:"type:text"`

	CheckedAt time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (RateParityLog) TableName() string { return "rate_parity_logs" }

// Violation describes one out-of-tolerance advertised rate.
type Violation struct {
	ChannelID   snowflake.ID    `json:"channel_id"`
	ChannelCode string          `json:"channel_code"`
	RoomTypeID  snowflake.ID    `json:"room_type_id"`
	Date        string          `json:"date"`
	Kind        string          `json:"kind"`
	BaseRate    decimal.Decimal `json:"base_rate"`
	ChannelRate decimal.Decimal `json:"channel_rate"`
	// VariancePct is (channel - base) / base * 100, signed.
	VariancePct  decimal.Decimal `json:"variance_pct"`
	TolerancePct float64         `json:"tolerance_pct"`
}

// ChannelCheck summarizes one channel inside a parity report.
type ChannelCheck struct {
	ChannelID   snowflake.ID `json:"channel_id"`
	ChannelCode string       `json:"channel_code"`
	Checked     int          `json:"checked"`
	Violations  int          `json:"violations"`
	Error       string       `json:"error,omitempty"`
}

// Report is the outcome of one parity run over a room type and date range.
type Report struct {
	RoomTypeID snowflake.ID   `json:"room_type_id"`
	From       time.Time      `json:"from"`
	To         time.Time      `json:"to"`
	Channels   []ChannelCheck `json:"channels"`
	Violations []Violation    `json:"violations"`
	Compliant  bool           `json:"compliant"`
}
