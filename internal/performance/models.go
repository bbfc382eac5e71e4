// Package performance keeps daily per-channel production figures so
// channels can be compared on revenue, not gut feeling.
package performance

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ChannelPerformance is one channel's production for one day. Rows are
// upserted in place as bookings and engagement data arrive.
type ChannelPerformance struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	ChannelID snowflake.ID `gorm:"not null;uniqueIndex:idx_channel_performance_day"`
	Date      time.Time    `gorm:"not null;uniqueIndex:idx_channel_performance_day"`

	Bookings   int             `gorm:"not null;default:0"`
	Revenue    decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Commission decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	NetRevenue decimal.Decimal `gorm:"type:decimal(14,2);not null"`

	Impressions int64 `gorm:"not null;default:0"`
	Clicks      int64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ChannelPerformance) TableName() string { return "channel_performance" }

// Totals aggregates a queried range.
type Totals struct {
	Bookings    int             `json:"bookings"`
	Revenue     decimal.Decimal `json:"revenue"`
	Commission  decimal.Decimal `json:"commission"`
	NetRevenue  decimal.Decimal `json:"net_revenue"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
}

// Summary is the read-side answer for one channel over a date range.
type Summary struct {
	ChannelID snowflake.ID         `json:"channel_id"`
	From      time.Time            `json:"from"`
	To        time.Time            `json:"to"`
	Daily     []ChannelPerformance `json:"daily"`
	Totals    Totals               `json:"totals"`
}
