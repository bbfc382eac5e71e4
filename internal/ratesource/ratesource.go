// Package ratesource is the engine's read-only view of canonical pricing.
// Rate authoring (seasons, discounts, dynamic pricing) happens elsewhere;
// the engine only asks for the base rate of a cell.
package ratesource

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var ErrNoRate = errors.New("ratesource: no rate configured")

type Rate struct {
	Amount   decimal.Decimal
	Currency string
}

type Source interface {
	// GetBaseRate returns the canonical nightly rate for a room type on a
	// date: the date-specific override when one exists, otherwise the
	// room type's standing rate.
	GetBaseRate(ctx context.Context, roomTypeID snowflake.ID, date time.Time) (Rate, error)
}

// RoomRate rows with a NULL date are the standing rate for the room type;
// dated rows override it for that day.
type RoomRate struct {
	ID         snowflake.ID    `gorm:"primaryKey"`
	RoomTypeID snowflake.ID    `gorm:"not null;index"`
	Date       *time.Time      `gorm:"index"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency   string          `gorm:"type:text;not null"`
	CreatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (RoomRate) TableName() string { return "room_rates" }

type gormSource struct {
	db *gorm.DB
}

func NewSource(db *gorm.DB) Source {
	return &gormSource{db: db}
}

func (s *gormSource) GetBaseRate(ctx context.Context, roomTypeID snowflake.ID, date time.Time) (Rate, error) {
	day := date.Truncate(24 * time.Hour)

	var row struct {
		Amount   decimal.Decimal `gorm:"column:amount"`
		Currency string          `gorm:"column:currency"`
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT amount, currency FROM room_rates
		 WHERE room_type_id = ? AND (date = ? OR date IS NULL)
		 ORDER BY (date IS NULL), date DESC
		 LIMIT 1`,
		roomTypeID,
		day,
	).Scan(&row).Error
	if err != nil {
		return Rate{}, err
	}
	if row.Currency == "" {
		return Rate{}, ErrNoRate
	}
	return Rate{Amount: row.Amount, Currency: row.Currency}, nil
}

var Module = fx.Module("ratesource",
	fx.Provide(NewSource),
)
