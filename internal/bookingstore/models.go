package bookingstore

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type RoomType struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	Code      string       `gorm:"type:text;not null;uniqueIndex"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (RoomType) TableName() string { return "room_types" }

type Room struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	RoomTypeID snowflake.ID `gorm:"not null;index"`
	Number     string       `gorm:"type:text;not null"`
	IsActive   bool         `gorm:"not null;default:true"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Room) TableName() string { return "rooms" }

type Booking struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	RoomID         snowflake.ID    `gorm:"not null;index"`
	RoomTypeID     snowflake.ID    `gorm:"not null;index"`
	GuestName      string          `gorm:"type:text;not null"`
	GuestEmail     string          `gorm:"type:text"`
	CheckIn        time.Time       `gorm:"not null;index"`
	CheckOut       time.Time       `gorm:"not null"`
	Adults         int             `gorm:"not null;default:1"`
	Children       int             `gorm:"not null;default:0"`
	Status         BookingStatus   `gorm:"type:text;not null"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(12,2)"`
	Currency       string          `gorm:"type:text"`
	Source         string          `gorm:"type:text;not null"`
	IdempotencyKey string          `gorm:"type:text;uniqueIndex"`
	CreatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Booking) TableName() string { return "bookings" }
