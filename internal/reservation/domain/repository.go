package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, mapping *ReservationMapping) error
	Update(ctx context.Context, db *gorm.DB, mapping *ReservationMapping) error
	FindByExternalID(ctx context.Context, db *gorm.DB, channelID snowflake.ID, externalID string) (*ReservationMapping, error)
	ListByChannel(ctx context.Context, db *gorm.DB, channelID snowflake.ID, limit int) ([]ReservationMapping, error)
}
