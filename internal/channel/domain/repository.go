package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, channel *Channel) error
	Update(ctx context.Context, db *gorm.DB, channel *Channel) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Channel, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Channel, error)
	List(ctx context.Context, db *gorm.DB) ([]Channel, error)
	ListActiveAutoSync(ctx context.Context, db *gorm.DB) ([]Channel, error)
	SetConnectionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status ConnectionStatus, at time.Time) error
	SetLastSync(ctx context.Context, db *gorm.DB, id snowflake.ID, kind SyncKind, at time.Time) error

	ReplaceMappings(ctx context.Context, db *gorm.DB, channelID snowflake.ID, mappings []RoomMapping) error
	FindMappings(ctx context.Context, db *gorm.DB, channelID snowflake.ID) ([]RoomMapping, error)
	FindMappingByRoomType(ctx context.Context, db *gorm.DB, channelID, roomTypeID snowflake.ID) (*RoomMapping, error)
	FindMappingByChannelRoomTypeID(ctx context.Context, db *gorm.DB, channelID snowflake.ID, channelRoomTypeID string) (*RoomMapping, error)
	ListMappingsByRoomType(ctx context.Context, db *gorm.DB, roomTypeID snowflake.ID) ([]RoomMapping, error)
}
