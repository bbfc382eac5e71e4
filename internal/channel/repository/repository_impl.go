package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	channeldomain "github.com/staybridge/channelsync/internal/channel/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() channeldomain.Repository {
	return &repo{}
}

const channelColumns = `id, name, code, category, is_active, connection_status, credentials,
	 auto_sync, allowed_variance, commission_pct, last_rate_sync, last_inventory_sync,
	 last_restriction_sync, last_reservation_sync, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, channel *channeldomain.Channel) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO channels (
			id, name, code, category, is_active, connection_status, credentials,
			auto_sync, allowed_variance, commission_pct, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		channel.ID,
		channel.Name,
		channel.Code,
		channel.Category,
		channel.IsActive,
		channel.ConnectionStatus,
		channel.Credentials,
		channel.AutoSync,
		channel.AllowedVariance,
		channel.CommissionPct,
		channel.CreatedAt,
		channel.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, channel *channeldomain.Channel) error {
	return db.WithContext(ctx).Exec(
		`UPDATE channels SET
			name = ?, is_active = ?, connection_status = ?, credentials = ?,
			auto_sync = ?, allowed_variance = ?, commission_pct = ?, updated_at = ?
		 WHERE id = ?`,
		channel.Name,
		channel.IsActive,
		channel.ConnectionStatus,
		channel.Credentials,
		channel.AutoSync,
		channel.AllowedVariance,
		channel.CommissionPct,
		channel.UpdatedAt,
		channel.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*channeldomain.Channel, error) {
	var channel channeldomain.Channel
	err := db.WithContext(ctx).Raw(
		`SELECT `+channelColumns+` FROM channels WHERE id = ?`,
		id,
	).Scan(&channel).Error
	if err != nil {
		return nil, err
	}
	if channel.ID == 0 {
		return nil, nil
	}
	return &channel, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*channeldomain.Channel, error) {
	var channel channeldomain.Channel
	err := db.WithContext(ctx).Raw(
		`SELECT `+channelColumns+` FROM channels WHERE code = ?`,
		code,
	).Scan(&channel).Error
	if err != nil {
		return nil, err
	}
	if channel.ID == 0 {
		return nil, nil
	}
	return &channel, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]channeldomain.Channel, error) {
	var channels []channeldomain.Channel
	err := db.WithContext(ctx).Raw(
		`SELECT ` + channelColumns + ` FROM channels ORDER BY created_at ASC`,
	).Scan(&channels).Error
	if err != nil {
		return nil, err
	}
	return channels, nil
}

func (r *repo) ListActiveAutoSync(ctx context.Context, db *gorm.DB) ([]channeldomain.Channel, error) {
	var channels []channeldomain.Channel
	err := db.WithContext(ctx).Raw(
		`SELECT `+channelColumns+` FROM channels
		 WHERE is_active = ? AND auto_sync = ?
		 ORDER BY created_at ASC`,
		true,
		true,
	).Scan(&channels).Error
	if err != nil {
		return nil, err
	}
	return channels, nil
}

func (r *repo) SetConnectionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status channeldomain.ConnectionStatus, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE channels SET connection_status = ?, updated_at = ? WHERE id = ?`,
		status,
		at,
		id,
	).Error
}

func (r *repo) SetLastSync(ctx context.Context, db *gorm.DB, id snowflake.ID, kind channeldomain.SyncKind, at time.Time) error {
	var column string
	switch kind {
	case channeldomain.SyncKindRates:
		column = "last_rate_sync"
	case channeldomain.SyncKindInventory:
		column = "last_inventory_sync"
	case channeldomain.SyncKindRestrictions:
		column = "last_restriction_sync"
	case channeldomain.SyncKindReservations:
		column = "last_reservation_sync"
	default:
		return channeldomain.ErrInvalidInput
	}
	return db.WithContext(ctx).Exec(
		`UPDATE channels SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		at,
		at,
		id,
	).Error
}

func (r *repo) ReplaceMappings(ctx context.Context, db *gorm.DB, channelID snowflake.ID, mappings []channeldomain.RoomMapping) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM room_mappings WHERE channel_id = ?`,
		channelID,
	).Error; err != nil {
		return err
	}
	for _, mapping := range mappings {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO room_mappings (id, channel_id, room_type_id, channel_room_type_id, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			mapping.ID,
			mapping.ChannelID,
			mapping.RoomTypeID,
			mapping.ChannelRoomTypeID,
			mapping.CreatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindMappings(ctx context.Context, db *gorm.DB, channelID snowflake.ID) ([]channeldomain.RoomMapping, error) {
	var mappings []channeldomain.RoomMapping
	err := db.WithContext(ctx).Raw(
		`SELECT id, channel_id, room_type_id, channel_room_type_id, created_at
		 FROM room_mappings WHERE channel_id = ? ORDER BY created_at ASC`,
		channelID,
	).Scan(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

func (r *repo) FindMappingByRoomType(ctx context.Context, db *gorm.DB, channelID, roomTypeID snowflake.ID) (*channeldomain.RoomMapping, error) {
	var mapping channeldomain.RoomMapping
	err := db.WithContext(ctx).Raw(
		`SELECT id, channel_id, room_type_id, channel_room_type_id, created_at
		 FROM room_mappings WHERE channel_id = ? AND room_type_id = ? LIMIT 1`,
		channelID,
		roomTypeID,
	).Scan(&mapping).Error
	if err != nil {
		return nil, err
	}
	if mapping.ID == 0 {
		return nil, nil
	}
	return &mapping, nil
}

func (r *repo) FindMappingByChannelRoomTypeID(ctx context.Context, db *gorm.DB, channelID snowflake.ID, channelRoomTypeID string) (*channeldomain.RoomMapping, error) {
	var mapping channeldomain.RoomMapping
	err := db.WithContext(ctx).Raw(
		`SELECT id, channel_id, room_type_id, channel_room_type_id, created_at
		 FROM room_mappings WHERE channel_id = ? AND channel_room_type_id = ? LIMIT 1`,
		channelID,
		channelRoomTypeID,
	).Scan(&mapping).Error
	if err != nil {
		return nil, err
	}
	if mapping.ID == 0 {
		return nil, nil
	}
	return &mapping, nil
}

func (r *repo) ListMappingsByRoomType(ctx context.Context, db *gorm.DB, roomTypeID snowflake.ID) ([]channeldomain.RoomMapping, error) {
	var mappings []channeldomain.RoomMapping
	err := db.WithContext(ctx).Raw(
		`SELECT id, channel_id, room_type_id, channel_room_type_id, created_at
		 FROM room_mappings WHERE room_type_id = ? ORDER BY created_at ASC`,
		roomTypeID,
	).Scan(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}
