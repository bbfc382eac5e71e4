package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	syncdomain "github.com/staybridge/channelsync/internal/sync/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() syncdomain.Repository {
	return &repo{}
}

const recordColumns = `id, sync_id, channel_id, room_type_id, date, status, available,
	 inventory, rates, restrictions, error_message, sync_attempts, last_sync_attempt,
	 version, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *syncdomain.SyncRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sync_records (
			id, sync_id, channel_id, room_type_id, date, status, available,
			inventory, rates, restrictions, error_message, sync_attempts,
			last_sync_attempt, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.SyncID,
		record.ChannelID,
		record.RoomTypeID,
		record.Date,
		record.Status,
		record.Available,
		record.Inventory,
		record.Rates,
		record.Restrictions,
		record.ErrorMessage,
		record.SyncAttempts,
		record.LastSyncAttempt,
		record.Version,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}

func (r *repo) FindPendingForCell(ctx context.Context, db *gorm.DB, channelID, roomTypeID snowflake.ID, date time.Time) (*syncdomain.SyncRecord, error) {
	var record syncdomain.SyncRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+` FROM sync_records
		 WHERE channel_id = ? AND room_type_id = ? AND date = ? AND status = ?
		 LIMIT 1`,
		channelID,
		roomTypeID,
		date,
		syncdomain.SyncStatusPending,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) UpdatePayload(ctx context.Context, db *gorm.DB, record *syncdomain.SyncRecord) error {
	return db.WithContext(ctx).Exec(
		`UPDATE sync_records SET
			available = ?, inventory = ?, rates = ?, restrictions = ?,
			sync_attempts = ?, last_sync_attempt = ?, version = version + 1, updated_at = ?
		 WHERE id = ?`,
		record.Available,
		record.Inventory,
		record.Rates,
		record.Restrictions,
		record.SyncAttempts,
		record.LastSyncAttempt,
		record.UpdatedAt,
		record.ID,
	).Error
}

func (r *repo) MarkResult(ctx context.Context, db *gorm.DB, id snowflake.ID, status syncdomain.SyncStatus, errorMessage string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE sync_records SET
			status = ?, error_message = ?, sync_attempts = sync_attempts + 1,
			last_sync_attempt = ?, version = version + 1, updated_at = ?
		 WHERE id = ?`,
		status,
		errorMessage,
		at,
		at,
		id,
	).Error
}

func (r *repo) ListPendingForDate(ctx context.Context, db *gorm.DB, roomTypeID snowflake.ID, date time.Time) ([]syncdomain.SyncRecord, error) {
	var records []syncdomain.SyncRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+` FROM sync_records
		 WHERE room_type_id = ? AND date = ? AND status = ?
		 ORDER BY channel_id ASC`,
		roomTypeID,
		date,
		syncdomain.SyncStatusPending,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) ListPendingCells(ctx context.Context, db *gorm.DB, from, to time.Time) ([]syncdomain.PendingCell, error) {
	var cells []syncdomain.PendingCell
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT room_type_id, date FROM sync_records
		 WHERE status = ? AND date >= ? AND date <= ?
		 ORDER BY date ASC, room_type_id ASC`,
		syncdomain.SyncStatusPending,
		from,
		to,
	).Scan(&cells).Error
	if err != nil {
		return nil, err
	}
	return cells, nil
}

func (r *repo) ReduceAvailable(ctx context.Context, db *gorm.DB, id snowflake.ID, newAvailable int, inventory []byte, expectedVersion int, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE sync_records SET
			available = ?, inventory = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ? AND available >= ?`,
		newAvailable,
		inventory,
		at,
		id,
		expectedVersion,
		newAvailable,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListByChannel(ctx context.Context, db *gorm.DB, channelID snowflake.ID, limit int) ([]syncdomain.SyncRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []syncdomain.SyncRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+` FROM sync_records
		 WHERE channel_id = ?
		 ORDER BY updated_at DESC
		 LIMIT ?`,
		channelID,
		limit,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
