package parity

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, row *RateParityLog) error
	ListByChannel(ctx context.Context, db *gorm.DB, channelID snowflake.ID, from, to time.Time, limit int) ([]RateParityLog, error)
}

type repo struct{}

func ProvideRepository() Repository {
	return &repo{}
}

const logColumns = `id, channel_id, room_type_id, date, base_rate, currency,
	 channel_rates, violations, compliant, error_message, checked_at, created_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, row *RateParityLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO rate_parity_logs (
			id, channel_id, room_type_id, date, base_rate, currency,
			channel_rates, violations, compliant, error_message, checked_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID,
		row.ChannelID,
		row.RoomTypeID,
		row.Date,
		row.BaseRate,
		row.Currency,
		row.ChannelRates,
		row.Violations,
		row.Compliant,
		row.ErrorMessage,
		row.CheckedAt,
		row.CreatedAt,
	).Error
}

func (r *repo) ListByChannel(ctx context.Context, db *gorm.DB, channelID snowflake.ID, from, to time.Time, limit int) ([]RateParityLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []RateParityLog
	err := db.WithContext(ctx).Raw(
		`SELECT `+logColumns+` FROM rate_parity_logs
		 WHERE channel_id = ? AND date >= ? AND date <= ?
		 ORDER BY date ASC, checked_at DESC
		 LIMIT ?`,
		channelID,
		from,
		to,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
