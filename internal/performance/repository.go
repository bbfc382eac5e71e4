package performance

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	// AddBooking folds one booking into the channel's daily row, creating
	// it when absent.
	AddBooking(ctx context.Context, db *gorm.DB, id, channelID snowflake.ID, date time.Time, revenue, commission decimal.Decimal, at time.Time) error
	// AddEngagement adds impressions and clicks to the daily row.
	AddEngagement(ctx context.Context, db *gorm.DB, id, channelID snowflake.ID, date time.Time, impressions, clicks int64, at time.Time) error
	ListRange(ctx context.Context, db *gorm.DB, channelID snowflake.ID, from, to time.Time) ([]ChannelPerformance, error)
}

type repo struct{}

func ProvideRepository() Repository {
	return &repo{}
}

func (r *repo) AddBooking(ctx context.Context, db *gorm.DB, id, channelID snowflake.ID, date time.Time, revenue, commission decimal.Decimal, at time.Time) error {
	net := revenue.Sub(commission)
	return db.WithContext(ctx).Exec(
		`INSERT INTO channel_performance (
			id, channel_id, date, bookings, revenue, commission, net_revenue,
			impressions, clicks, created_at, updated_at
		) VALUES (?, ?, ?, 1, ?, ?, ?, 0, 0, ?, ?)
		ON CONFLICT (channel_id, date) DO UPDATE SET
			bookings = channel_performance.bookings + 1,
			revenue = channel_performance.revenue + excluded.revenue,
			commission = channel_performance.commission + excluded.commission,
			net_revenue = channel_performance.net_revenue + excluded.net_revenue,
			updated_at = excluded.updated_at`,
		id,
		channelID,
		date,
		revenue,
		commission,
		net,
		at,
		at,
	).Error
}

func (r *repo) AddEngagement(ctx context.Context, db *gorm.DB, id, channelID snowflake.ID, date time.Time, impressions, clicks int64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO channel_performance (
			id, channel_id, date, bookings, revenue, commission, net_revenue,
			impressions, clicks, created_at, updated_at
		) VALUES (?, ?, ?, 0, 0, 0, 0, ?, ?, ?, ?)
		ON CONFLICT (channel_id, date) DO UPDATE SET
			impressions = channel_performance.impressions + excluded.impressions,
			clicks = channel_performance.clicks + excluded.clicks,
			updated_at = excluded.updated_at`,
		id,
		channelID,
		date,
		impressions,
		clicks,
		at,
		at,
	).Error
}

func (r *repo) ListRange(ctx context.Context, db *gorm.DB, channelID snowflake.ID, from, to time.Time) ([]ChannelPerformance, error) {
	var rows []ChannelPerformance
	err := db.WithContext(ctx).Raw(
		`SELECT id, channel_id, date, bookings, revenue, commission, net_revenue,
			impressions, clicks, created_at, updated_at
		 FROM channel_performance
		 WHERE channel_id = ? AND date >= ? AND date <= ?
		 ORDER BY date ASC`,
		channelID,
		from,
		to,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
