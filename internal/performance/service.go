package performance

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/staybridge/channelsync/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service interface {
	// RecordBooking attributes one booking's revenue to a channel on the
	// booking date, with commission estimated from the channel's
	// contractual percentage.
	RecordBooking(ctx context.Context, channelID snowflake.ID, date time.Time, revenue decimal.Decimal, commissionPct float64) error
	RecordEngagement(ctx context.Context, channelID snowflake.ID, date time.Time, impressions, clicks int64) error
	Query(ctx context.Context, channelID snowflake.ID, from, to time.Time) (*Summary, error)
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  Repository
	GenID *snowflake.Node
	Clock clock.Clock
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  Repository
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("performance"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *service) RecordBooking(ctx context.Context, channelID snowflake.ID, date time.Time, revenue decimal.Decimal, commissionPct float64) error {
	if revenue.IsNegative() {
		return fmt.Errorf("performance: negative revenue")
	}
	commission := revenue.
		Mul(decimal.NewFromFloat(commissionPct)).
		Div(decimal.NewFromInt(100)).
		Round(2)
	return s.repo.AddBooking(ctx, s.db,
		s.genID.Generate(), channelID,
		date.UTC().Truncate(24*time.Hour),
		revenue, commission, s.clock.Now())
}

func (s *service) RecordEngagement(ctx context.Context, channelID snowflake.ID, date time.Time, impressions, clicks int64) error {
	if impressions < 0 || clicks < 0 {
		return fmt.Errorf("performance: negative engagement counts")
	}
	return s.repo.AddEngagement(ctx, s.db,
		s.genID.Generate(), channelID,
		date.UTC().Truncate(24*time.Hour),
		impressions, clicks, s.clock.Now())
}

func (s *service) Query(ctx context.Context, channelID snowflake.ID, from, to time.Time) (*Summary, error) {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)
	if to.Before(from) {
		return nil, fmt.Errorf("performance: invalid date range")
	}

	daily, err := s.repo.ListRange(ctx, s.db, channelID, from, to)
	if err != nil {
		return nil, err
	}

	summary := &Summary{ChannelID: channelID, From: from, To: to, Daily: daily}
	for _, row := range daily {
		summary.Totals.Bookings += row.Bookings
		summary.Totals.Revenue = summary.Totals.Revenue.Add(row.Revenue)
		summary.Totals.Commission = summary.Totals.Commission.Add(row.Commission)
		summary.Totals.NetRevenue = summary.Totals.NetRevenue.Add(row.NetRevenue)
		summary.Totals.Impressions += row.Impressions
		summary.Totals.Clicks += row.Clicks
	}
	return summary, nil
}

var Module = fx.Module("performance",
	fx.Provide(ProvideRepository),
	fx.Provide(NewService),
)
