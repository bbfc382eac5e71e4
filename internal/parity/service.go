package parity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	channeldomain "github.com/staybridge/channelsync/internal/channel/domain"
	"github.com/staybridge/channelsync/internal/clock"
	"github.com/staybridge/channelsync/internal/config"
	"github.com/staybridge/channelsync/internal/connector"
	connectordomain "github.com/staybridge/channelsync/internal/connector/domain"
	"github.com/staybridge/channelsync/internal/observability/metrics"
	"github.com/staybridge/channelsync/internal/ratesource"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service interface {
	// CheckParity fetches each active channel's advertised rates for the
	// room type over the inclusive date range and compares them against the
	// hotel's base rate. Every checked day is logged, including days where
	// the check itself failed.
	CheckParity(ctx context.Context, roomTypeID snowflake.ID, from, to time.Time) (*Report, error)

	// History returns logged checks for a channel over a date range.
	History(ctx context.Context, channelID snowflake.ID, from, to time.Time, limit int) ([]RateParityLog, error)
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     Repository
	Channels channeldomain.Service
	Builder  *connector.Builder
	Rates    ratesource.Source
	Cache    *RateCache
	GenID    *snowflake.Node
	Clock    clock.Clock
	SyncCfg  *config.SyncConfigHolder
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     Repository
	channels channeldomain.Service
	builder  *connector.Builder
	rates    ratesource.Source
	cache    *RateCache
	genID    *snowflake.Node
	clock    clock.Clock
	syncCfg  *config.SyncConfigHolder
}

func NewService(p Params) Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("parity"),
		repo:     p.Repo,
		channels: p.Channels,
		builder:  p.Builder,
		rates:    p.Rates,
		cache:    p.Cache,
		genID:    p.GenID,
		clock:    p.Clock,
		syncCfg:  p.SyncCfg,
	}
}

func (s *service) CheckParity(ctx context.Context, roomTypeID snowflake.ID, from, to time.Time) (*Report, error) {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)
	if to.Before(from) {
		return nil, fmt.Errorf("invalid date range")
	}

	channels, err := s.channels.List(ctx)
	if err != nil {
		return nil, err
	}
	mappings, err := s.channels.ListMappingsByRoomType(ctx, roomTypeID)
	if err != nil {
		return nil, err
	}
	byChannel := make(map[snowflake.ID]channeldomain.RoomMapping, len(mappings))
	for _, m := range mappings {
		byChannel[m.ChannelID] = m
	}

	report := &Report{RoomTypeID: roomTypeID, From: from, To: to, Compliant: true}
	for _, ch := range channels {
		if !ch.IsActive {
			continue
		}
		mapping, ok := byChannel[ch.ID]
		if !ok {
			report.Channels = append(report.Channels, ChannelCheck{
				ChannelID:   ch.ID,
				ChannelCode: ch.Code,
				Error:       "room type not mapped on channel",
			})
			continue
		}
		check := s.checkChannel(ctx, &ch, mapping, from, to, report)
		report.Channels = append(report.Channels, check)
	}
	return report, nil
}

func (s *service) checkChannel(ctx context.Context, channel *channeldomain.Channel, mapping channeldomain.RoomMapping, from, to time.Time, report *Report) ChannelCheck {
	check := ChannelCheck{ChannelID: channel.ID, ChannelCode: channel.Code}
	roomTypeID := mapping.RoomTypeID

	rates, err := s.fetchRates(ctx, channel, mapping.ChannelRoomTypeID, from, to)
	if err != nil {
		check.Error = err.Error()
		// Every day in the range still gets a row so the audit trail shows
		// where checks could not run instead of going silent.
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			if logErr := s.logFailure(ctx, channel, roomTypeID, day, check.Error); logErr != nil {
				s.log.Error("persist parity log",
					zap.String("channel", channel.Code),
					zap.Error(logErr))
			}
		}
		return check
	}
	byDate := make(map[time.Time][]connectordomain.ChannelRate, len(rates))
	for _, r := range rates {
		day := r.Date.UTC().Truncate(24 * time.Hour)
		byDate[day] = append(byDate[day], r)
	}

	tolerance := channel.AllowedVariance
	if tolerance == 0 {
		tolerance = s.syncCfg.Get().DefaultAllowedVariance
	}

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		base, err := s.rates.GetBaseRate(ctx, roomTypeID, day)
		if err != nil {
			check.Error = fmt.Sprintf("base rate for %s: %v", day.Format("2006-01-02"), err)
			if logErr := s.logFailure(ctx, channel, roomTypeID, day, check.Error); logErr != nil {
				s.log.Error("persist parity log",
					zap.String("channel", channel.Code),
					zap.Error(logErr))
			}
			continue
		}

		violations := compare(channel, roomTypeID, day, base.Amount, byDate[day], tolerance)
		check.Checked++
		metrics.Engine().IncParityCheck(channel.Category)
		if len(violations) > 0 {
			check.Violations += len(violations)
			report.Violations = append(report.Violations, violations...)
			report.Compliant = false
			for _, v := range violations {
				metrics.Engine().IncParityViolation(channel.Category, v.Kind)
			}
		}

		if err := s.logCheck(ctx, channel, roomTypeID, day, base, byDate[day], violations); err != nil {
			s.log.Error("persist parity log",
				zap.String("channel", channel.Code),
				zap.Error(err))
		}
	}
	return check
}

// fetchRates serves advertised rates from the cache when fresh, otherwise
// from the channel itself.
func (s *service) fetchRates(ctx context.Context, channel *channeldomain.Channel, channelRoomTypeID string, from, to time.Time) ([]connectordomain.ChannelRate, error) {
	if rates, ok := s.cache.Get(ctx, channel.ID, channelRoomTypeID, from, to); ok {
		return rates, nil
	}

	conn, err := s.builder.ForChannel(channel)
	if err != nil {
		return nil, err
	}
	token, err := conn.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	cfg := s.syncCfg.Get()
	callCtx, cancel := context.WithTimeout(ctx, cfg.ConnectorTimeout)
	defer cancel()
	rates, err := conn.GetChannelRates(callCtx, token, channelRoomTypeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch channel rates: %w", err)
	}

	s.cache.Set(ctx, channel.ID, channelRoomTypeID, from, to, rates, cfg.RateCacheTTL)
	return rates, nil
}

func compare(channel *channeldomain.Channel, roomTypeID snowflake.ID, day time.Time, base decimal.Decimal, advertised []connectordomain.ChannelRate, tolerance float64) []Violation {
	if base.IsZero() {
		return nil
	}
	hundred := decimal.NewFromInt(100)
	limit := decimal.NewFromFloat(tolerance)

	var violations []Violation
	for _, rate := range advertised {
		variance := rate.Rate.Sub(base).Div(base).Mul(hundred)
		if variance.Abs().LessThanOrEqual(limit) {
			continue
		}
		kind := ViolationRateTooHigh
		if variance.IsNegative() {
			kind = ViolationRateTooLow
		}
		violations = append(violations, Violation{
			ChannelID:    channel.ID,
			ChannelCode:  channel.Code,
			RoomTypeID:   roomTypeID,
			Date:         day.Format("2006-01-02"),
			Kind:         kind,
			BaseRate:     base,
			ChannelRate:  rate.Rate,
			VariancePct:  variance.Round(4),
			TolerancePct: tolerance,
		})
	}
	return violations
}

func (s *service) logCheck(ctx context.Context, channel *channeldomain.Channel, roomTypeID snowflake.ID, day time.Time, base ratesource.Rate, advertised []connectordomain.ChannelRate, violations []Violation) error {
	ratesJSON, err := json.Marshal(advertised)
	if err != nil {
		return err
	}
	violationsJSON, err := json.Marshal(violations)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	return s.repo.Insert(ctx, s.db, &RateParityLog{
		ID:           s.genID.Generate(),
		ChannelID:    channel.ID,
		RoomTypeID:   roomTypeID,
		Date:         day,
		BaseRate:     base.Amount,
		Currency:     base.Currency,
		ChannelRates: ratesJSON,
		Violations:   violationsJSON,
		Compliant:    len(violations) == 0,
		CheckedAt:    now,
		CreatedAt:    now,
	})
}

// logFailure writes a row for a cell whose check could not run.
func (s *service) logFailure(ctx context.Context, channel *channeldomain.Channel, roomTypeID snowflake.ID, day time.Time, message string) error {
	now := s.clock.Now()
	return s.repo.Insert(ctx, s.db, &RateParityLog{
		ID:           s.genID.Generate(),
		ChannelID:    channel.ID,
		RoomTypeID:   roomTypeID,
		Date:         day,
		Compliant:    false,
		ErrorMessage: message,
		CheckedAt:    now,
		CreatedAt:    now,
	})
}

func (s *service) History(ctx context.Context, channelID snowflake.ID, from, to time.Time, limit int) ([]RateParityLog, error) {
	return s.repo.ListByChannel(ctx, s.db, channelID, from, to, limit)
}
