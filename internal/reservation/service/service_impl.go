package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/staybridge/channelsync/internal/bookingstore"
	channeldomain "github.com/staybridge/channelsync/internal/channel/domain"
	"github.com/staybridge/channelsync/internal/clock"
	"github.com/staybridge/channelsync/internal/config"
	"github.com/staybridge/channelsync/internal/connector"
	connectordomain "github.com/staybridge/channelsync/internal/connector/domain"
	"github.com/staybridge/channelsync/internal/observability/metrics"
	"github.com/staybridge/channelsync/internal/performance"
	"github.com/staybridge/channelsync/internal/reservation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	Channels channeldomain.Service
	Builder  *connector.Builder
	Bookings bookingstore.Store
	Perf     performance.Service
	GenID    *snowflake.Node
	Clock    clock.Clock
	SyncCfg  *config.SyncConfigHolder
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	channels channeldomain.Service
	builder  *connector.Builder
	bookings bookingstore.Store
	perf     performance.Service
	genID    *snowflake.Node
	clock    clock.Clock
	syncCfg  *config.SyncConfigHolder
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("reservation"),
		repo:     p.Repo,
		channels: p.Channels,
		builder:  p.Builder,
		bookings: p.Bookings,
		perf:     p.Perf,
		genID:    p.GenID,
		clock:    p.Clock,
		syncCfg:  p.SyncCfg,
	}
}

func (s *Service) PullFromChannel(ctx context.Context, channelID snowflake.ID) (*domain.PullReport, error) {
	channel, err := s.channels.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !channel.IsActive {
		return nil, channeldomain.ErrChannelInactive
	}

	conn, err := s.builder.ForChannel(channel)
	if err != nil {
		return nil, err
	}
	token, err := conn.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticate %s: %w", channel.Code, err)
	}

	cfg := s.syncCfg.Get()
	since := s.clock.Now().Add(-cfg.ReservationLookback)
	if channel.LastReservationSync != nil {
		since = *channel.LastReservationSync
	}

	// The watermark candidate is taken before the fetch. A reservation made
	// while the batch imports lands after this instant, so the next pull
	// still sees it; anything fetched twice is deduplicated on import.
	mark := s.clock.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, cfg.ConnectorTimeout)
	defer cancel()
	reservations, err := conn.GetReservations(fetchCtx, token, since)
	if err != nil {
		return nil, fmt.Errorf("fetch reservations from %s: %w", channel.Code, err)
	}

	report := &domain.PullReport{ChannelID: channel.ID, Fetched: len(reservations)}

	// Imports are sequential on purpose: two reservations in the same batch
	// can compete for the same physical room.
	for _, res := range reservations {
		outcome, importErr := s.importOne(ctx, channel, res)
		switch {
		case importErr != nil:
			report.Failed++
			report.Errors = append(report.Errors, domain.ReservationError{
				ExternalReservationID: res.ExternalID,
				Message:               importErr.Error(),
			})
			metrics.Engine().IncPulledReservation(channel.Category, "failed")
		case outcome == outcomeSkipped:
			report.Skipped++
			metrics.Engine().IncPulledReservation(channel.Category, "skipped")
		default:
			report.Imported++
			metrics.Engine().IncPulledReservation(channel.Category, "imported")
		}
	}

	// The watermark only moves once the whole batch imported; failed
	// reservations stay behind it and are fetched again next pull.
	if report.Failed == 0 {
		if err := s.channels.RecordSync(ctx, channel.ID, channeldomain.SyncKindReservations, mark); err != nil {
			s.log.Error("advance reservation watermark",
				zap.String("channel", channel.Code),
				zap.Error(err))
		}
	}
	return report, nil
}

type importOutcome int

const (
	outcomeImported importOutcome = iota
	outcomeSkipped
)

func (s *Service) importOne(ctx context.Context, channel *channeldomain.Channel, res connectordomain.ExternalReservation) (importOutcome, error) {
	if res.ExternalID == "" {
		return 0, fmt.Errorf("reservation without external id")
	}
	if !res.CheckOut.After(res.CheckIn) {
		return 0, fmt.Errorf("reservation %s: check-out not after check-in", res.ExternalID)
	}

	existing, err := s.repo.FindByExternalID(ctx, s.db, channel.ID, res.ExternalID)
	if err != nil {
		return 0, err
	}
	if existing != nil && existing.Status == domain.MappingStatusConfirmed {
		return outcomeSkipped, nil
	}

	bookingID, importErr := s.createBooking(ctx, channel, res)

	now := s.clock.Now()
	mapping := existing
	if mapping == nil {
		mapping = &domain.ReservationMapping{
			ID:                    s.genID.Generate(),
			ChannelID:             channel.ID,
			ExternalReservationID: res.ExternalID,
			GuestName:             res.GuestName,
			CheckIn:               res.CheckIn,
			CheckOut:              res.CheckOut,
			CreatedAt:             now,
		}
	}
	mapping.UpdatedAt = now
	if importErr != nil {
		mapping.Status = domain.MappingStatusError
		mapping.ErrorMessage = importErr.Error()
	} else {
		mapping.Status = domain.MappingStatusConfirmed
		mapping.ErrorMessage = ""
		mapping.InternalBookingID = bookingID
	}

	var persistErr error
	if existing == nil {
		persistErr = s.repo.Insert(ctx, s.db, mapping)
	} else {
		persistErr = s.repo.Update(ctx, s.db, mapping)
	}
	if persistErr != nil {
		return 0, fmt.Errorf("persist reservation mapping: %w", persistErr)
	}
	if importErr != nil {
		return 0, importErr
	}

	// Production stats are best effort; a failed rollup never fails the
	// import itself.
	if err := s.perf.RecordBooking(ctx, channel.ID, res.CheckIn, res.TotalAmount, channel.CommissionPct); err != nil {
		s.log.Warn("record channel performance",
			zap.String("channel", channel.Code),
			zap.Error(err))
	}
	return outcomeImported, nil
}

func (s *Service) createBooking(ctx context.Context, channel *channeldomain.Channel, res connectordomain.ExternalReservation) (snowflake.ID, error) {
	mapping, err := s.channels.MappingForChannelRoomTypeID(ctx, channel.ID, res.ChannelRoomTypeID)
	if err != nil {
		return 0, err
	}
	if mapping == nil {
		return 0, fmt.Errorf("unknown channel room type %q", res.ChannelRoomTypeID)
	}

	roomID, err := s.bookings.FindAvailableRoom(ctx, mapping.RoomTypeID, res.CheckIn, res.CheckOut)
	if err != nil {
		return 0, err
	}
	if roomID == 0 {
		return 0, fmt.Errorf("%w for room type %s", bookingstore.ErrNoRoomAvailable, mapping.RoomTypeID)
	}

	return s.bookings.CreateBooking(ctx, bookingstore.BookingDetails{
		RoomID:         roomID,
		RoomTypeID:     mapping.RoomTypeID,
		GuestName:      res.GuestName,
		GuestEmail:     res.GuestEmail,
		CheckIn:        res.CheckIn,
		CheckOut:       res.CheckOut,
		Adults:         res.Adults,
		Children:       res.Children,
		TotalAmount:    res.TotalAmount,
		Currency:       res.Currency,
		Source:         channel.Code,
		IdempotencyKey: idempotencyKey(channel.ID, res.ExternalID),
	})
}

// idempotencyKey is deterministic for a (channel, external reservation)
// pair, so a crashed import retried later lands on the same booking.
func idempotencyKey(channelID snowflake.ID, externalID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(channelID.String()+":"+externalID)).String()
}

func (s *Service) PullFromAllChannels(ctx context.Context) (*domain.FleetPullReport, error) {
	channels, err := s.channels.ListActiveAutoSync(ctx)
	if err != nil {
		return nil, err
	}

	fleet := &domain.FleetPullReport{}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, ch := range channels {
		wg.Add(1)
		go func(ch channeldomain.Channel) {
			defer wg.Done()
			report, err := s.PullFromChannel(ctx, ch.ID)
			if err != nil {
				s.log.Warn("channel pull failed",
					zap.String("channel", ch.Code),
					zap.Error(err))
				report = &domain.PullReport{
					ChannelID: ch.ID,
					Failed:    1,
					Errors: []domain.ReservationError{{
						Message: err.Error(),
					}},
				}
			}
			mu.Lock()
			fleet.Add(*report)
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	sort.Slice(fleet.Channels, func(i, j int) bool {
		return fleet.Channels[i].ChannelID < fleet.Channels[j].ChannelID
	})
	return fleet, nil
}

func (s *Service) History(ctx context.Context, channelID snowflake.ID, limit int) ([]domain.ReservationMapping, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListByChannel(ctx, s.db, channelID, limit)
}
