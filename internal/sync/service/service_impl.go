package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	channeldomain "github.com/staybridge/channelsync/internal/channel/domain"
	"github.com/staybridge/channelsync/internal/clock"
	"github.com/staybridge/channelsync/internal/config"
	"github.com/staybridge/channelsync/internal/connector"
	connectordomain "github.com/staybridge/channelsync/internal/connector/domain"
	"github.com/staybridge/channelsync/internal/observability/metrics"
	"github.com/staybridge/channelsync/internal/snapshot"
	"github.com/staybridge/channelsync/internal/sync/domain"
	"github.com/staybridge/channelsync/pkg/db"
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
	Snapshot *snapshot.Provider
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
	snapshot *snapshot.Provider
	genID    *snowflake.Node
	clock    clock.Clock
	syncCfg  *config.SyncConfigHolder
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("sync"),
		repo:     p.Repo,
		channels: p.Channels,
		builder:  p.Builder,
		snapshot: p.Snapshot,
		genID:    p.GenID,
		clock:    p.Clock,
		syncCfg:  p.SyncCfg,
	}
}

// cell is one (mapping, date) unit of work inside a push.
type cell struct {
	mapping channeldomain.RoomMapping
	date    time.Time
}

func (s *Service) PushToChannel(ctx context.Context, req domain.PushRequest) (*domain.SyncReport, error) {
	channel, err := s.channels.Get(ctx, req.ChannelID)
	if err != nil {
		return nil, err
	}
	if !channel.IsActive {
		return nil, channeldomain.ErrChannelInactive
	}

	dates, err := expandDates(req.From, req.To)
	if err != nil {
		return nil, err
	}

	report := &domain.SyncReport{ChannelID: channel.ID}

	mappings, unmapped, err := s.resolveMappings(ctx, channel.ID, req.RoomTypeID)
	if err != nil {
		return nil, err
	}
	// An unmapped room type is an operator mistake that must surface in the
	// report, never a silently skipped cell.
	for _, roomTypeID := range unmapped {
		report.TotalCells += len(dates)
		report.Failed += len(dates)
		report.Errors = append(report.Errors, domain.CellError{
			ChannelID:  channel.ID,
			RoomTypeID: roomTypeID,
			Message:    "no room mapping configured for this channel",
		})
	}
	if len(mappings) == 0 {
		if len(unmapped) == 0 {
			return nil, fmt.Errorf("channel %s has no room mappings", channel.Code)
		}
		return report, nil
	}

	conn, err := s.builder.ForChannel(channel)
	if err != nil {
		return nil, err
	}

	started := s.clock.Now()
	token, err := conn.Authenticate(ctx)
	if err != nil {
		s.log.Warn("authentication failed",
			zap.String("channel", channel.Code),
			zap.Error(err))
		if statusErr := s.channels.RecordConnectionStatus(ctx, channel.ID, channeldomain.ConnectionStatusError); statusErr != nil {
			s.log.Error("record connection status", zap.Error(statusErr))
		}
		report.TotalCells += len(mappings) * len(dates)
		report.Failed += len(mappings) * len(dates)
		report.Errors = append(report.Errors, domain.CellError{
			ChannelID: channel.ID,
			Message:   fmt.Sprintf("authentication failed: %v", err),
		})
		return report, nil
	}
	if token.InsecureFallback {
		s.log.Warn("pushing with insecure fallback token",
			zap.String("channel", channel.Code))
	}

	cells := make([]cell, 0, len(mappings)*len(dates))
	for _, m := range mappings {
		for _, d := range dates {
			cells = append(cells, cell{mapping: m, date: d})
		}
	}

	cfg := s.syncCfg.Get()
	sem := make(chan struct{}, cfg.MaxInFlightPerChannel)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, c := range cells {
		wg.Add(1)
		sem <- struct{}{}
		go func(c cell) {
			defer wg.Done()
			defer func() { <-sem }()

			cellErr := s.pushCell(ctx, channel, conn, token, c, cfg.ConnectorTimeout)

			mu.Lock()
			defer mu.Unlock()
			report.TotalCells++
			if cellErr != nil {
				report.Failed++
				report.Errors = append(report.Errors, domain.CellError{
					ChannelID:  channel.ID,
					RoomTypeID: c.mapping.RoomTypeID,
					Date:       c.date.Format("2006-01-02"),
					Message:    cellErr.Error(),
				})
				metrics.Engine().IncSyncCell(channel.Category, "failed")
				return
			}
			report.Successful++
			metrics.Engine().IncSyncCell(channel.Category, "success")
		}(c)
	}
	wg.Wait()

	sort.Slice(report.Errors, func(i, j int) bool {
		if report.Errors[i].RoomTypeID != report.Errors[j].RoomTypeID {
			return report.Errors[i].RoomTypeID < report.Errors[j].RoomTypeID
		}
		return report.Errors[i].Date < report.Errors[j].Date
	})

	metrics.Engine().ObservePushDuration(channel.Category, s.clock.Now().Sub(started))

	s.finishPush(ctx, channel, report)
	return report, nil
}

// pushCell builds, persists and transmits a single payload. The sync record
// is written before the connector call so a crash mid-push leaves a PENDING
// record rather than no trace.
func (s *Service) pushCell(ctx context.Context, channel *channeldomain.Channel, conn connectordomain.Connector, token connectordomain.Token, c cell, timeout time.Duration) error {
	payload, err := s.snapshot.Build(ctx, c.mapping.RoomTypeID, c.mapping.ChannelRoomTypeID, c.date)
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	record, err := s.stagePending(ctx, channel.ID, c, payload)
	if err != nil {
		return fmt.Errorf("stage sync record: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := conn.SyncRatesAndInventory(callCtx, token, payload); err != nil {
		if markErr := s.repo.MarkResult(ctx, s.db, record.ID, domain.SyncStatusFailed, err.Error(), s.clock.Now()); markErr != nil {
			s.log.Error("mark sync record failed",
				zap.String("sync_id", record.SyncID),
				zap.Error(markErr))
		}
		return err
	}

	if err := s.repo.MarkResult(ctx, s.db, record.ID, domain.SyncStatusSuccess, "", s.clock.Now()); err != nil {
		return fmt.Errorf("mark sync record success: %w", err)
	}
	return nil
}

// stagePending records the outgoing payload as PENDING. An existing pending
// record for the cell is reused so a cell never carries two open attempts;
// the pending-cell unique index backs this up when two pushes race.
func (s *Service) stagePending(ctx context.Context, channelID snowflake.ID, c cell, payload connectordomain.SyncPayload) (*domain.SyncRecord, error) {
	inventory, err := json.Marshal(payload.Inventory)
	if err != nil {
		return nil, err
	}
	rates, err := json.Marshal(payload.Rates)
	if err != nil {
		return nil, err
	}
	restrictions, err := json.Marshal(payload.Restrictions)
	if err != nil {
		return nil, err
	}

	refresh := func(existing *domain.SyncRecord) (*domain.SyncRecord, error) {
		existing.Available = payload.Inventory.Available
		existing.Inventory = inventory
		existing.Rates = rates
		existing.Restrictions = restrictions
		existing.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdatePayload(ctx, s.db, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	existing, err := s.repo.FindPendingForCell(ctx, s.db, channelID, c.mapping.RoomTypeID, c.date)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return refresh(existing)
	}

	now := s.clock.Now()
	record := &domain.SyncRecord{
		ID:           s.genID.Generate(),
		SyncID:       ulid.Make().String(),
		ChannelID:    channelID,
		RoomTypeID:   c.mapping.RoomTypeID,
		Date:         c.date,
		Status:       domain.SyncStatusPending,
		Available:    payload.Inventory.Available,
		Inventory:    inventory,
		Rates:        rates,
		Restrictions: restrictions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// A concurrent push staged this cell between the lookup and the
		// insert. Adopt the winner's record instead of failing the cell.
		existing, findErr := s.repo.FindPendingForCell(ctx, s.db, channelID, c.mapping.RoomTypeID, c.date)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		return refresh(existing)
	}
	return record, nil
}

// finishPush updates the channel's health and watermarks from the report.
func (s *Service) finishPush(ctx context.Context, channel *channeldomain.Channel, report *domain.SyncReport) {
	status := channeldomain.ConnectionStatusConnected
	if report.Successful == 0 && report.Failed > 0 {
		status = channeldomain.ConnectionStatusError
	}
	if err := s.channels.RecordConnectionStatus(ctx, channel.ID, status); err != nil {
		s.log.Error("record connection status", zap.Error(err))
	}

	if report.Successful == 0 {
		return
	}
	now := s.clock.Now()
	for _, kind := range []channeldomain.SyncKind{
		channeldomain.SyncKindRates,
		channeldomain.SyncKindInventory,
		channeldomain.SyncKindRestrictions,
	} {
		if err := s.channels.RecordSync(ctx, channel.ID, kind, now); err != nil {
			s.log.Error("record sync watermark",
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}
}

func (s *Service) resolveMappings(ctx context.Context, channelID, roomTypeID snowflake.ID) ([]channeldomain.RoomMapping, []snowflake.ID, error) {
	if roomTypeID == 0 {
		mappings, err := s.channels.Mappings(ctx, channelID)
		return mappings, nil, err
	}
	mapping, err := s.channels.MappingForRoomType(ctx, channelID, roomTypeID)
	if err != nil {
		return nil, nil, err
	}
	if mapping == nil {
		return nil, []snowflake.ID{roomTypeID}, nil
	}
	return []channeldomain.RoomMapping{*mapping}, nil, nil
}

func (s *Service) PushToAllChannels(ctx context.Context, from, to time.Time) (*domain.FleetReport, error) {
	channels, err := s.channels.ListActiveAutoSync(ctx)
	if err != nil {
		return nil, err
	}

	fleet := &domain.FleetReport{}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, ch := range channels {
		wg.Add(1)
		go func(ch channeldomain.Channel) {
			defer wg.Done()
			report, err := s.PushToChannel(ctx, domain.PushRequest{
				ChannelID: ch.ID,
				From:      from,
				To:        to,
			})
			if err != nil {
				s.log.Warn("channel push failed",
					zap.String("channel", ch.Code),
					zap.Error(err))
				report = &domain.SyncReport{
					ChannelID: ch.ID,
					Failed:    1,
					Errors: []domain.CellError{{
						ChannelID: ch.ID,
						Message:   err.Error(),
					}},
				}
				report.TotalCells = 1
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

func (s *Service) History(ctx context.Context, channelID snowflake.ID, limit int) ([]domain.SyncRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListByChannel(ctx, s.db, channelID, limit)
}

// expandDates enumerates the inclusive day range, normalized to midnight UTC.
func expandDates(from, to time.Time) ([]time.Time, error) {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)
	if to.Before(from) {
		return nil, fmt.Errorf("invalid date range: %s after %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates, nil
}
