package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	channeldomain "github.com/staybridge/channelsync/internal/channel/domain"
	"github.com/staybridge/channelsync/internal/clock"
	"github.com/staybridge/channelsync/internal/connector"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    channeldomain.Repository
	Builder *connector.Builder
	GenID   *snowflake.Node
	Clock   clock.Clock
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    channeldomain.Repository
	builder *connector.Builder
	genID   *snowflake.Node
	clock   clock.Clock
}

func NewService(p Params) channeldomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("channel"),
		repo:    p.Repo,
		builder: p.Builder,
		genID:   p.GenID,
		clock:   p.Clock,
	}
}

func (s *Service) Register(ctx context.Context, input channeldomain.RegisterInput) (*channeldomain.Channel, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", channeldomain.ErrInvalidInput)
	}
	category := strings.ToLower(strings.TrimSpace(input.Category))
	if !s.builder.CategoryExists(category) {
		return nil, fmt.Errorf("%w: %q", channeldomain.ErrUnknownCategory, input.Category)
	}
	if input.AllowedVariance < 0 {
		return nil, fmt.Errorf("%w: allowed variance cannot be negative", channeldomain.ErrInvalidInput)
	}

	code := slug.Make(name)
	existing, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", channeldomain.ErrDuplicateCode, code)
	}

	now := s.clock.Now()
	row := &channeldomain.Channel{
		ID:               s.genID.Generate(),
		Name:             name,
		Code:             code,
		Category:         category,
		IsActive:         true,
		ConnectionStatus: channeldomain.ConnectionStatusUnknown,
		Credentials:      input.Credentials,
		AutoSync:         input.AutoSync,
		AllowedVariance:  input.AllowedVariance,
		CommissionPct:    input.CommissionPct,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, row); err != nil {
		return nil, err
	}

	s.log.Info("channel registered",
		zap.String("channel_id", row.ID.String()),
		zap.String("category", category),
	)
	return row, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*channeldomain.Channel, error) {
	channel, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, channeldomain.ErrChannelNotFound
	}
	return channel, nil
}

func (s *Service) List(ctx context.Context) ([]channeldomain.Channel, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) ListActiveAutoSync(ctx context.Context) ([]channeldomain.Channel, error) {
	return s.repo.ListActiveAutoSync(ctx, s.db)
}

func (s *Service) SetRoomMappings(ctx context.Context, channelID snowflake.ID, mappings []channeldomain.MappingInput) error {
	channel, err := s.Get(ctx, channelID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	rows := make([]channeldomain.RoomMapping, 0, len(mappings))
	seen := map[snowflake.ID]bool{}
	for _, m := range mappings {
		if m.RoomTypeID == 0 || strings.TrimSpace(m.ChannelRoomTypeID) == "" {
			return fmt.Errorf("%w: mapping needs both room type and channel room id", channeldomain.ErrInvalidInput)
		}
		if seen[m.RoomTypeID] {
			return fmt.Errorf("%w: duplicate mapping for room type %s", channeldomain.ErrInvalidInput, m.RoomTypeID)
		}
		seen[m.RoomTypeID] = true
		rows = append(rows, channeldomain.RoomMapping{
			ID:                s.genID.Generate(),
			ChannelID:         channel.ID,
			RoomTypeID:        m.RoomTypeID,
			ChannelRoomTypeID: strings.TrimSpace(m.ChannelRoomTypeID),
			CreatedAt:         now,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.ReplaceMappings(ctx, tx, channel.ID, rows)
	})
}

func (s *Service) Mappings(ctx context.Context, channelID snowflake.ID) ([]channeldomain.RoomMapping, error) {
	return s.repo.FindMappings(ctx, s.db, channelID)
}

func (s *Service) MappingForRoomType(ctx context.Context, channelID, roomTypeID snowflake.ID) (*channeldomain.RoomMapping, error) {
	return s.repo.FindMappingByRoomType(ctx, s.db, channelID, roomTypeID)
}

func (s *Service) MappingForChannelRoomTypeID(ctx context.Context, channelID snowflake.ID, channelRoomTypeID string) (*channeldomain.RoomMapping, error) {
	return s.repo.FindMappingByChannelRoomTypeID(ctx, s.db, channelID, channelRoomTypeID)
}

func (s *Service) ListMappingsByRoomType(ctx context.Context, roomTypeID snowflake.ID) ([]channeldomain.RoomMapping, error) {
	return s.repo.ListMappingsByRoomType(ctx, s.db, roomTypeID)
}

func (s *Service) UpdateCredentials(ctx context.Context, id snowflake.ID, credentials map[string]any) error {
	channel, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	channel.Credentials = credentials
	channel.ConnectionStatus = channeldomain.ConnectionStatusUnknown
	channel.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, s.db, channel)
}

func (s *Service) Activate(ctx context.Context, id snowflake.ID) error {
	return s.setActive(ctx, id, true)
}

// Deactivate turns a channel off without deleting it; sync history and
// reservation mappings stay queryable.
func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) error {
	return s.setActive(ctx, id, false)
}

func (s *Service) setActive(ctx context.Context, id snowflake.ID, active bool) error {
	channel, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	channel.IsActive = active
	channel.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, s.db, channel)
}

func (s *Service) TestConnection(ctx context.Context, id snowflake.ID) error {
	channel, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	conn, err := s.builder.ForChannel(channel)
	if err != nil {
		return err
	}

	testErr := conn.TestConnection(ctx)
	status := channeldomain.ConnectionStatusConnected
	if testErr != nil {
		status = channeldomain.ConnectionStatusError
	}
	if err := s.repo.SetConnectionStatus(ctx, s.db, channel.ID, status, s.clock.Now()); err != nil {
		s.log.Warn("failed to persist connection status",
			zap.String("channel_id", channel.ID.String()),
			zap.Error(err),
		)
	}
	return testErr
}

func (s *Service) RecordSync(ctx context.Context, id snowflake.ID, kind channeldomain.SyncKind, at time.Time) error {
	return s.repo.SetLastSync(ctx, s.db, id, kind, at)
}

func (s *Service) RecordConnectionStatus(ctx context.Context, id snowflake.ID, status channeldomain.ConnectionStatus) error {
	return s.repo.SetConnectionStatus(ctx, s.db, id, status, s.clock.Now())
}
