package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrChannelNotFound = errors.New("channel: not found")
	ErrChannelInactive = errors.New("channel: inactive")
	ErrUnknownCategory = errors.New("channel: unknown connector category")
	ErrDuplicateCode   = errors.New("channel: code already registered")
	ErrInvalidInput    = errors.New("channel: invalid input")
)

type RegisterInput struct {
	Name            string
	Category        string
	Credentials     map[string]any
	AutoSync        bool
	AllowedVariance float64
	CommissionPct   float64
}

type MappingInput struct {
	RoomTypeID        snowflake.ID
	ChannelRoomTypeID string
}

type Service interface {
	Register(ctx context.Context, input RegisterInput) (*Channel, error)
	Get(ctx context.Context, id snowflake.ID) (*Channel, error)
	List(ctx context.Context) ([]Channel, error)
	ListActiveAutoSync(ctx context.Context) ([]Channel, error)

	SetRoomMappings(ctx context.Context, channelID snowflake.ID, mappings []MappingInput) error
	Mappings(ctx context.Context, channelID snowflake.ID) ([]RoomMapping, error)
	// MappingForRoomType returns nil when the room type has no mapping on
	// the channel.
	MappingForRoomType(ctx context.Context, channelID, roomTypeID snowflake.ID) (*RoomMapping, error)
	// MappingForChannelRoomTypeID resolves a channel's own room identifier
	// back to an internal mapping, for inbound reservations.
	MappingForChannelRoomTypeID(ctx context.Context, channelID snowflake.ID, channelRoomTypeID string) (*RoomMapping, error)
	// ListMappingsByRoomType returns the room type's mappings across every
	// channel, for checks that fan out over the whole fleet.
	ListMappingsByRoomType(ctx context.Context, roomTypeID snowflake.ID) ([]RoomMapping, error)

	UpdateCredentials(ctx context.Context, id snowflake.ID, credentials map[string]any) error
	Activate(ctx context.Context, id snowflake.ID) error
	Deactivate(ctx context.Context, id snowflake.ID) error

	TestConnection(ctx context.Context, id snowflake.ID) error
	RecordSync(ctx context.Context, id snowflake.ID, kind SyncKind, at time.Time) error
	RecordConnectionStatus(ctx context.Context, id snowflake.ID, status ConnectionStatus) error
}
