package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// PushRequest selects what to push. A zero RoomTypeID means every mapped
// room type of the channel; From and To are inclusive day bounds.
type PushRequest struct {
	ChannelID  snowflake.ID
	RoomTypeID snowflake.ID
	From       time.Time
	To         time.Time
}

type Service interface {
	// PushToChannel pushes rates, inventory and restrictions for every cell
	// the request covers. It returns a report rather than failing on the
	// first bad cell; the error is reserved for conditions that prevent the
	// push from starting at all.
	PushToChannel(ctx context.Context, req PushRequest) (*SyncReport, error)

	// PushToAllChannels fans out over every active channel with auto-sync
	// enabled. One channel failing does not stop the others.
	PushToAllChannels(ctx context.Context, from, to time.Time) (*FleetReport, error)

	// History lists the most recent sync records for a channel.
	History(ctx context.Context, channelID snowflake.ID, limit int) ([]SyncRecord, error)
}
