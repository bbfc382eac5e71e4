package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// PullFromChannel fetches reservations created on the channel since its
	// watermark and imports each one as an internal booking. Reservations
	// already imported are skipped; per-reservation failures are reported
	// and retried on the next pull.
	PullFromChannel(ctx context.Context, channelID snowflake.ID) (*PullReport, error)

	// PullFromAllChannels pulls every active auto-sync channel. One channel
	// failing does not stop the others.
	PullFromAllChannels(ctx context.Context) (*FleetPullReport, error)

	// History lists the most recent reservation mappings for a channel.
	History(ctx context.Context, channelID snowflake.ID, limit int) ([]ReservationMapping, error)
}
