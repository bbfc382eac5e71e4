// Package snapshot builds the canonical payload pushed to channels from the
// hotel's current availability and pricing.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/staybridge/channelsync/internal/bookingstore"
	connectordomain "github.com/staybridge/channelsync/internal/connector/domain"
	"github.com/staybridge/channelsync/internal/ratesource"
	"go.uber.org/fx"
)

type Provider struct {
	bookings bookingstore.Store
	rates    ratesource.Source
}

func NewProvider(bookings bookingstore.Store, rates ratesource.Source) *Provider {
	return &Provider{bookings: bookings, rates: rates}
}

// Build assembles the payload for one (room type, date) cell. Availability is
// physical capacity minus covering bookings; when bookings already exceed
// capacity the cell closes and the excess is reported as overbooking.
func (p *Provider) Build(ctx context.Context, roomTypeID snowflake.ID, channelRoomTypeID string, date time.Time) (connectordomain.SyncPayload, error) {
	totalRooms, err := p.bookings.CountActiveRooms(ctx, roomTypeID)
	if err != nil {
		return connectordomain.SyncPayload{}, fmt.Errorf("count rooms: %w", err)
	}
	sold, err := p.bookings.CountBookedRooms(ctx, roomTypeID, date)
	if err != nil {
		return connectordomain.SyncPayload{}, fmt.Errorf("count booked: %w", err)
	}

	available := totalRooms - sold
	overbooking := 0
	if available < 0 {
		overbooking = -available
		available = 0
	}

	rate, err := p.rates.GetBaseRate(ctx, roomTypeID, date)
	if err != nil {
		return connectordomain.SyncPayload{}, fmt.Errorf("base rate: %w", err)
	}

	return connectordomain.SyncPayload{
		ChannelRoomTypeID: channelRoomTypeID,
		Date:              date.Truncate(24 * time.Hour),
		Inventory: connectordomain.InventoryInfo{
			Available:   available,
			Sold:        sold,
			Blocked:     0,
			Overbooking: overbooking,
		},
		Rates: connectordomain.RateInfo{
			BaseRate:    rate.Amount,
			SellingRate: rate.Amount,
			Currency:    rate.Currency,
		},
		Restrictions: connectordomain.RestrictionInfo{
			Closed: available == 0,
		},
	}, nil
}

var Module = fx.Module("snapshot",
	fx.Provide(NewProvider),
)
