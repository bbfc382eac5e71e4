// Package overbooking keeps the total inventory promised to channels within
// the hotel's real remaining capacity.
package overbooking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/staybridge/channelsync/internal/bookingstore"
	"github.com/staybridge/channelsync/internal/clock"
	connectordomain "github.com/staybridge/channelsync/internal/connector/domain"
	"github.com/staybridge/channelsync/internal/observability/metrics"
	syncdomain "github.com/staybridge/channelsync/internal/sync/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxResolveRetries bounds optimistic retries when a concurrent push bumps a
// record's version mid-resolution.
const maxResolveRetries = 3

// Adjustment records one channel allocation the guard lowered.
type Adjustment struct {
	SyncID    string       `json:"sync_id"`
	ChannelID snowflake.ID `json:"channel_id"`
	Before    int          `json:"before"`
	After     int          `json:"after"`
}

// Report is the outcome of one guard run over one (room type, date) cell.
type Report struct {
	RoomTypeID        snowflake.ID `json:"room_type_id"`
	Date              string       `json:"date"`
	TotalRooms        int          `json:"total_rooms"`
	ConfirmedBookings int          `json:"confirmed_bookings"`
	PendingAllocated  int          `json:"pending_allocated"`
	RemainingCapacity int          `json:"remaining_capacity"`
	RoomsRemoved      int          `json:"rooms_removed"`
	Adjustments       []Adjustment `json:"adjustments,omitempty"`
	// Escalated is set when confirmed bookings alone already exceed the
	// physical capacity; no allocation math can fix that.
	Escalated bool `json:"escalated"`
}

// SweepReport merges guard runs over every pending cell in a window.
type SweepReport struct {
	Cells        []Report `json:"cells"`
	RoomsRemoved int      `json:"rooms_removed"`
	Escalations  int      `json:"escalations"`
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Records  syncdomain.Repository
	Bookings bookingstore.Store
	Clock    clock.Clock
}

// Guard reconciles pending channel allocations against real capacity. It
// only ever lowers allocations; raising them is the push pipeline's job.
type Guard struct {
	db       *gorm.DB
	log      *zap.Logger
	records  syncdomain.Repository
	bookings bookingstore.Store
	clock    clock.Clock
}

func NewGuard(p Params) *Guard {
	return &Guard{
		db:       p.DB,
		log:      p.Log.Named("overbooking"),
		records:  p.Records,
		bookings: p.Bookings,
		clock:    p.Clock,
	}
}

// CheckAndResolve inspects one (room type, date) cell and shrinks pending
// allocations proportionally when they exceed remaining capacity.
func (g *Guard) CheckAndResolve(ctx context.Context, roomTypeID snowflake.ID, date time.Time) (*Report, error) {
	date = date.UTC().Truncate(24 * time.Hour)

	var report *Report
	var err error
	for attempt := 0; attempt < maxResolveRetries; attempt++ {
		report, err = g.resolveOnce(ctx, roomTypeID, date)
		if err != errVersionConflict {
			break
		}
	}
	if err == errVersionConflict {
		return nil, fmt.Errorf("cell %s/%s kept changing under the guard", roomTypeID, date.Format("2006-01-02"))
	}
	if err != nil {
		return nil, err
	}

	switch {
	case report.Escalated:
		metrics.Engine().IncOverbookingRun("escalated")
	case report.RoomsRemoved > 0:
		metrics.Engine().IncOverbookingRun("adjusted")
	default:
		metrics.Engine().IncOverbookingRun("ok")
	}
	metrics.Engine().AddOverbookingAdjusted(report.RoomsRemoved)
	return report, nil
}

var errVersionConflict = fmt.Errorf("overbooking: record version conflict")

func (g *Guard) resolveOnce(ctx context.Context, roomTypeID snowflake.ID, date time.Time) (*Report, error) {
	totalRooms, err := g.bookings.CountActiveRooms(ctx, roomTypeID)
	if err != nil {
		return nil, fmt.Errorf("count rooms: %w", err)
	}
	confirmed, err := g.bookings.CountBookedRooms(ctx, roomTypeID, date)
	if err != nil {
		return nil, fmt.Errorf("count booked: %w", err)
	}

	pending, err := g.records.ListPendingForDate(ctx, g.db, roomTypeID, date)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	allocated := 0
	for _, record := range pending {
		allocated += record.Available
	}

	capacity := totalRooms - confirmed
	report := &Report{
		RoomTypeID:        roomTypeID,
		Date:              date.Format("2006-01-02"),
		TotalRooms:        totalRooms,
		ConfirmedBookings: confirmed,
		PendingAllocated:  allocated,
		RemainingCapacity: capacity,
	}

	if capacity < 0 {
		report.Escalated = true
		report.RemainingCapacity = 0
		capacity = 0
		g.log.Error("confirmed bookings exceed physical capacity",
			zap.String("room_type_id", roomTypeID.String()),
			zap.String("date", report.Date),
			zap.Int("total_rooms", totalRooms),
			zap.Int("confirmed", confirmed),
		)
	}

	excess := allocated - capacity
	if excess <= 0 {
		return report, nil
	}

	// Each allocation gives up its proportional share of the excess,
	// rounded up. The total cut can overshoot slightly, which errs on the
	// side of selling fewer rooms than capacity rather than more.
	for _, record := range pending {
		if record.Available == 0 {
			continue
		}
		cut := ceilDiv(record.Available*excess, allocated)
		newAvailable := record.Available - cut
		if newAvailable < 0 {
			newAvailable = 0
		}

		inventory, err := reducedInventory(record, newAvailable)
		if err != nil {
			return nil, fmt.Errorf("rewrite inventory for %s: %w", record.SyncID, err)
		}
		ok, err := g.records.ReduceAvailable(ctx, g.db, record.ID, newAvailable, inventory, record.Version, g.clock.Now())
		if err != nil {
			return nil, fmt.Errorf("reduce allocation %s: %w", record.SyncID, err)
		}
		if !ok {
			return nil, errVersionConflict
		}

		report.RoomsRemoved += record.Available - newAvailable
		report.Adjustments = append(report.Adjustments, Adjustment{
			SyncID:    record.SyncID,
			ChannelID: record.ChannelID,
			Before:    record.Available,
			After:     newAvailable,
		})
		g.log.Warn("channel allocation reduced",
			zap.String("sync_id", record.SyncID),
			zap.String("channel_id", record.ChannelID.String()),
			zap.Int("before", record.Available),
			zap.Int("after", newAvailable),
		)
	}
	return report, nil
}

// SweepUpcoming runs the guard over every pending cell from today through
// the horizon.
func (g *Guard) SweepUpcoming(ctx context.Context, horizon time.Duration) (*SweepReport, error) {
	from := g.clock.Now().UTC().Truncate(24 * time.Hour)
	to := from.Add(horizon).Truncate(24 * time.Hour)

	cells, err := g.records.ListPendingCells(ctx, g.db, from, to)
	if err != nil {
		return nil, err
	}

	sweep := &SweepReport{}
	for _, cell := range cells {
		report, err := g.CheckAndResolve(ctx, cell.RoomTypeID, cell.Date)
		if err != nil {
			g.log.Error("guard run failed",
				zap.String("room_type_id", cell.RoomTypeID.String()),
				zap.Time("date", cell.Date),
				zap.Error(err),
			)
			continue
		}
		sweep.Cells = append(sweep.Cells, *report)
		sweep.RoomsRemoved += report.RoomsRemoved
		if report.Escalated {
			sweep.Escalations++
		}
	}
	return sweep, nil
}

func reducedInventory(record syncdomain.SyncRecord, newAvailable int) ([]byte, error) {
	var info connectordomain.InventoryInfo
	if len(record.Inventory) > 0 {
		if err := json.Unmarshal(record.Inventory, &info); err != nil {
			return nil, err
		}
	}
	info.Available = newAvailable
	return json.Marshal(info)
}

func ceilDiv(numerator, denominator int) int {
	return (numerator + denominator - 1) / denominator
}

var Module = fx.Module("overbooking",
	fx.Provide(NewGuard),
)
