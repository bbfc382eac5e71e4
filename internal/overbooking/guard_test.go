package overbooking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/staybridge/channelsync/internal/bookingstore"
	"github.com/staybridge/channelsync/internal/clock"
	syncrepository "github.com/staybridge/channelsync/internal/sync/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type capacityStub struct {
	totalRooms int
	booked     int
}

func (s *capacityStub) ListRoomTypes(context.Context) ([]bookingstore.RoomType, error) {
	return nil, nil
}

func (s *capacityStub) CountActiveRooms(context.Context, snowflake.ID) (int, error) {
	return s.totalRooms, nil
}

func (s *capacityStub) CountBookedRooms(context.Context, snowflake.ID, time.Time) (int, error) {
	return s.booked, nil
}

func (s *capacityStub) FindAvailableRoom(context.Context, snowflake.ID, time.Time, time.Time) (snowflake.ID, error) {
	return 0, nil
}

func (s *capacityStub) CreateBooking(context.Context, bookingstore.BookingDetails) (snowflake.ID, error) {
	return 0, nil
}

type guardFixture struct {
	guard    *Guard
	capacity *capacityStub
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
}

func setupGuard(t *testing.T) *guardFixture {
	t.Helper()

	node, err := snowflake.NewNode(4)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := conn.Exec(`CREATE TABLE sync_records (
		id BIGINT PRIMARY KEY,
		sync_id TEXT NOT NULL UNIQUE,
		channel_id BIGINT NOT NULL,
		room_type_id BIGINT NOT NULL,
		date DATETIME NOT NULL,
		status TEXT NOT NULL,
		available INTEGER NOT NULL DEFAULT 0,
		inventory TEXT,
		rates TEXT,
		restrictions TEXT,
		error_message TEXT,
		sync_attempts INTEGER NOT NULL DEFAULT 0,
		last_sync_attempt DATETIME,
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("prepare schema: %v", err)
	}

	capacity := &capacityStub{}
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	guard := NewGuard(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		Records:  syncrepository.Provide(),
		Bookings: capacity,
		Clock:    fakeClock,
	})
	return &guardFixture{guard: guard, capacity: capacity, db: conn, node: node, clock: fakeClock}
}

func (f *guardFixture) seedPending(t *testing.T, channelID snowflake.ID, roomTypeID snowflake.ID, date time.Time, available int) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	inventory := fmt.Sprintf(`{"available":%d,"sold":0,"blocked":0,"overbooking":0}`, available)
	if err := f.db.Exec(
		`INSERT INTO sync_records
			(id, sync_id, channel_id, room_type_id, date, status, available, inventory, sync_attempts, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'PENDING', ?, ?, 0, 0, ?, ?)`,
		id, fmt.Sprintf("sync-%d", id), channelID, roomTypeID, date,
		available, inventory, f.clock.Now(), f.clock.Now(),
	).Error; err != nil {
		t.Fatalf("seed pending record: %v", err)
	}
	return id
}

func (f *guardFixture) availableOf(t *testing.T, id snowflake.ID) int {
	t.Helper()
	var available int
	if err := f.db.Raw(`SELECT available FROM sync_records WHERE id = ?`, id).Scan(&available).Error; err != nil {
		t.Fatalf("read available: %v", err)
	}
	return available
}

func TestCheckAndResolveProportionalCuts(t *testing.T) {
	f := setupGuard(t)
	ctx := context.Background()
	roomType := snowflake.ID(301)
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	// 20 rooms promised against 8 of real capacity. The excess of 12 is
	// shared proportionally: 10/20, 5/20 and 5/20 of it, rounded up.
	f.capacity.totalRooms = 10
	f.capacity.booked = 2
	a := f.seedPending(t, 1, roomType, date, 10)
	b := f.seedPending(t, 2, roomType, date, 5)
	c := f.seedPending(t, 3, roomType, date, 5)

	report, err := f.guard.CheckAndResolve(ctx, roomType, date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if report.PendingAllocated != 20 || report.RemainingCapacity != 8 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Escalated {
		t.Fatal("should not escalate while confirmed fits capacity")
	}
	if got := f.availableOf(t, a); got != 4 {
		t.Fatalf("record a: expected 4, got %d", got)
	}
	if got := f.availableOf(t, b); got != 2 {
		t.Fatalf("record b: expected 2, got %d", got)
	}
	if got := f.availableOf(t, c); got != 2 {
		t.Fatalf("record c: expected 2, got %d", got)
	}
	if report.RoomsRemoved != 12 {
		t.Fatalf("expected 12 rooms removed, got %d", report.RoomsRemoved)
	}
	if len(report.Adjustments) != 3 {
		t.Fatalf("expected 3 adjustments, got %d", len(report.Adjustments))
	}
}

func TestCheckAndResolveCeilRoundingUndersells(t *testing.T) {
	f := setupGuard(t)
	ctx := context.Background()
	roomType := snowflake.ID(302)
	date := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	// Capacity 3, allocated 5, excess 2. Ceil rounding cuts 1 and 2, so
	// the channels end up holding 2 of the 3 free rooms. Underselling by
	// one room is the intended bias.
	f.capacity.totalRooms = 10
	f.capacity.booked = 7
	x := f.seedPending(t, 1, roomType, date, 2)
	y := f.seedPending(t, 2, roomType, date, 3)

	report, err := f.guard.CheckAndResolve(ctx, roomType, date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if got := f.availableOf(t, x); got != 1 {
		t.Fatalf("record x: expected 1, got %d", got)
	}
	if got := f.availableOf(t, y); got != 1 {
		t.Fatalf("record y: expected 1, got %d", got)
	}
	if report.RoomsRemoved != 3 {
		t.Fatalf("expected 3 rooms removed, got %d", report.RoomsRemoved)
	}
}

func TestCheckAndResolveWithinCapacityIsNoop(t *testing.T) {
	f := setupGuard(t)
	ctx := context.Background()
	roomType := snowflake.ID(303)
	date := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)

	f.capacity.totalRooms = 10
	f.capacity.booked = 3
	a := f.seedPending(t, 1, roomType, date, 4)
	b := f.seedPending(t, 2, roomType, date, 3)

	report, err := f.guard.CheckAndResolve(ctx, roomType, date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if report.RoomsRemoved != 0 || len(report.Adjustments) != 0 {
		t.Fatalf("expected no adjustments, got %+v", report)
	}
	if f.availableOf(t, a) != 4 || f.availableOf(t, b) != 3 {
		t.Fatal("allocations must be untouched when capacity suffices")
	}
}

func TestCheckAndResolveEscalatesWhenOverbooked(t *testing.T) {
	f := setupGuard(t)
	ctx := context.Background()
	roomType := snowflake.ID(304)
	date := time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC)

	// More confirmed bookings than physical rooms: every pending
	// allocation drops to zero and the run is flagged for a human.
	f.capacity.totalRooms = 10
	f.capacity.booked = 12
	a := f.seedPending(t, 1, roomType, date, 5)

	report, err := f.guard.CheckAndResolve(ctx, roomType, date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !report.Escalated {
		t.Fatal("expected escalation")
	}
	if report.RemainingCapacity != 0 {
		t.Fatalf("expected clamped capacity 0, got %d", report.RemainingCapacity)
	}
	if got := f.availableOf(t, a); got != 0 {
		t.Fatalf("expected allocation zeroed, got %d", got)
	}
}

func TestSweepUpcomingCoversPendingCells(t *testing.T) {
	f := setupGuard(t)
	ctx := context.Background()

	f.capacity.totalRooms = 4
	f.capacity.booked = 2

	today := f.clock.Now().UTC().Truncate(24 * time.Hour)
	inWindow := today.AddDate(0, 0, 3)
	beyond := today.AddDate(0, 0, 30)
	a := f.seedPending(t, 1, 305, inWindow, 6)
	b := f.seedPending(t, 1, 306, beyond, 6)

	sweep, err := f.guard.SweepUpcoming(ctx, 14*24*time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(sweep.Cells) != 1 {
		t.Fatalf("expected 1 swept cell, got %d", len(sweep.Cells))
	}
	if sweep.RoomsRemoved != 4 {
		t.Fatalf("expected 4 rooms removed, got %d", sweep.RoomsRemoved)
	}
	if got := f.availableOf(t, a); got != 2 {
		t.Fatalf("in-window record: expected 2, got %d", got)
	}
	if got := f.availableOf(t, b); got != 6 {
		t.Fatalf("beyond-horizon record must be untouched, got %d", got)
	}
}
