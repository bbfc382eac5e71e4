package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/staybridge/channelsync/internal/bookingstore"
	channeldomain "github.com/staybridge/channelsync/internal/channel/domain"
	channelrepository "github.com/staybridge/channelsync/internal/channel/repository"
	channelservice "github.com/staybridge/channelsync/internal/channel/service"
	"github.com/staybridge/channelsync/internal/clock"
	"github.com/staybridge/channelsync/internal/config"
	"github.com/staybridge/channelsync/internal/connector"
	connectordomain "github.com/staybridge/channelsync/internal/connector/domain"
	"github.com/staybridge/channelsync/internal/ratesource"
	"github.com/staybridge/channelsync/internal/snapshot"
	"github.com/staybridge/channelsync/internal/sync/domain"
	syncrepository "github.com/staybridge/channelsync/internal/sync/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubConnector struct {
	mu        sync.Mutex
	calls     int
	failDates map[string]error
	authErr   error
}

func (c *stubConnector) Category() string { return "stub" }

func (c *stubConnector) Authenticate(context.Context) (connectordomain.Token, error) {
	if c.authErr != nil {
		return connectordomain.Token{}, c.authErr
	}
	return connectordomain.Token{Value: "tok"}, nil
}

func (c *stubConnector) SyncRatesAndInventory(_ context.Context, _ connectordomain.Token, payload connectordomain.SyncPayload) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if err, ok := c.failDates[payload.Date.Format("2006-01-02")]; ok {
		return err
	}
	return nil
}

func (c *stubConnector) GetReservations(context.Context, connectordomain.Token, time.Time) ([]connectordomain.ExternalReservation, error) {
	return nil, nil
}

func (c *stubConnector) GetChannelRates(context.Context, connectordomain.Token, string, time.Time, time.Time) ([]connectordomain.ChannelRate, error) {
	return nil, nil
}

func (c *stubConnector) TestConnection(context.Context) error { return nil }

func (c *stubConnector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type stubFactory struct {
	conn     *stubConnector
	category string
}

func (f *stubFactory) Category() string {
	if f.category == "" {
		return "stub"
	}
	return f.category
}

func (f *stubFactory) NewConnector(connectordomain.Config) (connectordomain.Connector, error) {
	return f.conn, nil
}

type storeStub struct {
	totalRooms int
	booked     int
}

func (s *storeStub) ListRoomTypes(context.Context) ([]bookingstore.RoomType, error) {
	return nil, nil
}

func (s *storeStub) CountActiveRooms(context.Context, snowflake.ID) (int, error) {
	return s.totalRooms, nil
}

func (s *storeStub) CountBookedRooms(context.Context, snowflake.ID, time.Time) (int, error) {
	return s.booked, nil
}

func (s *storeStub) FindAvailableRoom(context.Context, snowflake.ID, time.Time, time.Time) (snowflake.ID, error) {
	return 0, nil
}

func (s *storeStub) CreateBooking(context.Context, bookingstore.BookingDetails) (snowflake.ID, error) {
	return 0, nil
}

type rateStub struct{}

func (rateStub) GetBaseRate(context.Context, snowflake.ID, time.Time) (ratesource.Rate, error) {
	return ratesource.Rate{Amount: decimal.NewFromInt(150), Currency: "EUR"}, nil
}

type fixture struct {
	svc        domain.Service
	channels   channeldomain.Service
	conn       *stubConnector
	broken     *stubConnector
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
	roomTypeID snowflake.ID
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
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
	prepareSchema(t, conn)

	stub := &stubConnector{failDates: map[string]error{}}
	broken := &stubConnector{failDates: map[string]error{}, authErr: connectordomain.ErrAuthFailed}
	registry := connector.NewRegistry(
		&stubFactory{conn: stub},
		&stubFactory{conn: broken, category: "brokenstub"},
	)
	holder := config.NewSyncConfigHolderFromDefaults()
	builder := connector.NewBuilder(registry, config.Config{}, holder)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	channelSvc := channelservice.NewService(channelservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Repo:    channelrepository.Provide(),
		Builder: builder,
		GenID:   node,
		Clock:   fakeClock,
	})

	svc := NewService(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		Repo:     syncrepository.Provide(),
		Channels: channelSvc,
		Builder:  builder,
		Snapshot: snapshot.NewProvider(&storeStub{totalRooms: 10, booked: 4}, rateStub{}),
		GenID:    node,
		Clock:    fakeClock,
		SyncCfg:  holder,
	})

	return &fixture{
		svc:        svc,
		channels:   channelSvc,
		conn:       stub,
		broken:     broken,
		db:         conn,
		node:       node,
		clock:      fakeClock,
		roomTypeID: node.Generate(),
	}
}

func prepareSchema(t *testing.T, conn *gorm.DB) {
	t.Helper()
	statements := []string{
		`CREATE TABLE channels (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			code TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			connection_status TEXT NOT NULL,
			credentials TEXT,
			auto_sync BOOLEAN NOT NULL DEFAULT TRUE,
			allowed_variance DOUBLE PRECISION NOT NULL DEFAULT 0,
			commission_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_rate_sync DATETIME,
			last_inventory_sync DATETIME,
			last_restriction_sync DATETIME,
			last_reservation_sync DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE room_mappings (
			id BIGINT PRIMARY KEY,
			channel_id BIGINT NOT NULL,
			room_type_id BIGINT NOT NULL,
			channel_room_type_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (channel_id, room_type_id)
		)`,
		`CREATE TABLE sync_records (
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
		)`,
		`CREATE UNIQUE INDEX idx_sync_records_pending_cell
			ON sync_records (channel_id, room_type_id, date)
			WHERE status = 'PENDING'`,
	}
	for _, stmt := range statements {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func (f *fixture) registerChannel(t *testing.T, name string) *channeldomain.Channel {
	return f.registerChannelCategory(t, name, "stub")
}

func (f *fixture) registerChannelCategory(t *testing.T, name, category string) *channeldomain.Channel {
	t.Helper()
	channel, err := f.channels.Register(context.Background(), channeldomain.RegisterInput{
		Name:     name,
		Category: category,
		AutoSync: true,
	})
	if err != nil {
		t.Fatalf("register channel: %v", err)
	}
	if err := f.channels.SetRoomMappings(context.Background(), channel.ID, []channeldomain.MappingInput{
		{RoomTypeID: f.roomTypeID, ChannelRoomTypeID: "ext-std"},
	}); err != nil {
		t.Fatalf("set mappings: %v", err)
	}
	return channel
}

func TestPushToChannelSuccess(t *testing.T) {
	f := setupFixture(t)
	channel := f.registerChannel(t, "Booking Portal")
	ctx := context.Background()

	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	report, err := f.svc.PushToChannel(ctx, domain.PushRequest{
		ChannelID: channel.ID,
		From:      from,
		To:        from.AddDate(0, 0, 1),
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	if report.TotalCells != 2 || report.Successful != 2 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if f.conn.Calls() != 2 {
		t.Fatalf("expected 2 connector calls, got %d", f.conn.Calls())
	}

	var statuses []string
	if err := f.db.Raw(`SELECT status FROM sync_records ORDER BY date`).Scan(&statuses).Error; err != nil {
		t.Fatalf("read records: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 sync records, got %d", len(statuses))
	}
	for _, status := range statuses {
		if status != string(domain.SyncStatusSuccess) {
			t.Fatalf("expected SUCCESS records, got %v", statuses)
		}
	}

	updated, err := f.channels.Get(ctx, channel.ID)
	if err != nil {
		t.Fatalf("reload channel: %v", err)
	}
	if updated.ConnectionStatus != channeldomain.ConnectionStatusConnected {
		t.Fatalf("expected CONNECTED, got %s", updated.ConnectionStatus)
	}
	if updated.LastRateSync == nil || updated.LastInventorySync == nil || updated.LastRestrictionSync == nil {
		t.Fatalf("expected sync watermarks set: %+v", updated)
	}
}

func TestPushToChannelPartialFailure(t *testing.T) {
	f := setupFixture(t)
	channel := f.registerChannel(t, "Flaky Portal")
	ctx := context.Background()

	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	f.conn.failDates[from.Format("2006-01-02")] = connectordomain.ErrChannelRejected

	report, err := f.svc.PushToChannel(ctx, domain.PushRequest{
		ChannelID: channel.ID,
		From:      from,
		To:        from.AddDate(0, 0, 2),
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	if report.TotalCells != 3 || report.Successful != 2 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected 1 cell error, got %d", len(report.Errors))
	}
	if report.Errors[0].Date != from.Format("2006-01-02") {
		t.Fatalf("unexpected error cell: %+v", report.Errors[0])
	}

	var failed struct {
		Status       string
		ErrorMessage string
		SyncAttempts int
	}
	if err := f.db.Raw(
		`SELECT status, error_message, sync_attempts FROM sync_records WHERE date = ?`, from,
	).Scan(&failed).Error; err != nil {
		t.Fatalf("read failed record: %v", err)
	}
	if failed.Status != string(domain.SyncStatusFailed) {
		t.Fatalf("expected FAILED record, got %s", failed.Status)
	}
	if failed.ErrorMessage == "" {
		t.Fatal("expected error message on failed record")
	}
	if failed.SyncAttempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", failed.SyncAttempts)
	}
}

func TestPushToChannelUnmappedRoomType(t *testing.T) {
	f := setupFixture(t)
	channel := f.registerChannel(t, "Mapped Portal")
	ctx := context.Background()

	other := f.node.Generate()
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	report, err := f.svc.PushToChannel(ctx, domain.PushRequest{
		ChannelID:  channel.ID,
		RoomTypeID: other,
		From:       from,
		To:         from.AddDate(0, 0, 1),
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	if report.Failed != 2 || report.Successful != 0 {
		t.Fatalf("expected all cells failed, got %+v", report)
	}
	if len(report.Errors) != 1 || report.Errors[0].RoomTypeID != other {
		t.Fatalf("expected mapping error for room type, got %+v", report.Errors)
	}
	if f.conn.Calls() != 0 {
		t.Fatalf("expected no connector calls, got %d", f.conn.Calls())
	}
}

func TestPushToChannelAuthFailure(t *testing.T) {
	f := setupFixture(t)
	channel := f.registerChannel(t, "Locked Portal")
	ctx := context.Background()

	f.conn.authErr = connectordomain.ErrAuthFailed
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	report, err := f.svc.PushToChannel(ctx, domain.PushRequest{
		ChannelID: channel.ID,
		From:      from,
		To:        from,
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if report.Successful != 0 || report.Failed != 1 {
		t.Fatalf("expected total failure, got %+v", report)
	}

	updated, err := f.channels.Get(ctx, channel.ID)
	if err != nil {
		t.Fatalf("reload channel: %v", err)
	}
	if updated.ConnectionStatus != channeldomain.ConnectionStatusError {
		t.Fatalf("expected ERROR status, got %s", updated.ConnectionStatus)
	}
}

func TestPushReusesPendingRecord(t *testing.T) {
	f := setupFixture(t)
	channel := f.registerChannel(t, "Retry Portal")
	ctx := context.Background()

	// A pending record left over from an interrupted push must be reused,
	// never duplicated.
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	stale := f.node.Generate()
	if err := f.db.Exec(
		`INSERT INTO sync_records
			(id, sync_id, channel_id, room_type_id, date, status, available, sync_attempts, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?)`,
		stale, "stale-sync-id", channel.ID, f.roomTypeID, from,
		domain.SyncStatusPending, f.clock.Now(), f.clock.Now(),
	).Error; err != nil {
		t.Fatalf("seed pending record: %v", err)
	}

	report, err := f.svc.PushToChannel(ctx, domain.PushRequest{
		ChannelID: channel.ID,
		From:      from,
		To:        from,
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if report.Successful != 1 {
		t.Fatalf("expected success, got %+v", report)
	}

	var rows []struct {
		ID        snowflake.ID
		Status    string
		Available int
	}
	if err := f.db.Raw(
		`SELECT id, status, available FROM sync_records WHERE channel_id = ?`, channel.ID,
	).Scan(&rows).Error; err != nil {
		t.Fatalf("read records: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the stale record to be reused, got %d rows", len(rows))
	}
	if rows[0].ID != stale {
		t.Fatalf("expected reused record %d, got %d", stale, rows[0].ID)
	}
	if rows[0].Status != string(domain.SyncStatusSuccess) {
		t.Fatalf("expected SUCCESS, got %s", rows[0].Status)
	}
	if rows[0].Available != 6 {
		t.Fatalf("expected refreshed availability 6, got %d", rows[0].Available)
	}
}

func TestPushToAllChannelsSkipsInactive(t *testing.T) {
	f := setupFixture(t)
	healthy := f.registerChannel(t, "Healthy Portal")
	f.registerChannel(t, "Paused Portal")
	ctx := context.Background()

	channels, err := f.channels.List(ctx)
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	for _, ch := range channels {
		if ch.ID != healthy.ID {
			if err := f.channels.Deactivate(ctx, ch.ID); err != nil {
				t.Fatalf("deactivate: %v", err)
			}
		}
	}

	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	fleet, err := f.svc.PushToAllChannels(ctx, from, from)
	if err != nil {
		t.Fatalf("push all: %v", err)
	}
	if len(fleet.Channels) != 1 {
		t.Fatalf("expected 1 channel report, got %d", len(fleet.Channels))
	}
	if fleet.Successful != 1 || fleet.Failed != 0 {
		t.Fatalf("unexpected fleet report: %+v", fleet)
	}
}

// racingRepo reports no pending record for the first lookups, the window two
// overlapping pushes see when both miss the existing-record check.
type racingRepo struct {
	domain.Repository
	misses int
}

func (r *racingRepo) FindPendingForCell(ctx context.Context, conn *gorm.DB, channelID, roomTypeID snowflake.ID, date time.Time) (*domain.SyncRecord, error) {
	if r.misses > 0 {
		r.misses--
		return nil, nil
	}
	return r.Repository.FindPendingForCell(ctx, conn, channelID, roomTypeID, date)
}

func TestStagePendingAdoptsConcurrentRecord(t *testing.T) {
	f := setupFixture(t)
	channel := f.registerChannel(t, "Race Portal")
	ctx := context.Background()

	svc := &Service{
		db:    f.db,
		repo:  &racingRepo{Repository: syncrepository.Provide(), misses: 2},
		genID: f.node,
		clock: f.clock,
	}

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	c := cell{
		mapping: channeldomain.RoomMapping{
			ChannelID:         channel.ID,
			RoomTypeID:        f.roomTypeID,
			ChannelRoomTypeID: "ext-std",
		},
		date: date,
	}
	payload := connectordomain.SyncPayload{
		ChannelRoomTypeID: "ext-std",
		Date:              date,
		Inventory:         connectordomain.InventoryInfo{Available: 6},
	}

	first, err := svc.stagePending(ctx, channel.ID, c, payload)
	if err != nil {
		t.Fatalf("first staging: %v", err)
	}

	// The second staging misses the lookup too, collides with the unique
	// index on insert, and must adopt the first record instead of failing.
	payload.Inventory.Available = 4
	second, err := svc.stagePending(ctx, channel.ID, c, payload)
	if err != nil {
		t.Fatalf("second staging: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected record %d to be adopted, got %d", first.ID, second.ID)
	}

	var rows []struct {
		ID        snowflake.ID
		Status    string
		Available int
	}
	if err := f.db.Raw(
		`SELECT id, status, available FROM sync_records WHERE channel_id = ?`, channel.ID,
	).Scan(&rows).Error; err != nil {
		t.Fatalf("read records: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected a single open record, got %d rows", len(rows))
	}
	if rows[0].Status != string(domain.SyncStatusPending) || rows[0].Available != 4 {
		t.Fatalf("expected refreshed pending record, got %+v", rows[0])
	}
}

func TestStagePendingConcurrentPushesKeepOneOpenRecord(t *testing.T) {
	f := setupFixture(t)
	channel := f.registerChannel(t, "Parallel Portal")
	ctx := context.Background()
	svc := f.svc.(*Service)

	date := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	c := cell{
		mapping: channeldomain.RoomMapping{
			ChannelID:         channel.ID,
			RoomTypeID:        f.roomTypeID,
			ChannelRoomTypeID: "ext-std",
		},
		date: date,
	}
	payload := connectordomain.SyncPayload{
		ChannelRoomTypeID: "ext-std",
		Date:              date,
		Inventory:         connectordomain.InventoryInfo{Available: 6},
	}

	var wg sync.WaitGroup
	records := make([]*domain.SyncRecord, 2)
	errs := make([]error, 2)
	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records[i], errs[i] = svc.stagePending(ctx, channel.ID, c, payload)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("staging %d: %v", i, err)
		}
	}
	if records[0].ID != records[1].ID {
		t.Fatalf("both pushes must share one record, got %d and %d", records[0].ID, records[1].ID)
	}
	var pending int64
	if err := f.db.Raw(
		`SELECT COUNT(*) FROM sync_records WHERE channel_id = ? AND status = ?`,
		channel.ID, domain.SyncStatusPending,
	).Scan(&pending).Error; err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected exactly one pending record, got %d", pending)
	}
}

func TestPushToAllChannelsIsolatesFailingChannel(t *testing.T) {
	f := setupFixture(t)
	healthy := f.registerChannel(t, "Steady Portal")
	failing := f.registerChannelCategory(t, "Flaky Portal", "brokenstub")
	ctx := context.Background()

	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	fleet, err := f.svc.PushToAllChannels(ctx, from, from)
	if err != nil {
		t.Fatalf("push all: %v", err)
	}
	if len(fleet.Channels) != 2 {
		t.Fatalf("expected reports for both channels, got %d", len(fleet.Channels))
	}
	for _, report := range fleet.Channels {
		switch report.ChannelID {
		case healthy.ID:
			if report.Successful != 1 || report.Failed != 0 {
				t.Fatalf("healthy channel report: %+v", report)
			}
		case failing.ID:
			if report.Successful != 0 || report.Failed == 0 {
				t.Fatalf("failing channel report: %+v", report)
			}
		default:
			t.Fatalf("unexpected channel %d in fleet report", report.ChannelID)
		}
	}
	if fleet.Successful != 1 || fleet.Failed == 0 {
		t.Fatalf("unexpected fleet totals: %+v", fleet)
	}
}
