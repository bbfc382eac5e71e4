package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	channeldomain "github.com/staybridge/channelsync/internal/channel/domain"
	"github.com/staybridge/channelsync/internal/channel/repository"
	"github.com/staybridge/channelsync/internal/clock"
	"github.com/staybridge/channelsync/internal/config"
	"github.com/staybridge/channelsync/internal/connector"
	connectordomain "github.com/staybridge/channelsync/internal/connector/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testConnector struct {
	testErr error
}

func (c *testConnector) Category() string { return "stub" }

func (c *testConnector) Authenticate(context.Context) (connectordomain.Token, error) {
	return connectordomain.Token{Value: "tok"}, nil
}

func (c *testConnector) SyncRatesAndInventory(context.Context, connectordomain.Token, connectordomain.SyncPayload) error {
	return nil
}

func (c *testConnector) GetReservations(context.Context, connectordomain.Token, time.Time) ([]connectordomain.ExternalReservation, error) {
	return nil, nil
}

func (c *testConnector) GetChannelRates(context.Context, connectordomain.Token, string, time.Time, time.Time) ([]connectordomain.ChannelRate, error) {
	return nil, nil
}

func (c *testConnector) TestConnection(context.Context) error { return c.testErr }

type testFactory struct {
	conn *testConnector
}

func (f *testFactory) Category() string { return "stub" }

func (f *testFactory) NewConnector(connectordomain.Config) (connectordomain.Connector, error) {
	return f.conn, nil
}

func newTestService(t *testing.T) (channeldomain.Service, *testConnector, *clock.FakeClock) {
	t.Helper()

	node, err := snowflake.NewNode(2)
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
	}
	for _, stmt := range statements {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}

	stub := &testConnector{}
	registry := connector.NewRegistry(&testFactory{conn: stub})
	builder := connector.NewBuilder(registry, config.Config{}, config.NewSyncConfigHolderFromDefaults())
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Repo:    repository.Provide(),
		Builder: builder,
		GenID:   node,
		Clock:   fakeClock,
	})
	return svc, stub, fakeClock
}

func TestRegisterSlugsCode(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	channel, err := svc.Register(ctx, channeldomain.RegisterInput{
		Name:     "Booking Dot Com EMEA",
		Category: "STUB",
		AutoSync: true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if channel.Code != "booking-dot-com-emea" {
		t.Fatalf("expected slugged code, got %q", channel.Code)
	}
	if channel.Category != "stub" {
		t.Fatalf("expected normalised category, got %q", channel.Category)
	}
	if channel.ConnectionStatus != channeldomain.ConnectionStatusUnknown {
		t.Fatalf("expected UNKNOWN status, got %s", channel.ConnectionStatus)
	}
	if !channel.IsActive {
		t.Fatal("expected new channel to be active")
	}
}

func TestRegisterRejectsDuplicateCode(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, channeldomain.RegisterInput{Name: "Expedia", Category: "stub"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(ctx, channeldomain.RegisterInput{Name: "Expedia", Category: "stub"})
	if !errors.Is(err, channeldomain.ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}
}

func TestRegisterRejectsUnknownCategory(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), channeldomain.RegisterInput{
		Name:     "Mystery Portal",
		Category: "telex",
	})
	if !errors.Is(err, channeldomain.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestSetRoomMappingsReplaces(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	channel, err := svc.Register(ctx, channeldomain.RegisterInput{Name: "Agoda", Category: "stub"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	first := snowflake.ID(101)
	second := snowflake.ID(102)
	if err := svc.SetRoomMappings(ctx, channel.ID, []channeldomain.MappingInput{
		{RoomTypeID: first, ChannelRoomTypeID: "ext-1"},
		{RoomTypeID: second, ChannelRoomTypeID: "ext-2"},
	}); err != nil {
		t.Fatalf("set mappings: %v", err)
	}

	// A second call replaces the whole set, not merges.
	if err := svc.SetRoomMappings(ctx, channel.ID, []channeldomain.MappingInput{
		{RoomTypeID: second, ChannelRoomTypeID: "ext-2b"},
	}); err != nil {
		t.Fatalf("replace mappings: %v", err)
	}

	mappings, err := svc.Mappings(ctx, channel.ID)
	if err != nil {
		t.Fatalf("list mappings: %v", err)
	}
	if len(mappings) != 1 {
		t.Fatalf("expected 1 mapping after replace, got %d", len(mappings))
	}
	if mappings[0].RoomTypeID != second || mappings[0].ChannelRoomTypeID != "ext-2b" {
		t.Fatalf("unexpected mapping: %+v", mappings[0])
	}

	gone, err := svc.MappingForRoomType(ctx, channel.ID, first)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if gone != nil {
		t.Fatalf("expected replaced mapping to be gone, got %+v", gone)
	}
}

func TestSetRoomMappingsRejectsDuplicateRoomType(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	channel, err := svc.Register(ctx, channeldomain.RegisterInput{Name: "Airbnb", Category: "stub"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	err = svc.SetRoomMappings(ctx, channel.ID, []channeldomain.MappingInput{
		{RoomTypeID: 7, ChannelRoomTypeID: "a"},
		{RoomTypeID: 7, ChannelRoomTypeID: "b"},
	})
	if !errors.Is(err, channeldomain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRecordSyncUpdatesWatermark(t *testing.T) {
	svc, _, fakeClock := newTestService(t)
	ctx := context.Background()

	channel, err := svc.Register(ctx, channeldomain.RegisterInput{Name: "Hostel World", Category: "stub"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	at := fakeClock.Now().Add(30 * time.Minute)
	if err := svc.RecordSync(ctx, channel.ID, channeldomain.SyncKindRates, at); err != nil {
		t.Fatalf("record sync: %v", err)
	}

	reloaded, err := svc.Get(ctx, channel.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.LastRateSync == nil || !reloaded.LastRateSync.Equal(at) {
		t.Fatalf("expected rates watermark %v, got %v", at, reloaded.LastRateSync)
	}
	if reloaded.LastInventorySync != nil {
		t.Fatalf("inventory watermark should be untouched, got %v", reloaded.LastInventorySync)
	}
}

func TestTestConnectionRecordsStatus(t *testing.T) {
	svc, stub, _ := newTestService(t)
	ctx := context.Background()

	channel, err := svc.Register(ctx, channeldomain.RegisterInput{Name: "Trivago", Category: "stub"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.TestConnection(ctx, channel.ID); err != nil {
		t.Fatalf("test connection: %v", err)
	}
	reloaded, _ := svc.Get(ctx, channel.ID)
	if reloaded.ConnectionStatus != channeldomain.ConnectionStatusConnected {
		t.Fatalf("expected CONNECTED, got %s", reloaded.ConnectionStatus)
	}

	stub.testErr = connectordomain.ErrChannelUnavailable
	if err := svc.TestConnection(ctx, channel.ID); err == nil {
		t.Fatal("expected test connection error")
	}
	reloaded, _ = svc.Get(ctx, channel.ID)
	if reloaded.ConnectionStatus != channeldomain.ConnectionStatusError {
		t.Fatalf("expected ERROR, got %s", reloaded.ConnectionStatus)
	}
}

func TestDeactivateHidesFromAutoSyncList(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	channel, err := svc.Register(ctx, channeldomain.RegisterInput{
		Name: "Kayak", Category: "stub", AutoSync: true,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	active, err := svc.ListActiveAutoSync(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 auto-sync channel, got %d", len(active))
	}

	if err := svc.Deactivate(ctx, channel.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, err = svc.ListActiveAutoSync(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no auto-sync channels, got %d", len(active))
	}
}

func TestListMappingsByRoomTypeSpansChannels(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	roomType := snowflake.ID(301)
	first, err := svc.Register(ctx, channeldomain.RegisterInput{Name: "Agoda", Category: "stub"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := svc.Register(ctx, channeldomain.RegisterInput{Name: "Expedia", Category: "stub"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.SetRoomMappings(ctx, first.ID, []channeldomain.MappingInput{
		{RoomTypeID: roomType, ChannelRoomTypeID: "ag-std"},
	}); err != nil {
		t.Fatalf("set mappings: %v", err)
	}
	if err := svc.SetRoomMappings(ctx, second.ID, []channeldomain.MappingInput{
		{RoomTypeID: roomType, ChannelRoomTypeID: "ex-std"},
		{RoomTypeID: snowflake.ID(302), ChannelRoomTypeID: "ex-dlx"},
	}); err != nil {
		t.Fatalf("set mappings: %v", err)
	}

	mappings, err := svc.ListMappingsByRoomType(ctx, roomType)
	if err != nil {
		t.Fatalf("list by room type: %v", err)
	}
	if len(mappings) != 2 {
		t.Fatalf("expected the room type mapped on both channels, got %d", len(mappings))
	}
	byChannel := map[snowflake.ID]string{}
	for _, m := range mappings {
		byChannel[m.ChannelID] = m.ChannelRoomTypeID
	}
	if byChannel[first.ID] != "ag-std" || byChannel[second.ID] != "ex-std" {
		t.Fatalf("unexpected mappings: %+v", byChannel)
	}
}
