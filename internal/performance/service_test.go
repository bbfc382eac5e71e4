package performance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/staybridge/channelsync/internal/clock"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newPerfService(t *testing.T) Service {
	t.Helper()

	node, err := snowflake.NewNode(6)
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

	if err := conn.Exec(`CREATE TABLE channel_performance (
		id BIGINT PRIMARY KEY,
		channel_id BIGINT NOT NULL,
		date DATETIME NOT NULL,
		bookings INTEGER NOT NULL DEFAULT 0,
		revenue DECIMAL(14,2) NOT NULL,
		commission DECIMAL(14,2) NOT NULL,
		net_revenue DECIMAL(14,2) NOT NULL,
		impressions BIGINT NOT NULL DEFAULT 0,
		clicks BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (channel_id, date)
	)`).Error; err != nil {
		t.Fatalf("prepare schema: %v", err)
	}

	return NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		Repo:  ProvideRepository(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	})
}

func TestRecordBookingAccumulates(t *testing.T) {
	svc := newPerfService(t)
	ctx := context.Background()
	channelID := snowflake.ID(11)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// Two bookings the same day land in one upserted row.
	if err := svc.RecordBooking(ctx, channelID, day, decimal.NewFromInt(300), 15); err != nil {
		t.Fatalf("record booking: %v", err)
	}
	if err := svc.RecordBooking(ctx, channelID, day, decimal.NewFromInt(100), 15); err != nil {
		t.Fatalf("record booking: %v", err)
	}

	summary, err := svc.Query(ctx, channelID, day, day)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(summary.Daily) != 1 {
		t.Fatalf("expected 1 daily row, got %d", len(summary.Daily))
	}
	row := summary.Daily[0]
	if row.Bookings != 2 {
		t.Fatalf("expected 2 bookings, got %d", row.Bookings)
	}
	if !row.Revenue.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected revenue 400, got %s", row.Revenue)
	}
	if !row.Commission.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected commission 60, got %s", row.Commission)
	}
	if !row.NetRevenue.Equal(decimal.NewFromInt(340)) {
		t.Fatalf("expected net revenue 340, got %s", row.NetRevenue)
	}
}

func TestRecordEngagementMergesIntoBookingRow(t *testing.T) {
	svc := newPerfService(t)
	ctx := context.Background()
	channelID := snowflake.ID(12)
	day := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	if err := svc.RecordBooking(ctx, channelID, day, decimal.NewFromInt(250), 10); err != nil {
		t.Fatalf("record booking: %v", err)
	}
	if err := svc.RecordEngagement(ctx, channelID, day, 1000, 42); err != nil {
		t.Fatalf("record engagement: %v", err)
	}

	summary, err := svc.Query(ctx, channelID, day, day)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(summary.Daily) != 1 {
		t.Fatalf("expected a single merged row, got %d", len(summary.Daily))
	}
	row := summary.Daily[0]
	if row.Bookings != 1 || row.Impressions != 1000 || row.Clicks != 42 {
		t.Fatalf("unexpected merged row: %+v", row)
	}
}

func TestQueryTotalsAcrossDays(t *testing.T) {
	svc := newPerfService(t)
	ctx := context.Background()
	channelID := snowflake.ID(13)
	first := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	second := first.AddDate(0, 0, 1)

	if err := svc.RecordBooking(ctx, channelID, first, decimal.NewFromInt(200), 20); err != nil {
		t.Fatalf("record booking: %v", err)
	}
	if err := svc.RecordBooking(ctx, channelID, second, decimal.NewFromInt(100), 20); err != nil {
		t.Fatalf("record booking: %v", err)
	}
	if err := svc.RecordEngagement(ctx, channelID, second, 500, 10); err != nil {
		t.Fatalf("record engagement: %v", err)
	}

	summary, err := svc.Query(ctx, channelID, first, second)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(summary.Daily) != 2 {
		t.Fatalf("expected 2 daily rows, got %d", len(summary.Daily))
	}
	if summary.Totals.Bookings != 2 {
		t.Fatalf("expected 2 total bookings, got %d", summary.Totals.Bookings)
	}
	if !summary.Totals.Revenue.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected total revenue 300, got %s", summary.Totals.Revenue)
	}
	if !summary.Totals.Commission.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected total commission 60, got %s", summary.Totals.Commission)
	}
	if summary.Totals.Impressions != 500 || summary.Totals.Clicks != 10 {
		t.Fatalf("unexpected engagement totals: %+v", summary.Totals)
	}
}

func TestRecordBookingRejectsNegativeRevenue(t *testing.T) {
	svc := newPerfService(t)

	err := svc.RecordBooking(context.Background(), 14, time.Now(), decimal.NewFromInt(-10), 15)
	if err == nil {
		t.Fatal("expected error for negative revenue")
	}
}
