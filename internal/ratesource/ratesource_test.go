package ratesource

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.Exec(`CREATE TABLE room_rates (
		id BIGINT PRIMARY KEY,
		room_type_id BIGINT NOT NULL,
		date DATETIME,
		amount DECIMAL(12,2) NOT NULL,
		currency TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("prepare schema: %v", err)
	}
	return conn
}

func seedRate(t *testing.T, conn *gorm.DB, node *snowflake.Node, roomTypeID snowflake.ID, date *time.Time, amount int64) {
	t.Helper()
	now := time.Now().UTC()
	if err := conn.Exec(
		`INSERT INTO room_rates (id, room_type_id, date, amount, currency, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		node.Generate(), roomTypeID, date, decimal.NewFromInt(amount), "EUR", now, now,
	).Error; err != nil {
		t.Fatalf("seed rate: %v", err)
	}
}

func TestGetBaseRatePrefersDatedOverride(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	conn := openTestDB(t)
	source := NewSource(conn)
	ctx := context.Background()

	roomTypeID := node.Generate()
	day := time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)

	seedRate(t, conn, node, roomTypeID, nil, 100)
	seedRate(t, conn, node, roomTypeID, &day, 180)

	rate, err := source.GetBaseRate(ctx, roomTypeID, day)
	if err != nil {
		t.Fatalf("get base rate: %v", err)
	}
	if !rate.Amount.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("expected dated override 180, got %s", rate.Amount)
	}

	// Other days fall back to the standing rate.
	rate, err = source.GetBaseRate(ctx, roomTypeID, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("get standing rate: %v", err)
	}
	if !rate.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected standing rate 100, got %s", rate.Amount)
	}
}

func TestGetBaseRateMissing(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	conn := openTestDB(t)
	source := NewSource(conn)

	_, err = source.GetBaseRate(context.Background(), node.Generate(), time.Now())
	if !errors.Is(err, ErrNoRate) {
		t.Fatalf("expected ErrNoRate, got %v", err)
	}
}
