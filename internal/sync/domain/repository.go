package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *SyncRecord) error
	FindPendingForCell(ctx context.Context, db *gorm.DB, channelID, roomTypeID snowflake.ID, date time.Time) (*SyncRecord, error)
	UpdatePayload(ctx context.Context, db *gorm.DB, record *SyncRecord) error
	MarkResult(ctx context.Context, db *gorm.DB, id snowflake.ID, status SyncStatus, errorMessage string, at time.Time) error
	ListPendingForDate(ctx context.Context, db *gorm.DB, roomTypeID snowflake.ID, date time.Time) ([]SyncRecord, error)
	// ListPendingCells enumerates the distinct (room type, date) pairs with
	// at least one pending record inside the date range.
	ListPendingCells(ctx context.Context, db *gorm.DB, from, to time.Time) ([]PendingCell, error)
	// ReduceAvailable lowers a pending record's available count iff the row
	// still carries the expected version; returns false when the row changed
	// underneath the caller.
	ReduceAvailable(ctx context.Context, db *gorm.DB, id snowflake.ID, newAvailable int, inventory []byte, expectedVersion int, at time.Time) (bool, error)
	ListByChannel(ctx context.Context, db *gorm.DB, channelID snowflake.ID, limit int) ([]SyncRecord, error)
}
