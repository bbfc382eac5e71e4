package bookingstore

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/staybridge/channelsync/internal/clock"
	"github.com/staybridge/channelsync/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	GenID *snowflake.Node
	Clock clock.Clock
}

type gormStore struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func NewStore(p Params) Store {
	return &gormStore{
		db:    p.DB,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *gormStore) ListRoomTypes(ctx context.Context) ([]RoomType, error) {
	var roomTypes []RoomType
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, name, code, created_at FROM room_types ORDER BY code ASC`,
	).Scan(&roomTypes).Error
	if err != nil {
		return nil, err
	}
	return roomTypes, nil
}

func (s *gormStore) CountActiveRooms(ctx context.Context, roomTypeID snowflake.ID) (int, error) {
	var count int
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM rooms WHERE room_type_id = ? AND is_active = ?`,
		roomTypeID,
		true,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *gormStore) CountBookedRooms(ctx context.Context, roomTypeID snowflake.ID, date time.Time) (int, error) {
	day := date.Truncate(24 * time.Hour)
	var count int
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM bookings
		 WHERE room_type_id = ?
		   AND status IN ?
		   AND check_in <= ? AND check_out > ?`,
		roomTypeID,
		[]BookingStatus{BookingStatusConfirmed, BookingStatusCheckedIn},
		day,
		day,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *gormStore) FindAvailableRoom(ctx context.Context, roomTypeID snowflake.ID, checkIn, checkOut time.Time) (snowflake.ID, error) {
	var roomID snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT r.id FROM rooms r
		 WHERE r.room_type_id = ? AND r.is_active = ?
		   AND NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.room_id = r.id
			  AND b.status IN ?
			  AND b.check_in < ? AND b.check_out > ?
		   )
		 ORDER BY r.number ASC
		 LIMIT 1`,
		roomTypeID,
		true,
		[]BookingStatus{BookingStatusConfirmed, BookingStatusCheckedIn},
		checkOut,
		checkIn,
	).Scan(&roomID).Error
	if err != nil {
		return 0, err
	}
	return roomID, nil
}

func (s *gormStore) CreateBooking(ctx context.Context, details BookingDetails) (snowflake.ID, error) {
	if details.RoomID == 0 || details.RoomTypeID == 0 || details.IdempotencyKey == "" {
		return 0, ErrInvalidBooking
	}
	if !details.CheckOut.After(details.CheckIn) {
		return 0, fmt.Errorf("%w: check-out must follow check-in", ErrInvalidBooking)
	}

	if id, err := s.findByIdempotencyKey(ctx, details.IdempotencyKey); err != nil {
		return 0, err
	} else if id != 0 {
		return id, nil
	}

	now := s.clock.Now()
	booking := Booking{
		ID:             s.genID.Generate(),
		RoomID:         details.RoomID,
		RoomTypeID:     details.RoomTypeID,
		GuestName:      details.GuestName,
		GuestEmail:     details.GuestEmail,
		CheckIn:        details.CheckIn,
		CheckOut:       details.CheckOut,
		Adults:         details.Adults,
		Children:       details.Children,
		Status:         BookingStatusConfirmed,
		TotalAmount:    details.TotalAmount,
		Currency:       details.Currency,
		Source:         details.Source,
		IdempotencyKey: details.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO bookings (
			id, room_id, room_type_id, guest_name, guest_email, check_in, check_out,
			adults, children, status, total_amount, currency, source, idempotency_key,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID,
		booking.RoomID,
		booking.RoomTypeID,
		booking.GuestName,
		booking.GuestEmail,
		booking.CheckIn,
		booking.CheckOut,
		booking.Adults,
		booking.Children,
		booking.Status,
		booking.TotalAmount,
		booking.Currency,
		booking.Source,
		booking.IdempotencyKey,
		booking.CreatedAt,
		booking.UpdatedAt,
	).Error
	if err != nil {
		// A concurrent retry with the same key wins the race; return its row.
		if db.IsDuplicateKeyErr(err) {
			return s.findByIdempotencyKey(ctx, details.IdempotencyKey)
		}
		return 0, err
	}
	return booking.ID, nil
}

func (s *gormStore) findByIdempotencyKey(ctx context.Context, key string) (snowflake.ID, error) {
	var id snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM bookings WHERE idempotency_key = ? LIMIT 1`,
		key,
	).Scan(&id).Error
	if err != nil {
		return 0, err
	}
	return id, nil
}

var Module = fx.Module("bookingstore",
	fx.Provide(NewStore),
)
