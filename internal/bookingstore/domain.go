// Package bookingstore is the engine's narrow interface onto the hotel's
// booking system. The engine only counts capacity, finds a free room, and
// creates bookings for pulled reservations; the booking lifecycle itself
// lives elsewhere.
package bookingstore

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrNoRoomAvailable = errors.New("bookingstore: no room available")
	ErrInvalidBooking  = errors.New("bookingstore: invalid booking details")
)

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCheckedIn BookingStatus = "CHECKED_IN"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

// BookingDetails is everything needed to create a booking from a pulled
// channel reservation. IdempotencyKey is derived from the external
// reservation id so retried pulls cannot double-book.
type BookingDetails struct {
	RoomID         snowflake.ID
	RoomTypeID     snowflake.ID
	GuestName      string
	GuestEmail     string
	CheckIn        time.Time
	CheckOut       time.Time
	Adults         int
	Children       int
	TotalAmount    decimal.Decimal
	Currency       string
	Source         string
	IdempotencyKey string
}

type Store interface {
	// ListRoomTypes returns every room type the hotel sells.
	ListRoomTypes(ctx context.Context) ([]RoomType, error)
	// CountActiveRooms returns the physical capacity for a room type.
	CountActiveRooms(ctx context.Context, roomTypeID snowflake.ID) (int, error)
	// CountBookedRooms counts bookings of any source covering the date with
	// status confirmed or checked-in.
	CountBookedRooms(ctx context.Context, roomTypeID snowflake.ID, date time.Time) (int, error)
	// FindAvailableRoom returns the first active room of the type with no
	// overlapping booking for [checkIn, checkOut), or 0 when none exists.
	FindAvailableRoom(ctx context.Context, roomTypeID snowflake.ID, checkIn, checkOut time.Time) (snowflake.ID, error)
	// CreateBooking inserts a confirmed booking, returning the existing
	// booking's id when the idempotency key has been seen before.
	CreateBooking(ctx context.Context, details BookingDetails) (snowflake.ID, error)
}
