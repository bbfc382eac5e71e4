package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	reservationdomain "github.com/staybridge/channelsync/internal/reservation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() reservationdomain.Repository {
	return &repo{}
}

const mappingColumns = `id, channel_id, external_reservation_id, internal_booking_id,
	 status, error_message, guest_name, check_in, check_out, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, mapping *reservationdomain.ReservationMapping) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO reservation_mappings (
			id, channel_id, external_reservation_id, internal_booking_id,
			status, error_message, guest_name, check_in, check_out,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mapping.ID,
		mapping.ChannelID,
		mapping.ExternalReservationID,
		mapping.InternalBookingID,
		mapping.Status,
		mapping.ErrorMessage,
		mapping.GuestName,
		mapping.CheckIn,
		mapping.CheckOut,
		mapping.CreatedAt,
		mapping.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, mapping *reservationdomain.ReservationMapping) error {
	return db.WithContext(ctx).Exec(
		`UPDATE reservation_mappings SET
			internal_booking_id = ?, status = ?, error_message = ?, updated_at = ?
		 WHERE id = ?`,
		mapping.InternalBookingID,
		mapping.Status,
		mapping.ErrorMessage,
		mapping.UpdatedAt,
		mapping.ID,
	).Error
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, channelID snowflake.ID, externalID string) (*reservationdomain.ReservationMapping, error) {
	var mapping reservationdomain.ReservationMapping
	err := db.WithContext(ctx).Raw(
		`SELECT `+mappingColumns+` FROM reservation_mappings
		 WHERE channel_id = ? AND external_reservation_id = ?
		 LIMIT 1`,
		channelID,
		externalID,
	).Scan(&mapping).Error
	if err != nil {
		return nil, err
	}
	if mapping.ID == 0 {
		return nil, nil
	}
	return &mapping, nil
}

func (r *repo) ListByChannel(ctx context.Context, db *gorm.DB, channelID snowflake.ID, limit int) ([]reservationdomain.ReservationMapping, error) {
	if limit <= 0 {
		limit = 100
	}
	var mappings []reservationdomain.ReservationMapping
	err := db.WithContext(ctx).Raw(
		`SELECT `+mappingColumns+` FROM reservation_mappings
		 WHERE channel_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		channelID,
		limit,
	).Scan(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}
