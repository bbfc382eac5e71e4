// Package domain defines the polymorphic boundary between the distribution
// engine and external sales channels. A Connector translates the canonical
// payload into channel-specific calls and maps channel reservations back into
// canonical records; the engine never sees a channel's wire format.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrCategoryNotFound   = errors.New("connector: category not registered")
	ErrInvalidConfig      = errors.New("connector: invalid configuration")
	ErrMissingCredentials = errors.New("connector: missing credentials")
	ErrAuthFailed         = errors.New("connector: authentication failed")
	ErrChannelRejected    = errors.New("connector: channel rejected payload")
	ErrChannelUnavailable = errors.New("connector: channel unavailable")
)

// Token is the per-call credential obtained from Authenticate. Fallback
// tokens are explicitly marked so the caller can log and reject them in
// production.
type Token struct {
	Value            string
	ExpiresAt        time.Time
	InsecureFallback bool
}

// InventoryInfo is the availability block of a sync payload.
type InventoryInfo struct {
	Available   int `json:"available"`
	Sold        int `json:"sold"`
	Blocked     int `json:"blocked"`
	Overbooking int `json:"overbooking"`
}

// RateInfo carries the canonical and selling rate for one cell.
type RateInfo struct {
	BaseRate    decimal.Decimal `json:"base_rate"`
	SellingRate decimal.Decimal `json:"selling_rate"`
	Currency    string          `json:"currency"`
}

// RestrictionInfo mirrors the stay restrictions a channel can enforce.
type RestrictionInfo struct {
	Closed           bool `json:"closed"`
	CloseToArrival   bool `json:"close_to_arrival"`
	CloseToDeparture bool `json:"close_to_departure"`
	MinLOS           int  `json:"min_los"`
	MaxLOS           int  `json:"max_los"`
}

// SyncPayload is the canonical unit pushed to a channel for one
// (channel room type, date) cell. It is transient and never persisted as-is;
// the SyncRecord keeps a snapshot of what was actually sent.
type SyncPayload struct {
	ChannelRoomTypeID string
	Date              time.Time
	Inventory         InventoryInfo
	Rates             RateInfo
	Restrictions      RestrictionInfo
}

// ExternalReservation is the canonical form of a reservation created on a
// channel, before it is mapped into an internal booking.
type ExternalReservation struct {
	ExternalID        string
	ChannelRoomTypeID string
	GuestName         string
	GuestEmail        string
	CheckIn           time.Time
	CheckOut          time.Time
	Adults            int
	Children          int
	TotalAmount       decimal.Decimal
	Currency          string
	BookedAt          time.Time
}

// ChannelRate is one advertised rate fetched back from a channel for a
// parity check.
type ChannelRate struct {
	ChannelRoomTypeID string
	Date              time.Time
	Rate              decimal.Decimal
	Currency          string
}

// Connector is implemented once per channel category. Implementations are
// stateless apart from per-call tokens, own their request timeout, and
// translate wire errors into the generic sentinel errors above.
type Connector interface {
	Category() string
	Authenticate(ctx context.Context) (Token, error)
	SyncRatesAndInventory(ctx context.Context, token Token, payload SyncPayload) error
	GetReservations(ctx context.Context, token Token, since time.Time) ([]ExternalReservation, error)
	GetChannelRates(ctx context.Context, token Token, channelRoomTypeID string, from, to time.Time) ([]ChannelRate, error)
	TestConnection(ctx context.Context) error
}

// Config is what a Factory needs to build a connector for one configured
// channel. Credentials is the channel's opaque per-category blob.
type Config struct {
	Credentials map[string]any
	Timeout     time.Duration
	// AllowInsecureFallback permits a demo token when authentication fails.
	// Off in production.
	AllowInsecureFallback bool
}

// Factory builds connectors for one channel category.
type Factory interface {
	Category() string
	NewConnector(cfg Config) (Connector, error)
}
