package bookingcom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/staybridge/channelsync/internal/connector/domain"
)

const defaultEndpoint = "https://supply-api.bookingpartners.example.com/v2"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Category() string {
	return "booking_com"
}

func (f *Factory) NewConnector(cfg domain.Config) (domain.Connector, error) {
	hotelID, ok := readString(cfg.Credentials, "hotel_id")
	if !ok || strings.TrimSpace(hotelID) == "" {
		return nil, domain.ErrMissingCredentials
	}
	username, _ := readString(cfg.Credentials, "username")
	password, _ := readString(cfg.Credentials, "password")
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return nil, domain.ErrMissingCredentials
	}

	endpoint := defaultEndpoint
	if override, ok := readString(cfg.Credentials, "endpoint"); ok && strings.TrimSpace(override) != "" {
		endpoint = strings.TrimRight(strings.TrimSpace(override), "/")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Connector{
		hotelID:       strings.TrimSpace(hotelID),
		username:      strings.TrimSpace(username),
		password:      strings.TrimSpace(password),
		endpoint:      endpoint,
		allowFallback: cfg.AllowInsecureFallback,
		client:        &http.Client{Timeout: timeout},
	}, nil
}

// Connector speaks the Booking.com supply API dialect: token auth, one
// availability document per room/date cell.
type Connector struct {
	hotelID       string
	username      string
	password      string
	endpoint      string
	allowFallback bool
	client        *http.Client
}

func (c *Connector) Category() string {
	return "booking_com"
}

func (c *Connector) Authenticate(ctx context.Context) (domain.Token, error) {
	body, _ := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return domain.Token{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fallbackToken(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.fallbackToken(fmt.Errorf("%w: auth returned %d", domain.ErrAuthFailed, resp.StatusCode))
	}

	var parsed struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || strings.TrimSpace(parsed.Token) == "" {
		return c.fallbackToken(domain.ErrAuthFailed)
	}

	expiresAt := time.Now().UTC().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	return domain.Token{Value: parsed.Token, ExpiresAt: expiresAt}, nil
}

func (c *Connector) fallbackToken(cause error) (domain.Token, error) {
	if !c.allowFallback {
		return domain.Token{}, cause
	}
	return domain.Token{
		Value:            "demo-booking-com-" + c.hotelID,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
		InsecureFallback: true,
	}, nil
}

func (c *Connector) SyncRatesAndInventory(ctx context.Context, token domain.Token, payload domain.SyncPayload) error {
	doc := map[string]any{
		"hotel_id": c.hotelID,
		"room_id":  payload.ChannelRoomTypeID,
		"date":     payload.Date.Format("2006-01-02"),
		"availability": map[string]int{
			"rooms_to_sell": payload.Inventory.Available,
			"rooms_sold":    payload.Inventory.Sold,
			"rooms_blocked": payload.Inventory.Blocked,
		},
		"rate": map[string]any{
			"price":    payload.Rates.SellingRate.StringFixed(2),
			"currency": payload.Rates.Currency,
		},
		"restrictions": map[string]any{
			"closed":              payload.Restrictions.Closed,
			"closed_to_arrival":   payload.Restrictions.CloseToArrival,
			"closed_to_departure": payload.Restrictions.CloseToDeparture,
			"min_stay":            payload.Restrictions.MinLOS,
			"max_stay":            payload.Restrictions.MaxLOS,
		},
	}

	status, body, err := c.do(ctx, token, http.MethodPost, "/hotels/"+c.hotelID+"/availability", doc)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	if status >= 500 {
		return fmt.Errorf("%w: status %d", domain.ErrChannelUnavailable, status)
	}
	if status >= 400 {
		return fmt.Errorf("%w: status %d: %s", domain.ErrChannelRejected, status, firstLine(body))
	}
	return nil
}

func (c *Connector) GetReservations(ctx context.Context, token domain.Token, since time.Time) ([]domain.ExternalReservation, error) {
	path := "/hotels/" + c.hotelID + "/reservations?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	status, body, err := c.do(ctx, token, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrChannelUnavailable, status)
	}

	var parsed struct {
		Reservations []struct {
			ReservationID string `json:"reservation_id"`
			RoomID        string `json:"room_id"`
			GuestName     string `json:"guest_name"`
			GuestEmail    string `json:"guest_email"`
			CheckIn       string `json:"checkin"`
			CheckOut      string `json:"checkout"`
			Adults        int    `json:"adults"`
			Children      int    `json:"children"`
			TotalPrice    string `json:"total_price"`
			Currency      string `json:"currency"`
			BookedAt      string `json:"booked_at"`
		} `json:"reservations"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelRejected, err)
	}

	out := make([]domain.ExternalReservation, 0, len(parsed.Reservations))
	for _, r := range parsed.Reservations {
		checkIn, _ := time.Parse("2006-01-02", r.CheckIn)
		checkOut, _ := time.Parse("2006-01-02", r.CheckOut)
		bookedAt, _ := time.Parse(time.RFC3339, r.BookedAt)
		amount, _ := decimal.NewFromString(r.TotalPrice)
		out = append(out, domain.ExternalReservation{
			ExternalID:        r.ReservationID,
			ChannelRoomTypeID: r.RoomID,
			GuestName:         r.GuestName,
			GuestEmail:        r.GuestEmail,
			CheckIn:           checkIn,
			CheckOut:          checkOut,
			Adults:            r.Adults,
			Children:          r.Children,
			TotalAmount:       amount,
			Currency:          strings.ToUpper(strings.TrimSpace(r.Currency)),
			BookedAt:          bookedAt,
		})
	}
	return out, nil
}

func (c *Connector) GetChannelRates(ctx context.Context, token domain.Token, channelRoomTypeID string, from, to time.Time) ([]domain.ChannelRate, error) {
	path := "/hotels/" + c.hotelID + "/rates?room_id=" + url.QueryEscape(channelRoomTypeID) +
		"&from=" + from.Format("2006-01-02") + "&to=" + to.Format("2006-01-02")
	status, body, err := c.do(ctx, token, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrChannelUnavailable, status)
	}

	var parsed struct {
		Rates []struct {
			RoomID   string `json:"room_id"`
			Date     string `json:"date"`
			Price    string `json:"price"`
			Currency string `json:"currency"`
		} `json:"rates"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelRejected, err)
	}

	out := make([]domain.ChannelRate, 0, len(parsed.Rates))
	for _, r := range parsed.Rates {
		date, _ := time.Parse("2006-01-02", r.Date)
		rate, _ := decimal.NewFromString(r.Price)
		out = append(out, domain.ChannelRate{
			ChannelRoomTypeID: r.RoomID,
			Date:              date,
			Rate:              rate,
			Currency:          strings.ToUpper(strings.TrimSpace(r.Currency)),
		})
	}
	return out, nil
}

func (c *Connector) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", domain.ErrChannelUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Connector) do(ctx context.Context, token domain.Token, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

func firstLine(body []byte) string {
	line := strings.TrimSpace(string(body))
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if len(line) > 200 {
		line = line[:200]
	}
	return line
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	switch cast := value.(type) {
	case string:
		return cast, true
	default:
		return "", false
	}
}
