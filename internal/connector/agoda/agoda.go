package agoda

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

const defaultEndpoint = "https://affiliateapi.agodapartners.example.com/ycs"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Category() string {
	return "agoda"
}

func (f *Factory) NewConnector(cfg domain.Config) (domain.Connector, error) {
	propertyID, _ := readString(cfg.Credentials, "property_id")
	apiKey, _ := readString(cfg.Credentials, "api_key")
	if strings.TrimSpace(propertyID) == "" || strings.TrimSpace(apiKey) == "" {
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
		propertyID:    strings.TrimSpace(propertyID),
		apiKey:        strings.TrimSpace(apiKey),
		endpoint:      endpoint,
		allowFallback: cfg.AllowInsecureFallback,
		client:        &http.Client{Timeout: timeout},
	}, nil
}

// Connector speaks the Agoda YCS dialect: a static API key exchanged for a
// short-lived session token, batch-of-one update documents.
type Connector struct {
	propertyID    string
	apiKey        string
	endpoint      string
	allowFallback bool
	client        *http.Client
}

func (c *Connector) Category() string {
	return "agoda"
}

func (c *Connector) Authenticate(ctx context.Context) (domain.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/session", nil)
	if err != nil {
		return domain.Token{}, err
	}
	req.Header.Set("X-Agoda-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fallbackToken(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return c.fallbackToken(fmt.Errorf("%w: session returned %d", domain.ErrAuthFailed, resp.StatusCode))
	}

	var parsed struct {
		SessionToken string `json:"session_token"`
		TTLSeconds   int64  `json:"ttl_seconds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || strings.TrimSpace(parsed.SessionToken) == "" {
		return c.fallbackToken(domain.ErrAuthFailed)
	}

	return domain.Token{
		Value:     parsed.SessionToken,
		ExpiresAt: time.Now().UTC().Add(time.Duration(parsed.TTLSeconds) * time.Second),
	}, nil
}

func (c *Connector) fallbackToken(cause error) (domain.Token, error) {
	if !c.allowFallback {
		return domain.Token{}, cause
	}
	return domain.Token{
		Value:            "demo-agoda-" + c.propertyID,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
		InsecureFallback: true,
	}, nil
}

func (c *Connector) SyncRatesAndInventory(ctx context.Context, token domain.Token, payload domain.SyncPayload) error {
	doc := map[string]any{
		"property_id": c.propertyID,
		"updates": []map[string]any{{
			"room_type_code": payload.ChannelRoomTypeID,
			"stay_date":      payload.Date.Format("2006-01-02"),
			"allotment":      payload.Inventory.Available,
			"rate": map[string]any{
				"sell_rate": payload.Rates.SellingRate.StringFixed(2),
				"currency":  payload.Rates.Currency,
			},
			"stop_sell": payload.Restrictions.Closed,
			"cta":       payload.Restrictions.CloseToArrival,
			"ctd":       payload.Restrictions.CloseToDeparture,
			"min_los":   payload.Restrictions.MinLOS,
			"max_los":   payload.Restrictions.MaxLOS,
		}},
	}

	status, body, err := c.do(ctx, token, http.MethodPost, "/properties/"+c.propertyID+"/updates", doc)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	if status >= 500 {
		return fmt.Errorf("%w: status %d", domain.ErrChannelUnavailable, status)
	}
	if status >= 400 {
		return fmt.Errorf("%w: status %d: %s", domain.ErrChannelRejected, status, truncate(body))
	}
	return nil
}

func (c *Connector) GetReservations(ctx context.Context, token domain.Token, since time.Time) ([]domain.ExternalReservation, error) {
	path := "/properties/" + c.propertyID + "/bookings?booked_since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	status, body, err := c.do(ctx, token, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrChannelUnavailable, status)
	}

	var parsed struct {
		Bookings []struct {
			BookingID     string `json:"booking_id"`
			RoomTypeCode  string `json:"room_type_code"`
			GuestName     string `json:"guest_name"`
			GuestEmail    string `json:"guest_email"`
			ArrivalDate   string `json:"arrival_date"`
			DepartureDate string `json:"departure_date"`
			Adults        int    `json:"no_of_adults"`
			Children      int    `json:"no_of_children"`
			NetAmount     string `json:"net_amount"`
			Currency      string `json:"currency"`
			BookingDate   string `json:"booking_date"`
		} `json:"bookings"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelRejected, err)
	}

	out := make([]domain.ExternalReservation, 0, len(parsed.Bookings))
	for _, b := range parsed.Bookings {
		checkIn, _ := time.Parse("2006-01-02", b.ArrivalDate)
		checkOut, _ := time.Parse("2006-01-02", b.DepartureDate)
		bookedAt, _ := time.Parse(time.RFC3339, b.BookingDate)
		amount, _ := decimal.NewFromString(b.NetAmount)
		out = append(out, domain.ExternalReservation{
			ExternalID:        b.BookingID,
			ChannelRoomTypeID: b.RoomTypeCode,
			GuestName:         b.GuestName,
			GuestEmail:        b.GuestEmail,
			CheckIn:           checkIn,
			CheckOut:          checkOut,
			Adults:            b.Adults,
			Children:          b.Children,
			TotalAmount:       amount,
			Currency:          strings.ToUpper(strings.TrimSpace(b.Currency)),
			BookedAt:          bookedAt,
		})
	}
	return out, nil
}

func (c *Connector) GetChannelRates(ctx context.Context, token domain.Token, channelRoomTypeID string, from, to time.Time) ([]domain.ChannelRate, error) {
	path := "/properties/" + c.propertyID + "/rates?room_type_code=" + url.QueryEscape(channelRoomTypeID) +
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
			StayDate string `json:"stay_date"`
			SellRate string `json:"sell_rate"`
			Currency string `json:"currency"`
		} `json:"rates"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelRejected, err)
	}

	out := make([]domain.ChannelRate, 0, len(parsed.Rates))
	for _, r := range parsed.Rates {
		date, _ := time.Parse("2006-01-02", r.StayDate)
		rate, _ := decimal.NewFromString(r.SellRate)
		out = append(out, domain.ChannelRate{
			ChannelRoomTypeID: channelRoomTypeID,
			Date:              date,
			Rate:              rate,
			Currency:          strings.ToUpper(strings.TrimSpace(r.Currency)),
		})
	}
	return out, nil
}

func (c *Connector) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/heartbeat", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Agoda-Key", c.apiKey)
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
	req.Header.Set("X-Agoda-Key", c.apiKey)
	req.Header.Set("X-Agoda-Session", token.Value)
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

func truncate(body []byte) string {
	line := strings.TrimSpace(string(body))
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
