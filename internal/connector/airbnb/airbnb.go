package airbnb

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

const defaultEndpoint = "https://api.airbnbpartner.example.com/v3"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Category() string {
	return "airbnb"
}

func (f *Factory) NewConnector(cfg domain.Config) (domain.Connector, error) {
	accessToken, _ := readString(cfg.Credentials, "access_token")
	listingHost, _ := readString(cfg.Credentials, "host_id")
	if strings.TrimSpace(accessToken) == "" || strings.TrimSpace(listingHost) == "" {
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
		accessToken:   strings.TrimSpace(accessToken),
		hostID:        strings.TrimSpace(listingHost),
		endpoint:      endpoint,
		allowFallback: cfg.AllowInsecureFallback,
		client:        &http.Client{Timeout: timeout},
	}, nil
}

// Connector speaks the Airbnb partner dialect. Auth is a long-lived OAuth
// access token granted out of band; Authenticate only validates it against
// the token introspection endpoint.
type Connector struct {
	accessToken   string
	hostID        string
	endpoint      string
	allowFallback bool
	client        *http.Client
}

func (c *Connector) Category() string {
	return "airbnb"
}

func (c *Connector) Authenticate(ctx context.Context) (domain.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/oauth/introspect", nil)
	if err != nil {
		return domain.Token{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fallbackToken(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.fallbackToken(fmt.Errorf("%w: introspect returned %d", domain.ErrAuthFailed, resp.StatusCode))
	}

	var parsed struct {
		Active    bool  `json:"active"`
		ExpiresAt int64 `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || !parsed.Active {
		return c.fallbackToken(domain.ErrAuthFailed)
	}

	expiresAt := time.Unix(parsed.ExpiresAt, 0).UTC()
	if parsed.ExpiresAt == 0 {
		expiresAt = time.Now().UTC().Add(24 * time.Hour)
	}
	return domain.Token{Value: c.accessToken, ExpiresAt: expiresAt}, nil
}

func (c *Connector) fallbackToken(cause error) (domain.Token, error) {
	if !c.allowFallback {
		return domain.Token{}, cause
	}
	return domain.Token{
		Value:            "demo-airbnb-" + c.hostID,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
		InsecureFallback: true,
	}, nil
}

func (c *Connector) SyncRatesAndInventory(ctx context.Context, token domain.Token, payload domain.SyncPayload) error {
	doc := map[string]any{
		"listing_id": payload.ChannelRoomTypeID,
		"calendar_operations": []map[string]any{{
			"dates":        []string{payload.Date.Format("2006-01-02")},
			"availability": availabilityWord(payload),
			"daily_price":  payload.Rates.SellingRate.StringFixed(2),
			"currency":     payload.Rates.Currency,
			"min_nights":   payload.Restrictions.MinLOS,
			"max_nights":   payload.Restrictions.MaxLOS,
		}},
	}

	status, body, err := c.do(ctx, token, http.MethodPut, "/calendars/"+url.PathEscape(payload.ChannelRoomTypeID), doc)
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

// Airbnb calendars are binary available/blocked; a cell with zero rooms to
// sell or an explicit close maps to "unavailable".
func availabilityWord(payload domain.SyncPayload) string {
	if payload.Restrictions.Closed || payload.Inventory.Available <= 0 {
		return "unavailable"
	}
	return "available"
}

func (c *Connector) GetReservations(ctx context.Context, token domain.Token, since time.Time) ([]domain.ExternalReservation, error) {
	path := "/reservations?host_id=" + url.QueryEscape(c.hostID) + "&created_after=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	status, body, err := c.do(ctx, token, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrChannelUnavailable, status)
	}

	var parsed struct {
		Reservations []struct {
			ConfirmationCode string `json:"confirmation_code"`
			ListingID        string `json:"listing_id"`
			GuestFirstName   string `json:"guest_first_name"`
			GuestLastName    string `json:"guest_last_name"`
			GuestEmail       string `json:"guest_email"`
			StartDate        string `json:"start_date"`
			EndDate          string `json:"end_date"`
			NumberOfAdults   int    `json:"number_of_adults"`
			NumberOfChildren int    `json:"number_of_children"`
			ExpectedPayout   string `json:"expected_payout_amount"`
			Currency         string `json:"listing_currency"`
			CreatedAt        string `json:"created_at"`
		} `json:"reservations"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelRejected, err)
	}

	out := make([]domain.ExternalReservation, 0, len(parsed.Reservations))
	for _, r := range parsed.Reservations {
		checkIn, _ := time.Parse("2006-01-02", r.StartDate)
		checkOut, _ := time.Parse("2006-01-02", r.EndDate)
		createdAt, _ := time.Parse(time.RFC3339, r.CreatedAt)
		amount, _ := decimal.NewFromString(r.ExpectedPayout)
		out = append(out, domain.ExternalReservation{
			ExternalID:        r.ConfirmationCode,
			ChannelRoomTypeID: r.ListingID,
			GuestName:         strings.TrimSpace(r.GuestFirstName + " " + r.GuestLastName),
			GuestEmail:        r.GuestEmail,
			CheckIn:           checkIn,
			CheckOut:          checkOut,
			Adults:            r.NumberOfAdults,
			Children:          r.NumberOfChildren,
			TotalAmount:       amount,
			Currency:          strings.ToUpper(strings.TrimSpace(r.Currency)),
			BookedAt:          createdAt,
		})
	}
	return out, nil
}

func (c *Connector) GetChannelRates(ctx context.Context, token domain.Token, channelRoomTypeID string, from, to time.Time) ([]domain.ChannelRate, error) {
	path := "/calendars/" + url.PathEscape(channelRoomTypeID) + "?start_date=" + from.Format("2006-01-02") + "&end_date=" + to.Format("2006-01-02")
	status, body, err := c.do(ctx, token, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrChannelUnavailable, status)
	}

	var parsed struct {
		CalendarDays []struct {
			Date     string `json:"date"`
			Price    string `json:"daily_price"`
			Currency string `json:"currency"`
		} `json:"calendar_days"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelRejected, err)
	}

	out := make([]domain.ChannelRate, 0, len(parsed.CalendarDays))
	for _, day := range parsed.CalendarDays {
		date, _ := time.Parse("2006-01-02", day.Date)
		rate, _ := decimal.NewFromString(day.Price)
		out = append(out, domain.ChannelRate{
			ChannelRoomTypeID: channelRoomTypeID,
			Date:              date,
			Rate:              rate,
			Currency:          strings.ToUpper(strings.TrimSpace(day.Currency)),
		})
	}
	return out, nil
}

func (c *Connector) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
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
