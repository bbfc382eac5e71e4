package expedia

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/staybridge/channelsync/internal/connector/domain"
)

const defaultEndpoint = "https://services.expediaconnect.example.com/eqc"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Category() string {
	return "expedia"
}

func (f *Factory) NewConnector(cfg domain.Config) (domain.Connector, error) {
	propertyID, _ := readString(cfg.Credentials, "property_id")
	apiKey, _ := readString(cfg.Credentials, "api_key")
	sharedSecret, _ := readString(cfg.Credentials, "shared_secret")
	if strings.TrimSpace(propertyID) == "" || strings.TrimSpace(apiKey) == "" || strings.TrimSpace(sharedSecret) == "" {
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
		sharedSecret:  strings.TrimSpace(sharedSecret),
		endpoint:      endpoint,
		allowFallback: cfg.AllowInsecureFallback,
		client:        &http.Client{Timeout: timeout},
	}, nil
}

// Connector speaks the Expedia connectivity dialect. Requests are signed per
// call with an HMAC over key + timestamp; there is no separate token exchange,
// so Authenticate verifies the signature handshake once and reuses it.
type Connector struct {
	propertyID    string
	apiKey        string
	sharedSecret  string
	endpoint      string
	allowFallback bool
	client        *http.Client
}

func (c *Connector) Category() string {
	return "expedia"
}

func (c *Connector) Authenticate(ctx context.Context) (domain.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/properties/"+c.propertyID+"/handshake", nil)
	if err != nil {
		return domain.Token{}, err
	}
	c.sign(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fallbackToken(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.fallbackToken(fmt.Errorf("%w: handshake returned %d", domain.ErrAuthFailed, resp.StatusCode))
	}

	// The signature itself is the credential; token carries the signed key
	// so every later call reuses the same material.
	return domain.Token{Value: c.apiKey, ExpiresAt: time.Now().UTC().Add(24 * time.Hour)}, nil
}

func (c *Connector) fallbackToken(cause error) (domain.Token, error) {
	if !c.allowFallback {
		return domain.Token{}, cause
	}
	return domain.Token{
		Value:            "demo-expedia-" + c.propertyID,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
		InsecureFallback: true,
	}, nil
}

func (c *Connector) SyncRatesAndInventory(ctx context.Context, token domain.Token, payload domain.SyncPayload) error {
	doc := map[string]any{
		"resourceId": payload.ChannelRoomTypeID,
		"dateRange": map[string]string{
			"from": payload.Date.Format("2006-01-02"),
			"to":   payload.Date.Format("2006-01-02"),
		},
		"inventory": map[string]int{
			"totalInventoryAvailable": payload.Inventory.Available,
		},
		"rate": map[string]any{
			"threshold": map[string]string{
				"amount":   payload.Rates.SellingRate.StringFixed(2),
				"currency": payload.Rates.Currency,
			},
		},
		"restrictions": map[string]any{
			"closedToArrival":   payload.Restrictions.CloseToArrival,
			"closedToDeparture": payload.Restrictions.CloseToDeparture,
			"closed":            payload.Restrictions.Closed,
			"minLengthOfStay":   payload.Restrictions.MinLOS,
			"maxLengthOfStay":   payload.Restrictions.MaxLOS,
		},
	}

	status, body, err := c.do(ctx, http.MethodPut, "/properties/"+c.propertyID+"/roomTypes/"+url.PathEscape(payload.ChannelRoomTypeID)+"/avail", doc)
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
	path := "/properties/" + c.propertyID + "/bookings?createdSince=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrChannelUnavailable, status)
	}

	var parsed struct {
		Bookings []struct {
			ItineraryID string `json:"itineraryId"`
			RoomTypeID  string `json:"roomTypeId"`
			Guest       struct {
				FullName string `json:"fullName"`
				Email    string `json:"email"`
			} `json:"primaryGuest"`
			CheckInDate  string  `json:"checkInDate"`
			CheckOutDate string  `json:"checkOutDate"`
			AdultCount   int     `json:"adultCount"`
			ChildCount   int     `json:"childCount"`
			TotalAmount  float64 `json:"totalAmount"`
			CurrencyCode string  `json:"currencyCode"`
			CreatedAt    string  `json:"createDateTime"`
		} `json:"bookings"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelRejected, err)
	}

	out := make([]domain.ExternalReservation, 0, len(parsed.Bookings))
	for _, b := range parsed.Bookings {
		checkIn, _ := time.Parse("2006-01-02", b.CheckInDate)
		checkOut, _ := time.Parse("2006-01-02", b.CheckOutDate)
		createdAt, _ := time.Parse(time.RFC3339, b.CreatedAt)
		out = append(out, domain.ExternalReservation{
			ExternalID:        b.ItineraryID,
			ChannelRoomTypeID: b.RoomTypeID,
			GuestName:         b.Guest.FullName,
			GuestEmail:        b.Guest.Email,
			CheckIn:           checkIn,
			CheckOut:          checkOut,
			Adults:            b.AdultCount,
			Children:          b.ChildCount,
			TotalAmount:       decimal.NewFromFloat(b.TotalAmount),
			Currency:          strings.ToUpper(strings.TrimSpace(b.CurrencyCode)),
			BookedAt:          createdAt,
		})
	}
	return out, nil
}

func (c *Connector) GetChannelRates(ctx context.Context, token domain.Token, channelRoomTypeID string, from, to time.Time) ([]domain.ChannelRate, error) {
	path := "/properties/" + c.propertyID + "/roomTypes/" + url.PathEscape(channelRoomTypeID) +
		"/rates?from=" + from.Format("2006-01-02") + "&to=" + to.Format("2006-01-02")
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrChannelUnavailable, status)
	}

	var parsed struct {
		Rates []struct {
			Date         string  `json:"date"`
			Amount       float64 `json:"amount"`
			CurrencyCode string  `json:"currencyCode"`
		} `json:"rates"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelRejected, err)
	}

	out := make([]domain.ChannelRate, 0, len(parsed.Rates))
	for _, r := range parsed.Rates {
		date, _ := time.Parse("2006-01-02", r.Date)
		out = append(out, domain.ChannelRate{
			ChannelRoomTypeID: channelRoomTypeID,
			Date:              date,
			Rate:              decimal.NewFromFloat(r.Amount),
			Currency:          strings.ToUpper(strings.TrimSpace(r.CurrencyCode)),
		})
	}
	return out, nil
}

func (c *Connector) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/status", nil)
	if err != nil {
		return err
	}
	c.sign(req)
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

func (c *Connector) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
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
	c.sign(req)
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

// sign sets the EQC-style request signature: hex(hmac-sha256(key+timestamp)).
func (c *Connector) sign(req *http.Request) {
	timestamp := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(c.sharedSecret))
	_, _ = mac.Write([]byte(c.apiKey + timestamp))
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
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
