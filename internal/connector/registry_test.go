package connector

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	channeldomain "github.com/staybridge/channelsync/internal/channel/domain"
	"github.com/staybridge/channelsync/internal/config"
	"github.com/staybridge/channelsync/internal/connector/bookingcom"
	"github.com/staybridge/channelsync/internal/connector/domain"
)

type fakeConnector struct {
	category string
}

func (c *fakeConnector) Category() string { return c.category }

func (c *fakeConnector) Authenticate(context.Context) (domain.Token, error) {
	return domain.Token{Value: "tok"}, nil
}

func (c *fakeConnector) SyncRatesAndInventory(context.Context, domain.Token, domain.SyncPayload) error {
	return nil
}

func (c *fakeConnector) GetReservations(context.Context, domain.Token, time.Time) ([]domain.ExternalReservation, error) {
	return nil, nil
}

func (c *fakeConnector) GetChannelRates(context.Context, domain.Token, string, time.Time, time.Time) ([]domain.ChannelRate, error) {
	return nil, nil
}

func (c *fakeConnector) TestConnection(context.Context) error { return nil }

type fakeFactory struct {
	category string
	lastCfg  domain.Config
}

func (f *fakeFactory) Category() string { return f.category }

func (f *fakeFactory) NewConnector(cfg domain.Config) (domain.Connector, error) {
	f.lastCfg = cfg
	return &fakeConnector{category: f.category}, nil
}

func TestRegistryNormalizesCategories(t *testing.T) {
	registry := NewRegistry(&fakeFactory{category: " Booking_Com "})

	if !registry.CategoryExists("booking_com") {
		t.Fatal("expected trimmed lowercase category to exist")
	}
	if !registry.CategoryExists("BOOKING_COM") {
		t.Fatal("lookup should be case insensitive")
	}
	if registry.CategoryExists("expedia") {
		t.Fatal("unknown category must not exist")
	}
}

func TestRegistryNewConnector(t *testing.T) {
	registry := NewRegistry(&fakeFactory{category: "agoda"})

	conn, err := registry.NewConnector("Agoda", domain.Config{})
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}
	if conn.Category() != "agoda" {
		t.Fatalf("unexpected category %q", conn.Category())
	}

	_, err = registry.NewConnector("teletext", domain.Config{})
	if !errors.Is(err, domain.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestRegistrySkipsNilAndBlankFactories(t *testing.T) {
	registry := NewRegistry(nil, &fakeFactory{category: ""}, &fakeFactory{category: "expedia"})

	categories := registry.Categories()
	sort.Strings(categories)
	if len(categories) != 1 || categories[0] != "expedia" {
		t.Fatalf("unexpected categories: %v", categories)
	}
}

func TestBuilderAppliesTimeoutAndFallback(t *testing.T) {
	factory := &fakeFactory{category: "booking_com"}
	holder := config.NewSyncConfigHolderFromDefaults()
	builder := NewBuilder(NewRegistry(factory), config.Config{AllowInsecureFallback: true}, holder)

	channel := &channeldomain.Channel{
		Category:    "booking_com",
		Credentials: map[string]any{"hotel_id": "H-1"},
	}
	if _, err := builder.ForChannel(channel); err != nil {
		t.Fatalf("for channel: %v", err)
	}
	if factory.lastCfg.Timeout != config.DefaultSyncConfig().ConnectorTimeout {
		t.Fatalf("expected connector timeout from sync config, got %v", factory.lastCfg.Timeout)
	}
	if !factory.lastCfg.AllowInsecureFallback {
		t.Fatal("expected fallback flag to pass through")
	}
	if factory.lastCfg.Credentials["hotel_id"] != "H-1" {
		t.Fatalf("expected credentials to pass through, got %+v", factory.lastCfg.Credentials)
	}
}

func TestBuilderRejectsNilChannel(t *testing.T) {
	builder := NewBuilder(NewRegistry(bookingcom.NewFactory()), config.Config{}, config.NewSyncConfigHolderFromDefaults())

	if _, err := builder.ForChannel(nil); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
