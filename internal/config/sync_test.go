package config

import (
	"testing"
	"time"
)

func TestDefaultSyncConfigIsValid(t *testing.T) {
	if err := validateSyncConfig(DefaultSyncConfig()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateSyncConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SyncConfig)
	}{
		{"zero in-flight", func(c *SyncConfig) { c.MaxInFlightPerChannel = 0 }},
		{"zero timeout", func(c *SyncConfig) { c.ConnectorTimeout = 0 }},
		{"negative variance", func(c *SyncConfig) { c.DefaultAllowedVariance = -1 }},
		{"zero lookback", func(c *SyncConfig) { c.ReservationLookback = 0 }},
		{"zero overbooking horizon", func(c *SyncConfig) { c.OverbookingHorizon = 0 }},
		{"zero push horizon", func(c *SyncConfig) { c.PushHorizon = 0 }},
	}
	for _, tc := range cases {
		cfg := DefaultSyncConfig()
		tc.mutate(&cfg)
		if err := validateSyncConfig(cfg); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestHolderFromDefaults(t *testing.T) {
	holder := NewSyncConfigHolderFromDefaults()

	cfg := holder.Get()
	if cfg.ConnectorTimeout != 30*time.Second {
		t.Fatalf("unexpected connector timeout %v", cfg.ConnectorTimeout)
	}
	if cfg.MaxInFlightPerChannel != 8 {
		t.Fatalf("unexpected in-flight bound %d", cfg.MaxInFlightPerChannel)
	}
}
