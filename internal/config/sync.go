package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SyncConfig holds the tunable knobs of the distribution engine. Operators
// adjust these without a restart; the holder reloads on file change.
type SyncConfig struct {
	// MaxInFlightPerChannel bounds concurrent push cells for a single
	// channel so its rate limits are respected.
	MaxInFlightPerChannel int `mapstructure:"maxInFlightPerChannel"`
	// ConnectorTimeout is the per-call deadline for any connector request.
	ConnectorTimeout time.Duration `mapstructure:"connectorTimeout"`
	// DefaultAllowedVariance is the parity tolerance (percent) applied to
	// channels without an explicit tolerance of their own.
	DefaultAllowedVariance float64 `mapstructure:"defaultAllowedVariance"`
	// ReservationLookback bounds the first reservation pull for a channel
	// that has never pulled before.
	ReservationLookback time.Duration `mapstructure:"reservationLookback"`

	// OverbookingHorizon is how far ahead the guard sweeps pending
	// allocations.
	OverbookingHorizon time.Duration `mapstructure:"overbookingHorizon"`
	// PushHorizon is how far ahead the scheduled push publishes inventory.
	PushHorizon time.Duration `mapstructure:"pushHorizon"`

	PushInterval        time.Duration `mapstructure:"pushInterval"`
	PullInterval        time.Duration `mapstructure:"pullInterval"`
	OverbookingInterval time.Duration `mapstructure:"overbookingInterval"`
	ParityInterval      time.Duration `mapstructure:"parityInterval"`

	// RateCacheTTL bounds how long an advertised channel rate fetched for a
	// parity check may be reused from cache.
	RateCacheTTL time.Duration `mapstructure:"rateCacheTTL"`
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MaxInFlightPerChannel:  8,
		ConnectorTimeout:       30 * time.Second,
		DefaultAllowedVariance: 0,
		ReservationLookback:    24 * time.Hour,
		OverbookingHorizon:     14 * 24 * time.Hour,
		PushHorizon:            30 * 24 * time.Hour,
		PushInterval:           15 * time.Minute,
		PullInterval:           10 * time.Minute,
		OverbookingInterval:    5 * time.Minute,
		ParityInterval:         time.Hour,
		RateCacheTTL:           10 * time.Minute,
	}
}

type SyncConfigHolder struct {
	current atomic.Value // holds SyncConfig
}

// NewSyncConfigHolderFromDefaults builds a holder without file watching,
// for tests and embedded use.
func NewSyncConfigHolderFromDefaults() *SyncConfigHolder {
	holder := &SyncConfigHolder{}
	holder.current.Store(DefaultSyncConfig())
	return holder
}

func NewSyncConfigHolder() (*SyncConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("sync")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/channelsync/config")
	v.AddConfigPath("/etc/channelsync")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CHANNELSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSyncConfig()
	v.SetDefault("sync.maxInFlightPerChannel", defaults.MaxInFlightPerChannel)
	v.SetDefault("sync.connectorTimeout", defaults.ConnectorTimeout)
	v.SetDefault("sync.defaultAllowedVariance", defaults.DefaultAllowedVariance)
	v.SetDefault("sync.reservationLookback", defaults.ReservationLookback)
	v.SetDefault("sync.overbookingHorizon", defaults.OverbookingHorizon)
	v.SetDefault("sync.pushHorizon", defaults.PushHorizon)
	v.SetDefault("sync.pushInterval", defaults.PushInterval)
	v.SetDefault("sync.pullInterval", defaults.PullInterval)
	v.SetDefault("sync.overbookingInterval", defaults.OverbookingInterval)
	v.SetDefault("sync.parityInterval", defaults.ParityInterval)
	v.SetDefault("sync.rateCacheTTL", defaults.RateCacheTTL)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg SyncConfig
	if err := v.UnmarshalKey("sync", &cfg); err != nil {
		return nil, err
	}
	if err := validateSyncConfig(cfg); err != nil {
		return nil, err
	}

	holder := &SyncConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SyncConfig
		if err := v.UnmarshalKey("sync", &updated); err != nil {
			log.Printf("[sync-config] reload failed: %v", err)
			return
		}
		if err := validateSyncConfig(updated); err != nil {
			log.Printf("[sync-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[sync-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SyncConfigHolder) Get() SyncConfig {
	return h.current.Load().(SyncConfig)
}

func validateSyncConfig(cfg SyncConfig) error {
	if cfg.MaxInFlightPerChannel <= 0 {
		return errors.New("sync.maxInFlightPerChannel must be positive")
	}
	if cfg.ConnectorTimeout <= 0 {
		return errors.New("sync.connectorTimeout must be positive")
	}
	if cfg.DefaultAllowedVariance < 0 {
		return errors.New("sync.defaultAllowedVariance cannot be negative")
	}
	if cfg.ReservationLookback <= 0 {
		return errors.New("sync.reservationLookback must be positive")
	}
	if cfg.OverbookingHorizon <= 0 {
		return errors.New("sync.overbookingHorizon must be positive")
	}
	if cfg.PushHorizon <= 0 {
		return errors.New("sync.pushHorizon must be positive")
	}
	return nil
}
