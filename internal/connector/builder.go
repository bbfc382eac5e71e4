package connector

import (
	channeldomain "github.com/staybridge/channelsync/internal/channel/domain"
	"github.com/staybridge/channelsync/internal/config"
	"github.com/staybridge/channelsync/internal/connector/domain"
)

// Builder turns a configured channel row into a live connector. It is the
// single place where channel credentials meet connector construction, so the
// insecure-fallback flag and call timeout are applied uniformly.
type Builder struct {
	registry *Registry
	appCfg   config.Config
	syncCfg  *config.SyncConfigHolder
}

func NewBuilder(registry *Registry, appCfg config.Config, syncCfg *config.SyncConfigHolder) *Builder {
	return &Builder{
		registry: registry,
		appCfg:   appCfg,
		syncCfg:  syncCfg,
	}
}

func (b *Builder) CategoryExists(category string) bool {
	return b.registry.CategoryExists(category)
}

func (b *Builder) ForChannel(channel *channeldomain.Channel) (domain.Connector, error) {
	if channel == nil {
		return nil, domain.ErrInvalidConfig
	}
	return b.registry.NewConnector(channel.Category, domain.Config{
		Credentials:           map[string]any(channel.Credentials),
		Timeout:               b.syncCfg.Get().ConnectorTimeout,
		AllowInsecureFallback: b.appCfg.AllowInsecureFallback,
	})
}
