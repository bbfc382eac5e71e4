package connector

import (
	"strings"

	"github.com/staybridge/channelsync/internal/connector/domain"
)

// Registry maps channel categories to connector factories. It is built once
// at process start from the factories handed to it; wiring a new channel
// category means adding its factory here and nowhere else.
type Registry struct {
	factories map[string]domain.Factory
}

func NewRegistry(factories ...domain.Factory) *Registry {
	registry := &Registry{factories: map[string]domain.Factory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		category := strings.ToLower(strings.TrimSpace(factory.Category()))
		if category == "" {
			continue
		}
		registry.factories[category] = factory
	}
	return registry
}

func (r *Registry) CategoryExists(category string) bool {
	if r == nil {
		return false
	}
	category = strings.ToLower(strings.TrimSpace(category))
	_, ok := r.factories[category]
	return ok
}

func (r *Registry) Categories() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.factories))
	for category := range r.factories {
		out = append(out, category)
	}
	return out
}

func (r *Registry) NewConnector(category string, cfg domain.Config) (domain.Connector, error) {
	if r == nil {
		return nil, domain.ErrCategoryNotFound
	}
	category = strings.ToLower(strings.TrimSpace(category))
	factory, ok := r.factories[category]
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	return factory.NewConnector(cfg)
}
