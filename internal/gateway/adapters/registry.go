package adapters

import (
	"strings"

	"github.com/ninerx/paycore/internal/gateway/domain"
)

// Factory constructs a gateway client for one provider.
type Factory interface {
	Provider() string
	NewClient(cfg Config) (domain.Client, error)
}

// Config is provider-agnostic gateway configuration.
type Config struct {
	Endpoint       string
	LoginID        string
	TransactionKey string
	TimeoutSeconds int
	Sandbox        bool
}

type Registry struct {
	factories map[string]Factory
}

func NewRegistry(factories ...Factory) *Registry {
	registry := &Registry{factories: map[string]Factory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := strings.ToLower(strings.TrimSpace(factory.Provider()))
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	_, ok := r.factories[provider]
	return ok
}

func (r *Registry) NewClient(provider string, cfg Config) (domain.Client, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	factory, ok := r.factories[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewClient(cfg)
}
