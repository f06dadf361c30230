// Package gateway selects the gateway client for a payment method.
package gateway

import (
	"github.com/ninerx/paycore/internal/config"
	"github.com/ninerx/paycore/internal/gateway/adapters"
	"github.com/ninerx/paycore/internal/gateway/adapters/authorize"
	"github.com/ninerx/paycore/internal/gateway/adapters/manual"
	"github.com/ninerx/paycore/internal/gateway/domain"
	ledgerdomain "github.com/ninerx/paycore/internal/ledger/domain"
	"go.uber.org/fx"
)

// Source resolves a payment method to a gateway client.
type Source interface {
	ClientFor(method ledgerdomain.PaymentMethod) (domain.Client, error)
}

// Selector resolves a payment method to a configured gateway client. Card and
// ACH methods require gateway credentials and fail closed without them.
type Selector struct {
	registry *adapters.Registry
	cfg      config.Config
}

func NewSelector(cfg config.Config) *Selector {
	return &Selector{
		registry: adapters.NewRegistry(authorize.NewFactory(), manual.NewFactory()),
		cfg:      cfg,
	}
}

func (s *Selector) ClientFor(method ledgerdomain.PaymentMethod) (domain.Client, error) {
	switch method {
	case ledgerdomain.PaymentMethodManual:
		return s.registry.NewClient("manual", adapters.Config{})
	default:
		if err := s.cfg.Gateway.Validate(); err != nil {
			return nil, err
		}
		return s.registry.NewClient("authorize", adapters.Config{
			Endpoint:       s.cfg.Gateway.Endpoint,
			LoginID:        s.cfg.Gateway.LoginID,
			TransactionKey: s.cfg.Gateway.TransactionKey,
			TimeoutSeconds: s.cfg.Gateway.TimeoutSeconds,
			Sandbox:        s.cfg.Gateway.Sandbox,
		})
	}
}

var Module = fx.Module("gateway",
	fx.Provide(NewSelector),
	fx.Provide(func(s *Selector) Source { return s }),
)
