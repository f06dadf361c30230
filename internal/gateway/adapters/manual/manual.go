// Package manual records offline payments (check, cash, wire). There is no
// network gateway; the "transaction id" is a locally generated reference.
package manual

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ninerx/paycore/internal/gateway/adapters"
	"github.com/ninerx/paycore/internal/gateway/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "manual"
}

func (f *Factory) NewClient(cfg adapters.Config) (domain.Client, error) {
	_ = cfg
	return &Client{}, nil
}

type Client struct{}

func (c *Client) AuthorizeCapture(ctx context.Context, req domain.Request) (*domain.Result, error) {
	_ = ctx
	if req.Amount <= 0 {
		return nil, &domain.DeclineError{Code: "5", Reason: "A valid amount is required."}
	}
	return &domain.Result{
		TransactionID: fmt.Sprintf("manual-%s", uuid.NewString()),
		AuthCode:      "MANUAL",
	}, nil
}

func (c *Client) Refund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	_ = ctx
	if req.Amount <= 0 {
		return nil, &domain.DeclineError{Code: "5", Reason: "A valid amount is required."}
	}
	return &domain.RefundResult{
		RefundID: fmt.Sprintf("manual-refund-%s", uuid.NewString()),
		Status:   "refunded",
	}, nil
}
