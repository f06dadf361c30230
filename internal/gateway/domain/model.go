// Package domain defines the payment gateway contract consumed by the
// capture orchestrator and adjustment resolver. Card data never touches this
// core beyond the opaque fields carried here.
package domain

import (
	"context"
	"errors"
	"fmt"
)

// Request is one authorize+capture attempt.
type Request struct {
	Amount float64
	Method string
	// RefID correlates the gateway transaction with our attempt.
	RefID string

	// Opaque payment instrument. For card: a token plus display metadata.
	CardToken  string
	CardLast4  string
	CardBrand  string
	Expiration string

	Billing Billing
}

// Billing is the minimal billing block gateways require.
type Billing struct {
	FirstName string
	LastName  string
	Address   string
	City      string
	State     string
	Zip       string
	Country   string
	Email     string
}

// Result of a successful authorize+capture.
type Result struct {
	TransactionID string
	AuthCode      string
	AVSResult     string
	RawResponse   []byte
}

// RefundRequest reverses a prior capture.
type RefundRequest struct {
	Amount                float64
	OriginalTransactionID string
	CardLast4             string
	RefID                 string
}

// RefundResult of a gateway refund.
type RefundResult struct {
	RefundID string
	Status   string
}

// Client is the external gateway collaborator. Implementations own their own
// timeout; on timeout the outcome is unknown and callers must not re-capture
// blindly.
type Client interface {
	AuthorizeCapture(ctx context.Context, req Request) (*Result, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

var (
	ErrGatewayTimeout     = errors.New("gateway_timeout")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrInvalidConfig      = errors.New("invalid_gateway_config")
	ErrProviderNotFound   = errors.New("gateway_provider_not_found")
)

// DeclineError is a structured gateway decline. Declines are surfaced to the
// caller with the mapped human-readable reason, never swallowed.
type DeclineError struct {
	Code   string
	Reason string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("payment declined (%s): %s", e.Code, e.Reason)
}

// AsDecline unwraps err to a DeclineError if it is one.
func AsDecline(err error) (*DeclineError, bool) {
	var decline *DeclineError
	if errors.As(err, &decline) {
		return decline, true
	}
	return nil, false
}
