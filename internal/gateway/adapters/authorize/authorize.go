// Package authorize implements the card gateway client against an
// Authorize.Net-style JSON transaction API.
package authorize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ninerx/paycore/internal/gateway/adapters"
	"github.com/ninerx/paycore/internal/gateway/domain"
	"go.uber.org/zap"
)

const (
	sandboxEndpoint = "https://apitest.authorize.net/xml/v1/request.api"

	responseApproved = "1"
	responseDeclined = "2"
	responseError    = "3"
	responseHeld     = "4"
)

// declineReasons maps gateway response-reason codes to human-readable
// decline reasons shown to the caller.
var declineReasons = map[string]string{
	"2":      "This transaction has been declined by the card issuer.",
	"3":      "This transaction has been declined.",
	"4":      "This transaction has been declined; the card should be picked up.",
	"6":      "The credit card number is invalid.",
	"7":      "The credit card expiration date is invalid.",
	"8":      "The credit card has expired.",
	"11":     "A duplicate transaction has been submitted.",
	"27":     "The transaction resulted in an AVS mismatch; the billing address does not match.",
	"44":     "This transaction has been declined by the card code verification.",
	"45":     "This transaction has been declined due to address and card code mismatch.",
	"E00007": "Gateway authentication failed; verify credentials.",
}

// DeclineReason resolves a gateway code to its mapped reason, falling back to
// the raw gateway text.
func DeclineReason(code, fallback string) string {
	if reason, ok := declineReasons[code]; ok {
		return reason
	}
	if strings.TrimSpace(fallback) != "" {
		return fallback
	}
	return "The transaction was declined by the payment gateway."
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "authorize"
}

func (f *Factory) NewClient(cfg adapters.Config) (domain.Client, error) {
	if strings.TrimSpace(cfg.LoginID) == "" || strings.TrimSpace(cfg.TransactionKey) == "" {
		return nil, domain.ErrInvalidConfig
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if cfg.Sandbox || endpoint == "" {
		endpoint = sandboxEndpoint
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		endpoint:       endpoint,
		loginID:        cfg.LoginID,
		transactionKey: cfg.TransactionKey,
		http:           &http.Client{Timeout: timeout},
		log:            zap.L().Named("gateway.authorize"),
	}, nil
}

type Client struct {
	endpoint       string
	loginID        string
	transactionKey string
	http           *http.Client
	log            *zap.Logger
}

type merchantAuthentication struct {
	Name           string `json:"name"`
	TransactionKey string `json:"transactionKey"`
}

type transactionRequest struct {
	TransactionType string   `json:"transactionType"`
	Amount          string   `json:"amount"`
	Payment         *payment `json:"payment,omitempty"`
	RefTransID      string   `json:"refTransId,omitempty"`
	BillTo          *billTo  `json:"billTo,omitempty"`
}

type payment struct {
	CreditCard *creditCard `json:"creditCard,omitempty"`
}

type creditCard struct {
	CardNumber     string `json:"cardNumber"`
	ExpirationDate string `json:"expirationDate"`
}

type billTo struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Country   string `json:"country,omitempty"`
}

type createTransactionRequest struct {
	MerchantAuthentication merchantAuthentication `json:"merchantAuthentication"`
	RefID                  string                 `json:"refId,omitempty"`
	TransactionRequest     transactionRequest     `json:"transactionRequest"`
}

type requestEnvelope struct {
	CreateTransactionRequest createTransactionRequest `json:"createTransactionRequest"`
}

type transactionResponse struct {
	ResponseCode  string `json:"responseCode"`
	AuthCode      string `json:"authCode"`
	AVSResultCode string `json:"avsResultCode"`
	TransID       string `json:"transId"`
	Errors        []struct {
		ErrorCode string `json:"errorCode"`
		ErrorText string `json:"errorText"`
	} `json:"errors"`
}

type responseEnvelope struct {
	TransactionResponse transactionResponse `json:"transactionResponse"`
	Messages            struct {
		ResultCode string `json:"resultCode"`
		Message    []struct {
			Code string `json:"code"`
			Text string `json:"text"`
		} `json:"message"`
	} `json:"messages"`
}

func (c *Client) AuthorizeCapture(ctx context.Context, req domain.Request) (*domain.Result, error) {
	envelope := requestEnvelope{
		CreateTransactionRequest: createTransactionRequest{
			MerchantAuthentication: merchantAuthentication{
				Name:           c.loginID,
				TransactionKey: c.transactionKey,
			},
			RefID: req.RefID,
			TransactionRequest: transactionRequest{
				TransactionType: "authCaptureTransaction",
				Amount:          fmt.Sprintf("%.2f", req.Amount),
				Payment: &payment{
					CreditCard: &creditCard{
						CardNumber:     req.CardToken,
						ExpirationDate: req.Expiration,
					},
				},
				BillTo: &billTo{
					FirstName: req.Billing.FirstName,
					LastName:  req.Billing.LastName,
					Address:   req.Billing.Address,
					City:      req.Billing.City,
					State:     req.Billing.State,
					Zip:       req.Billing.Zip,
					Country:   req.Billing.Country,
				},
			},
		},
	}

	raw, parsed, err := c.send(ctx, envelope)
	if err != nil {
		return nil, err
	}

	if err := c.checkResponse(parsed); err != nil {
		return nil, err
	}

	return &domain.Result{
		TransactionID: parsed.TransactionResponse.TransID,
		AuthCode:      parsed.TransactionResponse.AuthCode,
		AVSResult:     parsed.TransactionResponse.AVSResultCode,
		RawResponse:   raw,
	}, nil
}

func (c *Client) Refund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	if strings.TrimSpace(req.OriginalTransactionID) == "" {
		return nil, &domain.DeclineError{
			Code:   "16",
			Reason: "The referenced transaction cannot be found.",
		}
	}

	envelope := requestEnvelope{
		CreateTransactionRequest: createTransactionRequest{
			MerchantAuthentication: merchantAuthentication{
				Name:           c.loginID,
				TransactionKey: c.transactionKey,
			},
			RefID: req.RefID,
			TransactionRequest: transactionRequest{
				TransactionType: "refundTransaction",
				Amount:          fmt.Sprintf("%.2f", req.Amount),
				RefTransID:      req.OriginalTransactionID,
				Payment: &payment{
					CreditCard: &creditCard{
						CardNumber:     req.CardLast4,
						ExpirationDate: "XXXX",
					},
				},
			},
		},
	}

	_, parsed, err := c.send(ctx, envelope)
	if err != nil {
		return nil, err
	}

	if err := c.checkResponse(parsed); err != nil {
		return nil, err
	}

	return &domain.RefundResult{
		RefundID: parsed.TransactionResponse.TransID,
		Status:   "refunded",
	}, nil
}

func (c *Client) send(ctx context.Context, envelope requestEnvelope) ([]byte, *responseEnvelope, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			c.log.Error("gateway request timed out; outcome unknown", zap.Error(err))
			return nil, nil, domain.ErrGatewayTimeout
		}
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	var raw bytes.Buffer
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, nil, fmt.Errorf("%w: gateway returned %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}

	var parsed responseEnvelope
	if err := json.Unmarshal(raw.Bytes(), &parsed); err != nil {
		return nil, nil, fmt.Errorf("%w: malformed gateway response", domain.ErrGatewayUnavailable)
	}

	return raw.Bytes(), &parsed, nil
}

func (c *Client) checkResponse(parsed *responseEnvelope) error {
	tr := parsed.TransactionResponse

	if strings.EqualFold(parsed.Messages.ResultCode, "Error") && tr.TransID == "" {
		code := ""
		text := ""
		if len(parsed.Messages.Message) > 0 {
			code = parsed.Messages.Message[0].Code
			text = parsed.Messages.Message[0].Text
		}
		if len(tr.Errors) > 0 {
			code = tr.Errors[0].ErrorCode
			text = tr.Errors[0].ErrorText
		}
		return &domain.DeclineError{Code: code, Reason: DeclineReason(code, text)}
	}

	switch tr.ResponseCode {
	case responseApproved:
		return nil
	case responseDeclined, responseError, responseHeld:
		code := tr.ResponseCode
		text := ""
		if len(tr.Errors) > 0 {
			code = tr.Errors[0].ErrorCode
			text = tr.Errors[0].ErrorText
		}
		return &domain.DeclineError{Code: code, Reason: DeclineReason(code, text)}
	default:
		return fmt.Errorf("%w: unrecognized response code %q", domain.ErrGatewayUnavailable, tr.ResponseCode)
	}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	var t timeout
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}
