package authorize

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ninerx/paycore/internal/gateway/adapters"
	"github.com/ninerx/paycore/internal/gateway/domain"
	"go.uber.org/zap"
)

func testClient(t *testing.T, endpoint string, timeout time.Duration) *Client {
	t.Helper()
	return &Client{
		endpoint:       endpoint,
		loginID:        "login",
		transactionKey: "key",
		http:           &http.Client{Timeout: timeout},
		log:            zap.NewNop(),
	}
}

func captureRequest() domain.Request {
	return domain.Request{
		Amount:     100,
		Method:     "card",
		RefID:      "ref-1",
		CardToken:  "4111111111111111",
		Expiration: "2028-12",
		Billing: domain.Billing{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Zip:       "10001",
		},
	}
}

func TestAuthorizeCaptureApproved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type, got %s", r.Header.Get("Content-Type"))
		}
		w.Write([]byte(`{
			"transactionResponse": {
				"responseCode": "1",
				"authCode": "AUTH42",
				"avsResultCode": "Y",
				"transId": "60001"
			},
			"messages": {"resultCode": "Ok"}
		}`))
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 2*time.Second)
	result, err := client.AuthorizeCapture(context.Background(), captureRequest())
	if err != nil {
		t.Fatalf("authorize capture: %v", err)
	}
	if result.TransactionID != "60001" {
		t.Fatalf("expected transaction id 60001, got %s", result.TransactionID)
	}
	if result.AuthCode != "AUTH42" {
		t.Fatalf("expected auth code AUTH42, got %s", result.AuthCode)
	}
}

func TestAuthorizeCaptureDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"transactionResponse": {
				"responseCode": "2",
				"transId": "60002",
				"errors": [{"errorCode": "2", "errorText": "This transaction has been declined."}]
			},
			"messages": {"resultCode": "Ok"}
		}`))
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 2*time.Second)
	_, err := client.AuthorizeCapture(context.Background(), captureRequest())

	decline, ok := domain.AsDecline(err)
	if !ok {
		t.Fatalf("expected decline error, got %v", err)
	}
	if decline.Code != "2" {
		t.Fatalf("expected decline code 2, got %s", decline.Code)
	}
	if decline.Reason != declineReasons["2"] {
		t.Fatalf("expected mapped reason, got %s", decline.Reason)
	}
}

func TestAuthorizeCaptureAuthenticationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"transactionResponse": {},
			"messages": {
				"resultCode": "Error",
				"message": [{"code": "E00007", "text": "User authentication failed."}]
			}
		}`))
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 2*time.Second)
	_, err := client.AuthorizeCapture(context.Background(), captureRequest())

	decline, ok := domain.AsDecline(err)
	if !ok {
		t.Fatalf("expected decline error, got %v", err)
	}
	if decline.Code != "E00007" {
		t.Fatalf("expected code E00007, got %s", decline.Code)
	}
}

func TestAuthorizeCaptureServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 2*time.Second)
	_, err := client.AuthorizeCapture(context.Background(), captureRequest())
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestAuthorizeCaptureMalformedResponseIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 2*time.Second)
	_, err := client.AuthorizeCapture(context.Background(), captureRequest())
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestAuthorizeCaptureTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := testClient(t, srv.URL, 50*time.Millisecond)
	_, err := client.AuthorizeCapture(context.Background(), captureRequest())
	if !errors.Is(err, domain.ErrGatewayTimeout) {
		t.Fatalf("expected ErrGatewayTimeout, got %v", err)
	}
}

func TestRefundRequiresOriginalTransaction(t *testing.T) {
	client := testClient(t, "http://unused.invalid", 2*time.Second)

	_, err := client.Refund(context.Background(), domain.RefundRequest{Amount: 30})
	decline, ok := domain.AsDecline(err)
	if !ok {
		t.Fatalf("expected decline error, got %v", err)
	}
	if decline.Code != "16" {
		t.Fatalf("expected code 16, got %s", decline.Code)
	}
}

func TestRefundApproved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"transactionResponse": {"responseCode": "1", "transId": "70001"},
			"messages": {"resultCode": "Ok"}
		}`))
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 2*time.Second)
	result, err := client.Refund(context.Background(), domain.RefundRequest{
		Amount:                30,
		OriginalTransactionID: "60001",
		CardLast4:             "1111",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if result.RefundID != "70001" {
		t.Fatalf("expected refund id 70001, got %s", result.RefundID)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	factory := NewFactory()

	_, err := factory.NewClient(adapters.Config{})
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestDeclineReasonFallsBackToGatewayText(t *testing.T) {
	if got := DeclineReason("999", "odd gateway text"); got != "odd gateway text" {
		t.Fatalf("expected fallback text, got %s", got)
	}
	if got := DeclineReason("999", ""); got != "The transaction was declined by the payment gateway." {
		t.Fatalf("expected generic fallback, got %s", got)
	}
}
