package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ninerx/paycore/internal/adjustment"
	"github.com/ninerx/paycore/internal/capture"
	"github.com/ninerx/paycore/internal/config"
	gatewaydomain "github.com/ninerx/paycore/internal/gateway/domain"
	ledgerdomain "github.com/ninerx/paycore/internal/ledger/domain"
	"github.com/ninerx/paycore/internal/sequence"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var validation *capture.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    validation.Field,
			Message: validation.Message,
		}
	}

	if decline, ok := gatewaydomain.AsDecline(err); ok {
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_declined",
			Code:    decline.Code,
			Message: decline.Reason,
		}
	}

	switch {
	case errors.Is(err, gatewaydomain.ErrGatewayTimeout):
		return http.StatusGatewayTimeout, errorPayload{
			Type:    "gateway_timeout",
			Message: "the payment gateway timed out; the charge outcome is unknown and must be verified before retrying",
		}
	case errors.Is(err, gatewaydomain.ErrGatewayUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_unavailable",
			Message: "the payment gateway is unreachable",
		}
	case errors.Is(err, config.ErrGatewayNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "gateway_not_configured",
			Message: "payment gateway credentials are not configured",
		}
	case errors.Is(err, capture.ErrCaptureInFlight):
		return http.StatusConflict, errorPayload{
			Type:    "capture_in_flight",
			Message: "an identical capture for this order is already running",
		}
	case errors.Is(err, capture.ErrCaptureUnresolved):
		return http.StatusConflict, errorPayload{
			Type:    "capture_unresolved",
			Message: "a prior capture attempt timed out with unknown outcome; resolve it before retrying",
		}
	case errors.Is(err, capture.ErrOrderVoid):
		return http.StatusConflict, errorPayload{
			Type:    "order_void",
			Message: "the order has been voided",
		}
	case errors.Is(err, adjustment.ErrActionMismatch):
		return http.StatusConflict, errorPayload{
			Type:    "action_mismatch",
			Message: "the chosen action does not match the direction of the total change",
		}
	case errors.Is(err, adjustment.ErrNoDifference):
		return http.StatusBadRequest, errorPayload{
			Type:    "no_difference",
			Message: "the new total does not differ from the current total",
		}
	case errors.Is(err, adjustment.ErrNoPaymentOnFile):
		return http.StatusConflict, errorPayload{
			Type:    "no_payment_on_file",
			Message: "adjustments apply only to orders with at least one payment",
		}
	case errors.Is(err, adjustment.ErrInsufficientCredit):
		return http.StatusConflict, errorPayload{
			Type:    "insufficient_credit",
			Message: "available credit does not cover the difference",
		}
	case errors.Is(err, adjustment.ErrSavedMethodMissing):
		return http.StatusBadRequest, errorPayload{
			Type:    "saved_method_missing",
			Message: "collect_payment requires a saved payment method",
		}
	case errors.Is(err, adjustment.ErrRefundUnsafe):
		return http.StatusConflict, errorPayload{
			Type:    "refund_unsafe",
			Message: "no original gateway transaction is on file; re-submit with allow_unreferenced to force a degraded refund",
		}
	case errors.Is(err, adjustment.ErrUnknownAction):
		return http.StatusBadRequest, errorPayload{
			Type:    "unknown_action",
			Message: "unknown adjustment action",
		}
	case errors.Is(err, adjustment.ErrInvalidNewTotal):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_new_total",
			Message: "the new total must not be negative",
		}
	case errors.Is(err, ledgerdomain.ErrAdjustmentNotPending):
		return http.StatusConflict, errorPayload{
			Type:    "adjustment_not_pending",
			Message: "the adjustment is not pending fulfillment",
		}
	case errors.Is(err, sequence.ErrSequenceContention):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "sequence_contention",
			Message: "invoice numbering is under contention; retry",
		}
	case errors.Is(err, capture.ErrOrderNotFound),
		errors.Is(err, adjustment.ErrOrderNotFound),
		errors.Is(err, ledgerdomain.ErrAdjustmentNotFound),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "resource not found",
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}
