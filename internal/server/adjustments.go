package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ninerx/paycore/internal/adjustment"
	ledgerdomain "github.com/ninerx/paycore/internal/ledger/domain"
)

type adjustmentRequest struct {
	Action   string  `json:"action" binding:"required"`
	NewTotal float64 `json:"new_total" binding:"required"`
	Reason   string  `json:"reason"`

	ProcessedBy string `json:"processed_by"`

	Method     string         `json:"method"`
	CardToken  string         `json:"card_token"`
	CardLast4  string         `json:"card_last4"`
	CardBrand  string         `json:"card_brand"`
	Expiration string         `json:"expiration"`
	Billing    billingRequest `json:"billing"`

	AllowUnreferenced bool `json:"allow_unreferenced"`
}

func (s *Server) ResolveAdjustment(c *gin.Context) {
	orderID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resolution, err := s.adjustment.Resolve(c.Request.Context(), adjustment.ResolveRequest{
		OrderID:           orderID,
		Action:            adjustment.Action(req.Action),
		NewTotal:          req.NewTotal,
		Reason:            req.Reason,
		ProcessedBy:       req.ProcessedBy,
		Method:            ledgerdomain.PaymentMethod(req.Method),
		CardToken:         req.CardToken,
		CardLast4:         req.CardLast4,
		CardBrand:         req.CardBrand,
		Expiration:        req.Expiration,
		Billing:           req.Billing.toDomain(),
		AllowUnreferenced: req.AllowUnreferenced,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resolution)
}

func (s *Server) ListAdjustments(c *gin.Context) {
	orderID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	adjustments, err := s.ledger.ListAdjustments(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"adjustments": adjustments})
}

type fulfillRequest struct {
	GatewayTransactionID string `json:"gateway_transaction_id" binding:"required"`
	ProcessedBy          string `json:"processed_by"`
}

// FulfillPaymentLink records the customer-completed payment behind a pending
// send_payment_link adjustment.
func (s *Server) FulfillPaymentLink(c *gin.Context) {
	adjustmentID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req fulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resolution, err := s.adjustment.FulfillPaymentLink(c.Request.Context(), adjustmentID, req.GatewayTransactionID, req.ProcessedBy)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resolution)
}

func (s *Server) ListReconciliation(c *gin.Context) {
	unresolvedOnly := c.DefaultQuery("unresolved", "true") != "false"

	items, err := s.ledger.ListReconciliationItems(c.Request.Context(), unresolvedOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}
