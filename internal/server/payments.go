package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/ninerx/paycore/internal/capture"
	gatewaydomain "github.com/ninerx/paycore/internal/gateway/domain"
	ledgerdomain "github.com/ninerx/paycore/internal/ledger/domain"
)

type billingRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
	Email     string `json:"email"`
}

func (b billingRequest) toDomain() gatewaydomain.Billing {
	return gatewaydomain.Billing{
		FirstName: b.FirstName,
		LastName:  b.LastName,
		Address:   b.Address,
		City:      b.City,
		State:     b.State,
		Zip:       b.Zip,
		Country:   b.Country,
		Email:     b.Email,
	}
}

type captureRequest struct {
	Method      string         `json:"method" binding:"required"`
	Amount      float64        `json:"amount" binding:"required"`
	CardToken   string         `json:"card_token"`
	CardLast4   string         `json:"card_last4"`
	CardBrand   string         `json:"card_brand"`
	Expiration  string         `json:"expiration"`
	Billing     billingRequest `json:"billing"`
	ProcessedBy string         `json:"processed_by"`
}

func (s *Server) CapturePayment(c *gin.Context) {
	orderID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	receipt, err := s.capture.Capture(c.Request.Context(), capture.Request{
		OrderID:     orderID,
		Method:      ledgerdomain.PaymentMethod(req.Method),
		Amount:      req.Amount,
		CardToken:   req.CardToken,
		CardLast4:   req.CardLast4,
		CardBrand:   req.CardBrand,
		Expiration:  req.Expiration,
		Billing:     req.Billing.toDomain(),
		ProcessedBy: req.ProcessedBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

type clearAttemptRequest struct {
	Amount float64 `json:"amount" binding:"required"`
}

// ClearCaptureAttempt releases a poisoned capture attempt after an operator
// has verified the gateway outcome of a timed-out charge.
func (s *Server) ClearCaptureAttempt(c *gin.Context) {
	orderID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req clearAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	s.capture.ClearAttempt(orderID, req.Amount)
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (s *Server) GetBalance(c *gin.Context) {
	orderID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	snapshot, err := s.capture.GetBalance(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(raw)
}
