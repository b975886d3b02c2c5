package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
)

type createOrderRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid request body")
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || amount.IsNegative() {
		invalidRequest(c, "invalid amount")
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		invalidRequest(c, "invalid currency")
		return
	}

	ord := &orderdomain.Order{
		ID:          s.genID.Generate().Int64(),
		Amount:      amount,
		Currency:    currency,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   s.clock.Now().UTC(),
	}
	if err := s.orders.Create(c.Request.Context(), s.db, ord); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": ord})
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ord, err := s.orders.Find(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": ord})
}

type createPaymentRequest struct {
	OrderID int64  `json:"order_id,string"`
	Backend string `json:"backend"`
}

func (s *Server) createPayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid request body")
		return
	}
	if req.OrderID == 0 || strings.TrimSpace(req.Backend) == "" {
		invalidRequest(c, "order_id and backend are required")
		return
	}

	payment, err := s.paymentSvc.Create(c.Request.Context(), req.OrderID, req.Backend)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) getPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	payment, err := s.paymentSvc.Find(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payment})
}

// goToGateway hands the buyer off to the gateway's checkout. GET gateways
// get a 302; POST gateways get the form descriptor for the storefront to
// auto-submit.
func (s *Server) goToGateway(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	redirect, err := s.paymentSvc.Redirect(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if redirect.Method == http.MethodGet {
		c.Redirect(http.StatusFound, redirect.URL)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": redirect})
}

func (s *Server) returnSuccess(c *gin.Context) { s.confirmReturn(c, true) }
func (s *Server) returnFailure(c *gin.Context) { s.confirmReturn(c, false) }

func (s *Server) confirmReturn(c *gin.Context, success bool) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	landing, err := s.paymentSvc.ConfirmReturn(c.Request.Context(), id, success)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Redirect(http.StatusFound, landing)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		invalidRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}
