package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/smallbiznis/payflow/internal/gatewayconfig/domain"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	status, payload := mapError(err)
	c.AbortWithStatusJSON(status, errorResponse{Error: payload})
}

func mapError(err error) (int, errorPayload) {
	var missing *gatewaydomain.MissingSettingError
	switch {
	case errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, paymentdomain.ErrOrderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case errors.Is(err, paymentdomain.ErrBackendNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "unknown payment backend"}
	case errors.Is(err, paymentdomain.ErrCurrencyRejected):
		return http.StatusUnprocessableEntity, errorPayload{Type: "validation_error", Message: "currency not accepted by backend"}
	case errors.Is(err, paymentdomain.ErrIllegalTransition):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: "payment state does not allow this operation"}
	case errors.As(err, &missing):
		return http.StatusInternalServerError, errorPayload{Type: "configuration_error", Message: "backend misconfigured"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

func invalidRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		Error: errorPayload{Type: "invalid_request", Message: message},
	})
}
