package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
	"go.uber.org/zap"
)

// handleCallback receives a gateway notification and answers with the
// verdict token the gateway expects as a plain text body. Gateways retry
// on anything other than their acknowledgement token, so transport
// failures map to generic statuses and never leak detail.
func (s *Server) handleCallback(c *gin.Context) {
	backend := c.Param("backend")

	fields, err := callbackFields(c)
	if err != nil {
		c.String(http.StatusBadRequest, "ERR")
		return
	}

	verdict, err := s.callbackSvc.Handle(c.Request.Context(), backend, paymentdomain.CallbackRequest{
		Fields:   fields,
		SourceIP: c.ClientIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, paymentdomain.ErrBackendNotFound):
			c.String(http.StatusNotFound, "ERR")
		case errors.Is(err, paymentdomain.ErrMalformedCallback):
			c.String(http.StatusBadRequest, "ERR")
		default:
			s.log.Error("callback handling failed",
				zap.String("backend", backend),
				zap.Error(err),
			)
			c.String(http.StatusInternalServerError, "ERR")
		}
		return
	}

	c.String(http.StatusOK, string(verdict))
}

// callbackFields flattens the notification parameters. POST bodies take
// precedence over the query string, matching how the gateways send them.
func callbackFields(c *gin.Context) (map[string]string, error) {
	fields := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	if c.Request.Method == http.MethodPost {
		if err := c.Request.ParseForm(); err != nil {
			return nil, err
		}
		for key, values := range c.Request.PostForm {
			if len(values) > 0 {
				fields[key] = values[0]
			}
		}
	}
	return fields, nil
}
